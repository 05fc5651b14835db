package httpstage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/fuzzforge/webfuzz/internal/fuzz/httpwire"
	"github.com/fuzzforge/webfuzz/pkg/fn"
	"github.com/fuzzforge/webfuzz/pkg/resilience"
)

// ClientDispatcher is the reference plugin.HttpDispatcher: one HTTP
// client, optionally guarded by a token-bucket rate limiter and a
// circuit breaker, instrumented with otelhttp so every dispatched
// request carries a span alongside the stage/plugin spans the rest of
// the pipeline emits (spec.md §6, §9 Domain Stack). Retries and
// connection pooling are the dispatcher's responsibility per spec.md
// §4.5; retries use fn.Retry with exponential backoff.
type ClientDispatcher struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
	breaker *resilience.Breaker
	retry   fn.RetryOpts
	slots   chan struct{}

	pending atomic.Int64

	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
}

// NewClientDispatcher builds a dispatcher against baseURL (scheme and
// host; httpwire.Request carries only the path). limiter and breaker
// are both optional (nil disables that guard). retry is applied around
// every attempt, including ones gated by the breaker; pass
// fn.RetryOpts{MaxAttempts: 1} to disable retrying. concurrent bounds
// the number of in-flight requests (spec.md §4.5, §6 "concurrent");
// <= 0 means unbounded.
func NewClientDispatcher(baseURL string, timeout time.Duration, limiter *rate.Limiter, breaker *resilience.Breaker, retry fn.RetryOpts, concurrent int) *ClientDispatcher {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	d := &ClientDispatcher{
		baseURL: baseURL,
		limiter: limiter,
		breaker: breaker,
		retry:   retry,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	if concurrent > 0 {
		d.slots = make(chan struct{}, concurrent)
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *ClientDispatcher) Submit(ctx context.Context, req httpwire.Request, done func(httpwire.Response, error)) {
	d.pending.Add(1)
	if d.slots != nil {
		select {
		case d.slots <- struct{}{}:
		case <-ctx.Done():
			d.pending.Add(-1)
			done(httpwire.Response{}, ctx.Err())
			return
		}
	}
	go func() {
		defer d.pending.Add(-1)
		if d.slots != nil {
			defer func() { <-d.slots }()
		}
		d.waitResumed()

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				done(httpwire.Response{}, err)
				return
			}
		}

		attempt := func(ctx context.Context) fn.Result[httpwire.Response] {
			var resp httpwire.Response
			call := func(ctx context.Context) error {
				r, err := d.do(ctx, req)
				if err != nil {
					return err
				}
				resp = r
				return nil
			}
			var err error
			if d.breaker != nil {
				err = d.breaker.Call(ctx, call)
			} else {
				err = call(ctx)
			}
			if err != nil {
				return fn.Err[httpwire.Response](err)
			}
			return fn.Ok(resp)
		}

		resp, err := fn.Retry(ctx, d.retry, attempt).Unwrap()
		done(resp, err)
	}()
}

func (d *ClientDispatcher) do(ctx context.Context, req httpwire.Request) (httpwire.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, d.baseURL+req.Path, bytes.NewReader(req.Body))
	if err != nil {
		return httpwire.Response{}, err
	}
	for _, h := range req.Headers {
		httpReq.Header.Add(h.Key, h.Value)
	}

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return httpwire.Response{}, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return httpwire.Response{}, err
	}

	headers := make(httpwire.Headers, 0, len(httpResp.Header))
	for k, vs := range httpResp.Header {
		for _, v := range vs {
			headers = append(headers, httpwire.Header{Key: k, Value: v})
		}
	}

	return httpwire.Response{
		Version:    httpResp.Proto,
		StatusCode: httpResp.StatusCode,
		Reason:     http.StatusText(httpResp.StatusCode),
		Headers:    headers,
		Body:       body,
	}, nil
}

func (d *ClientDispatcher) waitResumed() {
	d.mu.Lock()
	for d.paused {
		d.cond.Wait()
	}
	d.mu.Unlock()
}

func (d *ClientDispatcher) Pending() int { return int(d.pending.Load()) }

func (d *ClientDispatcher) Pause() {
	d.mu.Lock()
	d.paused = true
	d.mu.Unlock()
}

func (d *ClientDispatcher) Resume() {
	d.mu.Lock()
	d.paused = false
	d.mu.Unlock()
	d.cond.Broadcast()
}

func (d *ClientDispatcher) Close() error {
	d.client.CloseIdleConnections()
	return nil
}
