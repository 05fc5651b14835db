package stage

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/queue"
	"github.com/fuzzforge/webfuzz/pkg/natsutil"
)

// Sink persists or publishes a completed FuzzResult. SaveStage fans a
// result out to every configured sink before it reaches PrinterStage
// (spec.md §4.3); a sink error is fatal to the run, matching how a
// disk-full or broker-down condition should stop a fuzzing session
// rather than silently lose results.
type Sink interface {
	Write(res *model.FuzzResult) error
}

// SaveStage writes every result to its configured sinks unchanged.
type SaveStage struct {
	sinks []Sink
}

func NewSaveStage(sinks ...Sink) *SaveStage {
	return &SaveStage{sinks: sinks}
}

func (s *SaveStage) Name() string { return "save" }

func (s *SaveStage) Run(ctx context.Context, in, out *queue.PriorityQueue) error {
	return RunLoop(ctx, in, out, passOne(s.process))
}

func (s *SaveStage) process(res *model.FuzzResult) (*model.FuzzResult, error) {
	for _, sink := range s.sinks {
		if err := sink.Write(res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// savedResult is the on-disk/wire shape FileSink and NatsSink emit:
// just enough of a FuzzResult to reconstruct what was sent and what
// came back, without the internal pipeline bookkeeping fields.
type savedResult struct {
	NRes       int64             `json:"nres"`
	RLevel     int               `json:"rlevel"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	StatusCode int               `json:"status_code"`
	BodyLen    int               `json:"body_len"`
	IsBaseline bool              `json:"is_baseline"`
	Enrich     map[string]string `json:"enrich,omitempty"`
}

func toSavedResult(res *model.FuzzResult) savedResult {
	sr := savedResult{
		NRes:       res.NRes,
		RLevel:     res.RLevel,
		Method:     res.History.Request.Method,
		Path:       res.History.Request.Path,
		IsBaseline: res.IsBaseline,
		Enrich:     res.Enrich,
	}
	if res.History.Response != nil {
		sr.StatusCode = res.History.Response.StatusCode
		sr.BodyLen = len(res.History.Response.Body)
	}
	return sr
}

// FileSink writes one JSON object per line to w. Write holds a mutex,
// so one FileSink can be shared by concurrent callers.
type FileSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

func NewFileSink(w io.Writer) *FileSink {
	return &FileSink{w: w, enc: json.NewEncoder(w)}
}

func (f *FileSink) Write(res *model.FuzzResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enc.Encode(toSavedResult(res))
}

// NatsSink republishes every completed result onto a NATS subject via
// pkg/natsutil.Publish, which injects OTel trace context into the
// message headers so an external consumer can stitch a result back to
// the span that produced it. This is the optional external fan-out
// named in spec.md's §4.3 SaveStage addition: off unless a *nats.Conn
// is configured, and not itself the kind of cross-invocation
// persistence the spec's Non-goals exclude.
type NatsSink struct {
	nc      *nats.Conn
	subject string
}

func NewNatsSink(nc *nats.Conn, subject string) *NatsSink {
	return &NatsSink{nc: nc, subject: subject}
}

func (n *NatsSink) Write(res *model.FuzzResult) error {
	return natsutil.Publish(context.Background(), n.nc, n.subject, toSavedResult(res))
}
