// Command gofuzz is the reference CLI for the fuzzing pipeline in
// internal/fuzz: it parses a seed request and dictionaries from flags,
// wires a ClientDispatcher and the built-in plugin set, and streams
// results to stdout (spec.md §1, §6; SPEC_FULL.md §9 Ambient Stack).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/fuzzforge/webfuzz/internal/fuzz/builtin"
	"github.com/fuzzforge/webfuzz/internal/fuzz/filterexpr"
	"github.com/fuzzforge/webfuzz/internal/fuzz/fuzzer"
	"github.com/fuzzforge/webfuzz/internal/fuzz/generator"
	"github.com/fuzzforge/webfuzz/internal/fuzz/httpstage"
	"github.com/fuzzforge/webfuzz/internal/fuzz/httpwire"
	"github.com/fuzzforge/webfuzz/internal/fuzz/model"
	"github.com/fuzzforge/webfuzz/internal/fuzz/plugin"
	"github.com/fuzzforge/webfuzz/internal/fuzz/stage"
	"github.com/fuzzforge/webfuzz/pkg/fn"
	"github.com/fuzzforge/webfuzz/pkg/metrics"
	"github.com/fuzzforge/webfuzz/pkg/mid"
	"github.com/fuzzforge/webfuzz/pkg/resilience"
)

var met = metrics.New()

var (
	mRequests = met.Counter("gofuzz_requests_total", "Total requests dispatched")
	mErrors   = met.Counter("gofuzz_errors_total", "Total error-typed results")
	mFiltered = met.Counter("gofuzz_filtered_total", "Total results dropped by the postfilter")
	mBackfeed = met.Counter("gofuzz_backfeed_total", "Total backfeed items injected")
	mPending  = met.Gauge("gofuzz_pending_requests", "In-flight HTTP requests")
	mRunTime  = met.Histogram("gofuzz_run_duration_seconds", "Wall-clock duration of a completed run", nil)
)

// config holds every gofuzz run's flag-derived settings. Only URL and
// Wordlist are required; everything else enables an optional stage,
// mirroring fuzzer.Options (spec.md §4.4).
type config struct {
	baseURL     string
	method      string
	path        string
	wordlist    string
	encoders    string
	iterator    string
	rlevel      int
	concurrent  int
	dryRun      bool
	prefilter   string
	postfilter  string
	header      string
	timeout     time.Duration
	rps         float64
	breakerN    int
	retries     int
	savePath    string
	natsURL     string
	natsSubj    string
	metricsPort int
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := parseFlags()

	if err := run(cfg, logger); err != nil {
		logger.Error("gofuzz exited with error", "err", err)
		os.Exit(1)
	}
}

func parseFlags() config {
	var cfg config
	flag.StringVar(&cfg.baseURL, "u", "", "target base URL, scheme+host (e.g. http://localhost:8080)")
	flag.StringVar(&cfg.method, "X", "GET", "HTTP method for the seed request")
	flag.StringVar(&cfg.path, "path", "/FUZZ", "seed path, containing FUZZ/FUZ2Z/... markers")
	flag.StringVar(&cfg.wordlist, "w", "", "path to a wordlist file, one payload per line")
	flag.StringVar(&cfg.encoders, "e", "", "comma-separated encoder specs (e.g. \"urlencode,md5@base64\")")
	flag.StringVar(&cfg.iterator, "iterator", "", "iterator plugin name (product, zip, chain); rejected as a configuration error with the single -w dictionary")
	flag.IntVar(&cfg.rlevel, "R", 0, "max recursion level")
	flag.IntVar(&cfg.concurrent, "c", 10, "max concurrent in-flight HTTP requests")
	flag.BoolVar(&cfg.dryRun, "dryrun", false, "validate the pipeline without dispatching HTTP requests")
	flag.StringVar(&cfg.prefilter, "prefilter", "", "filterexpr predicate applied before dispatch")
	flag.StringVar(&cfg.postfilter, "postfilter", "", "filterexpr predicate applied to completed results")
	flag.StringVar(&cfg.header, "H", "", "response header name headergrep enriches results with")
	flag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per-request HTTP timeout")
	flag.Float64Var(&cfg.rps, "rate", 0, "max requests/sec per run, 0 disables rate limiting")
	flag.IntVar(&cfg.breakerN, "breaker-threshold", 0, "consecutive failures before the circuit breaker trips, 0 disables it")
	flag.IntVar(&cfg.retries, "retries", 1, "max attempts per request, including the first")
	flag.StringVar(&cfg.savePath, "save", "", "path to append JSON-lines results to, empty disables")
	flag.StringVar(&cfg.natsURL, "nats-url", envOr("GOFUZZ_NATS_URL", ""), "NATS server URL for result fan-out, empty disables")
	flag.StringVar(&cfg.natsSubj, "nats-subject", envOr("GOFUZZ_NATS_SUBJECT", "gofuzz.results"), "NATS subject results are published to")
	flag.IntVar(&cfg.metricsPort, "metrics-port", envOrInt("GOFUZZ_METRICS_PORT", 9090), "port the /metrics endpoint listens on, 0 disables it")
	flag.Parse()
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func run(cfg config, logger *slog.Logger) error {
	if cfg.baseURL == "" {
		return fmt.Errorf("gofuzz: -u is required")
	}
	if cfg.wordlist == "" {
		return fmt.Errorf("gofuzz: -w is required")
	}

	runID := uuid.New().String()
	logger = logger.With("run_id", runID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.metricsPort > 0 {
		srv := newMetricsServer(cfg.metricsPort, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server exited", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx)
		}()
		logger.Info("metrics endpoint listening", "port", cfg.metricsPort)
	}

	registry := builtin.NewDefaultRegistry()
	registry.RegisterScript(builtin.NewHeadergrepScript(firstNonEmpty(cfg.header, "Server")))

	words, err := loadWordlist(cfg.wordlist)
	if err != nil {
		return fmt.Errorf("gofuzz: load wordlist: %w", err)
	}

	seed := httpwire.Request{Method: cfg.method, Path: cfg.path, Version: "HTTP/1.1"}
	seed.Headers.Set("Host", hostOf(cfg.baseURL))

	var encoderSpecs []string
	if cfg.encoders != "" {
		encoderSpecs = fn.Filter(strings.Split(cfg.encoders, ","), func(s string) bool { return s != "" })
	}

	genSpec := generator.Spec{
		Sources: func() ([]plugin.PayloadSource, error) {
			src := builtin.NewWordlistSource(words)
			return []plugin.PayloadSource{generator.NewDictionary(src, encoderSpecs, registry)}, nil
		},
		Iterator: cfg.iterator,
		Registry: registry,
	}

	evaluator := filterexpr.NewEvaluator()

	var dispatcher plugin.HttpDispatcher
	if !cfg.dryRun {
		var limiter *rate.Limiter
		if cfg.rps > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.rps), int(cfg.rps)+1)
		}
		var breaker *resilience.Breaker
		if cfg.breakerN > 0 {
			opts := resilience.DefaultBreakerOpts
			opts.FailThreshold = cfg.breakerN
			breaker = resilience.NewBreaker(opts)
		}
		retry := fn.DefaultRetry
		retry.MaxAttempts = cfg.retries
		dispatcher = httpstage.NewClientDispatcher(cfg.baseURL, cfg.timeout, limiter, breaker, retry, cfg.concurrent)
		defer dispatcher.Close()
	}

	var sinks []stage.Sink
	var saveFile *os.File
	if cfg.savePath != "" {
		saveFile, err = os.OpenFile(cfg.savePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("gofuzz: open -save path: %w", err)
		}
		defer saveFile.Close()
		sinks = append(sinks, stage.NewFileSink(saveFile))
	}
	var nc *nats.Conn
	if cfg.natsURL != "" {
		nc, err = nats.Connect(cfg.natsURL)
		if err != nil {
			return fmt.Errorf("gofuzz: connect nats: %w", err)
		}
		defer nc.Close()
		sinks = append(sinks, stage.NewNatsSink(nc, cfg.natsSubj))
		logger.Info("publishing results to nats", "url", cfg.natsURL, "subject", cfg.natsSubj)
	}

	base, _ := registry.Printer("plain")
	printer := &errorCountingPrinter{Printer: base}

	opts := fuzzer.Options{
		Seed:            seed,
		GeneratorSpec:   genSpec,
		QueueCapacity:   1024,
		FilterEvaluator: evaluator,
		Prefilter:       cfg.prefilter,
		Postfilter:      cfg.postfilter,
		DryRun:          cfg.dryRun,
		Dispatcher:      dispatcher,
		Scripts:         scriptsFor(registry),
		PluginWorkers:   4,
		RecurseMaxLevel: cfg.rlevel,
		Sinks:           sinks,
		Printer:         printer,
	}

	f, err := fuzzer.New(opts, logger)
	if err != nil {
		return fmt.Errorf("gofuzz: build pipeline: %w", err)
	}

	tracer := otel.Tracer("cmd/gofuzz")
	runCtx, span := tracer.Start(ctx, "fuzz.run", trace.WithAttributes(attribute.String("run_id", runID)))
	start := time.Now()

	f.Start(runCtx)
	go func() {
		<-runCtx.Done()
		f.Cancel()
	}()

	for range f.Results(runCtx) {
		// PrinterStage already wrote each line to stdout; this drains
		// the terminal queue so the pipeline can observe poison and exit.
	}

	waitErr := f.Wait()
	span.End()
	mRunTime.Observe(time.Since(start).Seconds())

	snap := f.Stats()
	mRequests.Add(snap.Processed)
	mFiltered.Add(snap.Filtered)
	mBackfeed.Add(snap.Backfeed)
	mPending.Set(snap.PendingFuzz)
	logger.Info("run complete",
		"processed", snap.Processed,
		"filtered", snap.Filtered,
		"backfeed", snap.Backfeed,
		"cancelled", snap.Cancelled,
		"duration", snap.TotalTime,
	)
	return waitErr
}

// errorCountingPrinter wraps the reference plain printer to tally
// gofuzz_errors_total, the one per-result detail the FuzzStats
// snapshot doesn't already carry (spec.md §3: every type=error result
// carries an Exception).
type errorCountingPrinter struct {
	plugin.Printer
}

func (p *errorCountingPrinter) Print(res *model.FuzzResult) string {
	if res.Type == model.TypeError {
		mErrors.Inc()
	}
	return p.Printer.Print(res)
}

func scriptsFor(r plugin.Registry) []plugin.ScriptPlugin {
	s, ok := r.Script("headergrep")
	if !ok {
		return nil
	}
	return []plugin.ScriptPlugin{s}
}

func loadWordlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return fn.Unique(words), nil
}

func hostOf(baseURL string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return s
}

func firstNonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

// newMetricsServer wraps the metrics registry's /metrics handler with
// the teacher's mid.Logger/mid.Recover middleware, mirroring
// cmd/api's mid.Chain usage, rather than reaching for met.ServeAsync's
// bare http.ListenAndServe (no recovery, no request logging).
func newMetricsServer(port int, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", met.Handler())
	handler := mid.Chain(mux, mid.Recover(logger), mid.Logger(logger))
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
