package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tablecraft/export-worker/internal/blobstore"
	"github.com/tablecraft/export-worker/internal/clock"
	"github.com/tablecraft/export-worker/internal/config"
	"github.com/tablecraft/export-worker/internal/jobstore"
	platformlog "github.com/tablecraft/export-worker/internal/platform/log"
	"github.com/tablecraft/export-worker/internal/notifier"
	"github.com/tablecraft/export-worker/internal/obs"
	"github.com/tablecraft/export-worker/internal/poller"
	"github.com/tablecraft/export-worker/internal/processor"
	"github.com/tablecraft/export-worker/internal/renderer"
	"github.com/tablecraft/export-worker/internal/renderpool"
	"github.com/tablecraft/export-worker/internal/retrypolicy"
	"github.com/tablecraft/export-worker/internal/supervisor"
)

var version = "dev"

// main defers to run so deferred cleanup (logger sync, tracer drain, store
// close) executes before the process exit code is surfaced.
func main() {
	os.Exit(run())
}

func run() int {
	var role string
	var configPath string
	var adminCmd string
	var adminState string
	var adminN int
	var showVersion bool

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&role, "role", "worker", "Role to run: worker|admin")
	fs.StringVar(&configPath, "config", "", "Optional YAML config overlay path")
	fs.StringVar(&adminCmd, "admin-cmd", "stats", "Admin command: stats|peek")
	fs.StringVar(&adminState, "state", "pending", "Admin peek: job state to inspect")
	fs.IntVar(&adminN, "n", 20, "Admin peek: max rows to return")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return 0
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	log, err := platformlog.New(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	tp, err := obs.MaybeInitTracing(obs.TracingConfig{
		Enabled:  cfg.Observability.Tracing.Enabled,
		Endpoint: cfg.Observability.Tracing.Endpoint,
	})
	if err != nil {
		log.Warn("tracing_init_failed", zap.Error(err))
	}
	defer func() { _ = obs.TracerShutdown(context.Background(), tp) }()

	store, err := jobstore.NewPostgres(context.Background(), jobstore.PostgresConfig{
		DSN:        cfg.Store.URL,
		MaxRetries: cfg.DB.MaxRetries,
		RetryDelay: cfg.DB.RetryDelay,
	}, log)
	if err != nil {
		log.Error("jobstore_init_failed", zap.Error(err))
		return 1
	}
	defer store.Close()

	// STORE_URL/STORE_KEY name the combined JobStore+BlobStore endpoint and
	// credential per spec §6; the Postgres DSN above consumes STORE_URL
	// directly, while S3 access relies on the AWS SDK's standard
	// credential chain (env vars or an attached IAM role) rather than a
	// second hand-rolled credential path. BLOB_ENDPOINT/BLOB_REGION let an
	// operator point at an S3-compatible provider (e.g. MinIO) instead.
	blobs, err := blobstore.NewS3(blobstore.S3Config{
		Bucket:          cfg.Store.Bucket,
		Region:          envOr("BLOB_REGION", "us-east-1"),
		Endpoint:        os.Getenv("BLOB_ENDPOINT"),
		ForcePathStyle:  os.Getenv("BLOB_ENDPOINT") != "",
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		PublicBaseURL:   os.Getenv("BLOB_PUBLIC_BASE_URL"),
	}, cfg.CircuitBreaker.CooldownPeriod, cfg.CircuitBreaker.ConsecutiveTrip, log)
	if err != nil {
		log.Error("blobstore_init_failed", zap.Error(err))
		return 1
	}

	if role == "admin" {
		return runAdmin(context.Background(), store, adminCmd, adminState, adminN)
	}

	pool := renderpool.New(renderpool.Options{
		Capacity:            cfg.Render.MaxRenders,
		JobTimeout:          cfg.Render.JobTimeout,
		BrowserExecutable:   cfg.Render.BrowserExecutable,
		AllowedHostSuffixes: cfg.Render.AllowedHostSuffixes,
		Log:                 log,
	})

	if err := supervisor.RunCanary(context.Background(), cfg, pool); err != nil {
		log.Error("startup_canary_failed", zap.Error(err))
		return 1
	}

	tmplRenderer, err := renderer.NewDefault()
	if err != nil {
		log.Error("renderer_init_failed", zap.Error(err))
		return 1
	}

	notify := notifier.NewLogging(log)
	retry := retrypolicy.Policy{Base: cfg.Retry.Base, Cap: cfg.Retry.Cap, MaxRetries: cfg.Retry.MaxRetries}
	proc := processor.New(store, blobs, pool, tmplRenderer, notify, retry, log)

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = clock.WorkerID()
	}
	priorities := []jobstore.Family{jobstore.FamilyExtraction, jobstore.FamilyExport}
	if !cfg.ExtractionFirst {
		priorities = []jobstore.Family{jobstore.FamilyExport, jobstore.FamilyExtraction}
	}
	p := poller.New(store, proc, poller.Options{
		WorkerID:   workerID,
		Busy:       cfg.Poll.Busy,
		Idle:       cfg.Poll.Idle,
		Priorities: priorities,
	}, log)

	obs.StartQueueDepthUpdater(context.Background(), 15*time.Second,
		[]string{string(jobstore.FamilyExtraction), string(jobstore.FamilyExport)},
		func(ctx context.Context, family string) (int64, error) {
			return store.QueueDepth(ctx, jobstore.Family(family))
		}, log)
	obs.StartRenderPoolUpdater(context.Background(), 5*time.Second, func() int { return pool.Stats().InUse })

	sup := supervisor.New(cfg, log, store, blobs, pool, p)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("signal_received", zap.String("signal", sig.String()))
		cancel()
		<-sigCh // a second signal is observed but ignored per the shutdown contract
	}()

	exitCode := sup.Run(ctx)
	signal.Stop(sigCh)
	return exitCode
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runAdmin(ctx context.Context, store jobstore.Store, cmd, state string, n int) int {
	switch cmd {
	case "stats":
		stats, err := store.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "admin stats error: %v\n", err)
			return 1
		}
		b, _ := json.MarshalIndent(stats, "", "  ")
		fmt.Println(string(b))
	case "peek":
		jobs, err := store.Peek(ctx, jobstore.State(state), n)
		if err != nil {
			fmt.Fprintf(os.Stderr, "admin peek error: %v\n", err)
			return 1
		}
		b, _ := json.MarshalIndent(jobs, "", "  ")
		fmt.Println(string(b))
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", cmd)
		return 1
	}
	return 0
}
