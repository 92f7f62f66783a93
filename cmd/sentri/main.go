package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sentri-project/sentri/internal/batch"
	"github.com/sentri-project/sentri/internal/cache"
	"github.com/sentri-project/sentri/internal/dnsclient"
	"github.com/sentri-project/sentri/internal/httpclient"
	"github.com/sentri-project/sentri/internal/output"
	"github.com/sentri-project/sentri/internal/probe"
	"github.com/sentri-project/sentri/internal/ratelimit"
	"github.com/sentri-project/sentri/internal/retry"
)

var Version = "dev"

const (
	exitOK           = 0
	exitArgError     = 1
	exitIOError      = 2
	exitInternalFail = 3
)

type CLI struct {
	Concurrent int  `short:"c" default:"5" help:"Maximum in-flight probes."`
	Timeout    int  `short:"t" default:"5000" help:"Per-request timeout in milliseconds."`
	Verbose    bool `short:"v" help:"Enable verbose logging."`
	Debug      bool `help:"Enable debug logging (includes raw wire traffic)."`

	Single  SingleCmd  `cmd:"" help:"Probe a single domain."`
	Batch   BatchCmd   `cmd:"" help:"Probe domains listed in a file."`
	Version VersionCmd `cmd:"" help:"Print version."`
}

type SingleCmd struct {
	Domain    string `short:"d" required:"" help:"Domain to probe."`
	RateLimit int    `short:"r" default:"30" help:"Requests per minute against the federation endpoint."`
	Output    string `enum:"pretty,json" default:"pretty" help:"Output format."`
}

type BatchCmd struct {
	Input      string `short:"i" required:"" help:"Input file, one domain per line."`
	OutputFile string `short:"o" required:"" help:"Output file for JSONL records."`
	ChunkSize  int    `short:"s" default:"50" help:"Domains per chunk (max 10000)."`
	RateLimit  int    `short:"r" default:"30" help:"Requests per minute against the federation endpoint."`
}

type VersionCmd struct{}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("sentri"),
		kong.Description("Discover whether a domain's Microsoft 365 tenant deploys a Defender for Identity sensor."),
	)

	if kctx.Selected() != nil && kctx.Selected().Name == "version" {
		fmt.Println(Version)
		return
	}

	logger, err := newLogger(cli.Verbose, cli.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInternalFail)
	}
	defer logger.Sync()

	switch {
	case kctx.Selected() != nil && kctx.Selected().Name == "batch":
		runBatch(cli, logger)
	case kctx.Selected() != nil && kctx.Selected().Name == "single":
		runSingle(cli, logger)
	default:
		fmt.Fprintln(os.Stderr, "no subcommand selected")
		os.Exit(exitArgError)
	}
}

func buildProber(cli CLI, rateLimit int, logger *zap.Logger) (*cache.CachingProber, error) {
	timeout := time.Duration(cli.Timeout) * time.Millisecond

	httpClient := httpclient.New(httpclient.Config{
		VerifyCertificates: true,
		HTTP2:              true,
		RequestTimeout:     timeout,
	})

	resolvers, err := dnsclient.SystemResolvers()
	if err != nil {
		return nil, err
	}
	dnsClient := dnsclient.New(dnsclient.Options{
		Timeout: timeout,
		Retries: 3,
		Logger:  logger,
	})
	resolver := dnsclient.NewResolver(dnsClient, resolvers, logger)

	limiter := ratelimit.New(rateLimit)

	prober := probe.New(probe.Deps{
		HTTP:        httpClient,
		DNS:         resolver,
		Limiter:     limiter,
		Logger:      logger,
		RetryConfig: retry.Config{},
	})

	return cache.NewCachingProber(cache.New(0), prober), nil
}

func runSingle(cli CLI, logger *zap.Logger) {
	prober, err := buildProber(cli, cli.Single.RateLimit, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInternalFail)
	}

	ctx := context.Background()
	rec := prober.Probe(ctx, cli.Single.Domain)

	var rendered string
	if cli.Single.Output == "json" {
		rendered, err = output.RenderJSON(rec)
	} else {
		rendered = output.RenderPretty(rec)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInternalFail)
	}

	fmt.Println(rendered)
	os.Exit(exitOK)
}

func runBatch(cli CLI, logger *zap.Logger) {
	prober, err := buildProber(cli, cli.Batch.RateLimit, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInternalFail)
	}

	in, err := os.Open(cli.Batch.Input)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitIOError)
	}
	defer in.Close()

	out, err := os.Create(cli.Batch.OutputFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitIOError)
	}
	defer out.Close()

	ctx := context.Background()
	summary, err := batch.Run(ctx, in, out, prober, batch.Config{
		ChunkSize:  cli.Batch.ChunkSize,
		Concurrent: cli.Concurrent,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitIOError)
	}

	logger.Info("batch complete",
		zap.Int("processed", summary.Processed),
		zap.Int("errors", summary.Errors),
		zap.Duration("elapsed", summary.Elapsed),
	)
	os.Exit(exitOK)
}

// newLogger mirrors the teacher's verbose/debug level selection, additionally
// seeding the base level from SENTRI_LOG before flag overrides apply.
func newLogger(verbose, debug bool) (*zap.Logger, error) {
	level := levelFromEnv()

	if debug {
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		return cfg.Build()
	}

	cfg := zap.NewProductionConfig()
	switch {
	case verbose:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(level)
	}
	return cfg.Build()
}

func levelFromEnv() zapcore.Level {
	switch strings.ToLower(os.Getenv("SENTRI_LOG")) {
	case "trace", "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.WarnLevel
	}
}
