package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"

	"github.com/fiam/jsonbind/pkg/jsonbind"
	"github.com/fiam/jsonbind/pkg/jsonbind/api"
	"github.com/fiam/jsonbind/pkg/jsonbind/buildinfo"
)

const programName = "jsonbind"

type config struct {
	Addr         string
	LogLevel     slog.Level
	MaxBodyBytes int64
	CORSOrigins  []string
	RateLimit    float64
	RateBurst    int
	ShowVersion  bool
}

func main() {
	// A missing .env file is fine, everything can come from the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal(err)
	}

	info := buildinfo.Current()
	cfg, err := parseConfig(os.Args[1:], os.Getenv, os.Stderr, info)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
	if cfg.ShowVersion {
		fmt.Println(formatVersionLine(programName, info))
		return
	}

	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stdout, &tint.Options{
			Level:      cfg.LogLevel,
			TimeFormat: time.Kitchen,
		}),
	))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	slog.Debug("starting server", slog.String("addr", cfg.Addr), slog.Any("build", info))

	srv, err := newServer(cfg, info)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()

	stop()
	slog.Debug("shutting down gracefully, press Ctrl+C again to force")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		if err := srv.Shutdown(timeoutCtx); err != nil {
			log.Fatalln(err)
		}
	}()

	select {
	case <-closed:
		slog.Info("shutdown completed")
	case <-timeoutCtx.Done():
		if timeoutCtx.Err() == context.DeadlineExceeded {
			log.Fatal("timeout exceeded, forcing shutdown")
		}
	}
}

// EchoRequest is bound from the body of POST /echo.
type EchoRequest struct {
	Message string   `json:"message" form:"message" validate:"required"`
	Tags    []string `json:"tags" form:"tags"`
	Count   int      `json:"count" form:"count" validate:"gte=0"`
}

type EchoResponse struct {
	Message   string   `json:"message" xml:"message"`
	Tags      []string `json:"tags" xml:"tags>tag"`
	Count     int      `json:"count" xml:"count"`
	RequestID string   `json:"requestId" xml:"requestId"`
}

func newServer(cfg config, info buildinfo.Info) (*jsonbind.Server, error) {
	opts := []jsonbind.Option{
		jsonbind.WithLogger(slog.Default()),
		jsonbind.WithMaxBodyBytes(cfg.MaxBodyBytes),
	}
	if len(cfg.CORSOrigins) > 0 {
		opts = append(opts, jsonbind.WithCORS(cfg.CORSOrigins...))
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, jsonbind.WithRateLimit(rate.Limit(cfg.RateLimit), cfg.RateBurst))
	}
	srv, err := jsonbind.NewServer(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing server: %w", err)
	}

	jsonbind.Handle(srv, "POST /echo", func(ctx context.Context, req *EchoRequest) (*EchoResponse, error) {
		return &EchoResponse{
			Message:   req.Message,
			Tags:      req.Tags,
			Count:     req.Count,
			RequestID: api.RequestID(ctx),
		}, nil
	})
	jsonbind.Handle(srv, "GET /version", func(ctx context.Context, _ *struct{}) (buildinfo.Info, error) {
		return info, nil
	})
	return srv, nil
}

func parseConfig(args []string, getenv func(string) string, output io.Writer, info buildinfo.Info) (config, error) {
	flags := flag.NewFlagSet(programName, flag.ContinueOnError)
	configureUsage(flags, output, programName, info)

	addr := flags.String("addr", envOr(getenv, "ADDR", "0.0.0.0:8080"), "Address to listen on (ADDR)")
	logLevel := flags.String("log-level", envOr(getenv, "LOG_LEVEL", "info"), "Log level: debug, info, warn or error (LOG_LEVEL)")
	maxBodyBytes := flags.Int64("max-body-bytes", 1<<20, "Maximum request body size, 0 for no limit (MAX_BODY_BYTES)")
	corsOrigins := flags.String("cors-origins", getenv("CORS_ORIGINS"), "Comma separated list of allowed CORS origins (CORS_ORIGINS)")
	rateLimit := flags.Float64("rate-limit", 0, "Requests per second allowed per client, 0 disables it (RATE_LIMIT)")
	rateBurst := flags.Int("rate-burst", 10, "Burst size for the per client rate limit (RATE_BURST)")
	showVersion := flags.Bool("version", false, "Print version information and exit")

	if err := setNumericDefaults(flags, getenv); err != nil {
		return config{}, err
	}
	if err := flags.Parse(args); err != nil {
		return config{}, err
	}

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return config{}, err
	}
	cfg := config{
		Addr:         *addr,
		LogLevel:     level,
		MaxBodyBytes: *maxBodyBytes,
		RateLimit:    *rateLimit,
		RateBurst:    *rateBurst,
		ShowVersion:  *showVersion,
	}
	for origin := range strings.SplitSeq(*corsOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}
	return cfg, nil
}

// setNumericDefaults overrides flag defaults from the environment, so
// malformed values are reported like malformed flags.
func setNumericDefaults(flags *flag.FlagSet, getenv func(string) string) error {
	for name, env := range map[string]string{
		"max-body-bytes": "MAX_BODY_BYTES",
		"rate-limit":     "RATE_LIMIT",
		"rate-burst":     "RATE_BURST",
	} {
		value := getenv(env)
		if value == "" {
			continue
		}
		if err := flags.Set(name, value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", env, value, err)
		}
	}
	return nil
}

func envOr(getenv func(string) string, key string, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func formatVersionLine(name string, info buildinfo.Info) string {
	return info.Line(name)
}

func configureUsage(flags *flag.FlagSet, output io.Writer, name string, info buildinfo.Info) {
	flags.SetOutput(output)
	flags.Usage = func() {
		fmt.Fprintf(output, "Usage:\n  %s [flags]\n\n", name)
		fmt.Fprintf(output, "Build:\n  %s\n\n", formatVersionLine(name, info))
		fmt.Fprintln(output, "Flags:")
		flags.PrintDefaults()
	}
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", level)
}
