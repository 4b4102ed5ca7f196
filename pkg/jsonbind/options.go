package jsonbind

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/fiam/jsonbind/pkg/jsonbind/format"
)

const (
	defaultMaxBodyBytes = 1 << 20
)

type options struct {
	Logger           *slog.Logger
	InputFormatters  []format.InputFormatter
	OutputFormatters []format.OutputFormatter
	// MaxBodyBytes caps request bodies, <= 0 disables the limit
	MaxBodyBytes int64
	Validate     bool
	CORSOrigins  []string
	RateLimit    rate.Limit
	RateBurst    int
}

// defaultOptions reads forms first and falls back to JSON, which accepts
// every request. Responses are JSON unless the client asks for XML.
func defaultOptions() options {
	return options{
		InputFormatters:  []format.InputFormatter{&format.Form{}, format.NewJSON()},
		OutputFormatters: []format.OutputFormatter{&format.JSONOutput{}, &format.XMLOutput{}},
		MaxBodyBytes:     defaultMaxBodyBytes,
		Validate:         true,
	}
}

type Option func(opt *options)

func WithLogger(logger *slog.Logger) Option {
	return func(opt *options) {
		opt.Logger = logger
	}
}

// WithInputFormatters replaces the input formatters. They're tried in
// order and the first one whose CanRead returns true reads the body.
func WithInputFormatters(formatters ...format.InputFormatter) Option {
	return func(opt *options) {
		opt.InputFormatters = formatters
	}
}

// WithOutputFormatters replaces the output formatters. The first one is
// used when content negotiation doesn't select any other.
func WithOutputFormatters(formatters ...format.OutputFormatter) Option {
	return func(opt *options) {
		opt.OutputFormatters = formatters
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(opt *options) {
		opt.MaxBodyBytes = n
	}
}

// WithValidation enables or disables validating bound models using their
// `validate` struct tags.
func WithValidation(enabled bool) Option {
	return func(opt *options) {
		opt.Validate = enabled
	}
}

// WithCORS allows cross-origin requests from the given origins. Use "*"
// to allow any origin.
func WithCORS(origins ...string) Option {
	return func(opt *options) {
		opt.CORSOrigins = origins
	}
}

// WithRateLimit limits each client address to limit requests per second
// with the given burst. A zero limit disables rate limiting.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(opt *options) {
		opt.RateLimit = limit
		opt.RateBurst = burst
	}
}
