package main

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/wsm/internal/config"
	"github.com/vango-dev/wsm/internal/errors"
	"github.com/vango-dev/wsm/internal/source"
	"github.com/vango-dev/wsm/pkg/protocol"
	"github.com/vango-dev/wsm/pkg/session"
	"github.com/vango-dev/wsm/pkg/transport"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string
	noColor     bool
}

// load reads wsm.json, applies flag overrides and validates the result. A
// missing file is not an error unless --config named it.
func (o *globalOptions) load(override func(*config.Config)) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.LoadFromWorkingDir()
		if hasCode(err, "W040") {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Address = o.metricsAddr
	}
	if override != nil {
		override(cfg)
	}
	if strings.EqualFold(cfg.Log.Format, "json") {
		errors.SetStyle(errors.StyleJSON)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func hasCode(err error, code string) bool {
	var e *errors.Error
	return stderrors.As(err, &e) && e.Code == code
}

// newLogger builds the slog handler selected by the log settings.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// serveMetrics exposes the default Prometheus registry on cfg.Metrics.Address
// until ctx is done. It does nothing when no address is configured.
func serveMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	addr := cfg.Metrics.Address
	if addr == "" {
		return
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

// openSession connects a client session. rawURL overrides the configured URL
// and may use http or https.
func openSession(ctx context.Context, cfg *config.Config, rawURL string, logger *slog.Logger) (*session.Session, error) {
	sc, err := cfg.SessionConfig()
	if err != nil {
		return nil, err
	}
	if rawURL != "" {
		sc.URL = rawURL
	}
	if sc.URL == "" {
		return nil, errors.New("W080").
			WithDetail("No WebSocket URL given.").
			WithSuggestion(`Pass a URL or set "url" in wsm.json`)
	}
	if strings.HasPrefix(sc.URL, "http://") || strings.HasPrefix(sc.URL, "https://") {
		if sc.URL, err = transport.WebSocketURL(sc.URL, ""); err != nil {
			return nil, errors.New("W042").Wrap(err)
		}
	}

	sc.Logger = logger
	if cfg.Metrics.Address != "" {
		sc.Metrics = session.NewMetrics(session.WithNamespace(cfg.Metrics.Namespace))
	}

	s, err := session.Connect(ctx, sc)
	if err != nil {
		return nil, sessionErr(err)
	}
	return s, nil
}

// sessionErr maps session failures to CLI error codes.
func sessionErr(err error) error {
	if err == nil {
		return nil
	}
	var code string
	switch {
	case stderrors.Is(err, session.ErrInvalidConfig):
		code = "W042"
	case stderrors.Is(err, session.ErrRetriesExhausted):
		code = "W002"
	case stderrors.Is(err, session.ErrHeartbeatTimeout):
		code = "W003"
	case stderrors.Is(err, session.ErrSessionClosed):
		code = "W004"
	case stderrors.Is(err, protocol.ErrInvalidCloseCode), stderrors.Is(err, protocol.ErrReservedCloseCode):
		code = "W020"
	case stderrors.Is(err, protocol.ErrInvalidData), stderrors.Is(err, session.ErrControlOpcode),
		stderrors.Is(err, session.ErrUnknownOpcode):
		code = "W021"
	default:
		code = "W001"
	}
	return errors.FromError(err, code)
}

// sourceErr maps payload loading failures to CLI error codes.
func sourceErr(err error, ref string) error {
	switch {
	case stderrors.Is(err, source.ErrTooLarge):
		return errors.New("W061").Wrap(err)
	case strings.HasPrefix(ref, "s3://"):
		return errors.New("W062").WithDetail("Could not read " + ref + ".").Wrap(err)
	default:
		return errors.New("W060").WithDetail("Could not read " + ref + ".").Wrap(err)
	}
}
