package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/vango-dev/wsm/internal/config"
	"github.com/vango-dev/wsm/internal/errors"
	"github.com/vango-dev/wsm/pkg/protocol"
	"github.com/vango-dev/wsm/pkg/server"
)

type serveOptions struct {
	address     string
	path        string
	greeting    string
	maxPeers    int
	maxPerIP    int
	metricsPath string
	echo        bool
}

func serveCmd(opts *globalOptions) *cobra.Command {
	var so serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a peer server",
		Long: `Run a WebSocket server that speaks the framing protocol.

Every peer is greeted with a PING frame and a "connected" envelope. PINGs
are answered with PONG and a CLOSE frame ends the peer. With --echo, TEXT
and BINARY frames are sent back to the peer that sent them.

The server also answers /healthz and exposes Prometheus metrics on
--metrics-path.

Examples:
  wsm serve
  wsm serve --addr :9000 --echo
  wsm serve --max-peers-per-ip 5 --greeting hello`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(func(c *config.Config) {
				if so.address != "" {
					c.Server.Address = so.address
				}
				if so.path != "" {
					c.Server.Path = so.path
				}
				if so.greeting != "" {
					c.Server.Greeting = so.greeting
				}
				if so.maxPeers > 0 {
					c.Server.MaxPeers = so.maxPeers
				}
				if so.maxPerIP > 0 {
					c.Server.MaxPeersPerIP = so.maxPerIP
				}
			})
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, so)
		},
	}

	cmd.Flags().StringVarP(&so.address, "addr", "a", "", "Listen address (default from wsm.json, then :8080)")
	cmd.Flags().StringVar(&so.path, "path", "", "WebSocket path (default /_ws)")
	cmd.Flags().StringVar(&so.greeting, "greeting", "", "Data of the connected envelope (default Bonjour)")
	cmd.Flags().IntVar(&so.maxPeers, "max-peers", 0, "Maximum concurrent peers")
	cmd.Flags().IntVar(&so.maxPerIP, "max-peers-per-ip", 0, "Maximum concurrent peers per client address")
	cmd.Flags().StringVar(&so.metricsPath, "metrics-path", "/metrics", "Serve Prometheus metrics on this path; empty disables")
	cmd.Flags().BoolVar(&so.echo, "echo", false, "Send every TEXT and BINARY frame back to its peer")

	return cmd
}

// newServer builds the peer server for the serve command.
func newServer(cfg *config.Config, so serveOptions, logger *slog.Logger) (*server.Server, error) {
	sc, err := cfg.ServerConfig()
	if err != nil {
		return nil, err
	}
	sc.Logger = logger
	sc.MetricsPath = so.metricsPath
	sc.Metrics = server.NewMetrics(server.WithNamespace(cfg.Metrics.Namespace))

	if so.echo {
		sc.OnEnvelope = func(p *server.Peer, env protocol.Envelope) {
			var data any
			if env.HasData() {
				data = env.Data
			}
			p.Emit(env.Type, data)
		}
		sc.OnText = func(p *server.Peer, text string) { p.Send(text) }
		sc.OnBinary = func(p *server.Peer, data []byte) { p.Send(data) }
	}
	return server.New(sc), nil
}

func runServe(parent context.Context, cfg *config.Config, so serveOptions) error {
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	s, err := newServer(cfg, so, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	if parent != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-parent.Done():
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	serveMetrics(ctx, cfg, logger)

	printBanner()
	info("Listening on %s%s", cfg.Server.Address, cfg.Server.Path)
	if err := s.Run(ctx); err != nil {
		return errors.New("W081").Wrap(err)
	}
	success("Server stopped")
	return nil
}
