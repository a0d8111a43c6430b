// Package server is the server side of the opcode framing protocol.
//
// A Server upgrades HTTP requests on Config.Path to WebSocket connections
// and serves each one as a Peer. On open the peer is sent a PING frame
// followed by the envelope {"type":"connected","data":<Greeting>}. After
// that the server answers PING with PONG, ends the peer on CLOSE, and hands
// TEXT and BINARY frames to the configured hooks: frames holding a JSON
// envelope go to OnEnvelope, plain text to OnText and raw bytes to OnBinary.
//
// Basic usage:
//
//	s := server.New(&server.Config{
//	    Address: ":8080",
//	    OnEnvelope: func(p *server.Peer, env protocol.Envelope) {
//	        p.Emit("echo", env.Data)
//	    },
//	})
//	if err := s.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// The router also serves /healthz and, when Config.MetricsPath is set,
// Prometheus metrics from Config.Gatherer.
//
// Admission is limited by Config.MaxPeers and Config.MaxPeersPerIP. The
// client address comes from the socket unless the request arrived through
// one of Config.TrustedProxies, in which case Forwarded and X-Forwarded-For
// are consulted.
package server
