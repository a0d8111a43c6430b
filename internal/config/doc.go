// Package config loads wsm.json, the optional configuration file read by
// the wsm command.
//
// Command-line flags override file values. Durations are Go duration
// strings.
//
// # Configuration File Structure
//
//	{
//	  "url": "wss://example.com/_ws",
//	  "protocols": ["wsm.v1"],
//	  "session": {
//	    "maxReconnectAttempts": 5,
//	    "reconnectInterval": "1s",
//	    "maxReconnectDelay": "30s",
//	    "pingInterval": "30s",
//	    "pingTimeout": "60s"
//	  },
//	  "server": {
//	    "address": ":8080",
//	    "path": "/_ws",
//	    "maxPeersPerIP": 10
//	  },
//	  "log": {"level": "info", "format": "text"},
//	  "metrics": {"address": ":9090"},
//	  "source": {
//	    "maxBytes": 16777216,
//	    "s3": {"region": "us-east-1"}
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sessionCfg, err := cfg.SessionConfig()
package config
