// Package config loads the configuration of the bridge command.
//
// The configuration is stored in bridge.json (or bridge.yaml / bridge.yml)
// in the working directory. Every field is optional; missing fields keep
// their defaults. Durations are written as Go duration strings.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "addr": ":8090",
//	    "readTimeout": "60s",
//	    "writeTimeout": "10s",
//	    "heartbeatInterval": "30s",
//	    "shutdownTimeout": "15s",
//	    "maxMessageSize": 65539,
//	    "mailboxSize": 128
//	  },
//	  "metrics": {"enabled": true, "namespace": "bridge", "path": "/metrics"},
//	  "tracing": {"tracerName": "bridge"},
//	  "redis": {"enabled": false, "addr": "localhost:6379", "topic": "bridge"},
//	  "log": {"level": "info", "format": "text"}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger := cfg.Log.Logger(os.Stderr)
package config
