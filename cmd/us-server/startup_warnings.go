package main

import (
	"log/slog"

	"github.com/Muhammd-hafeef-th/Us/internal/config"
)

// Warning codes are stable identifiers for log-based alerting.
const (
	warnOriginsWildcard   = "allowed_origins_wildcard"
	warnOriginsEmpty      = "allowed_origins_empty"
	warnReportsInMemory   = "reports_in_memory"
	warnNoICEServers      = "no_ice_servers"
	warnLargeMessageLimit = "large_message_limit"
)

// logStartupWarnings flags configurations that run fine but are unlikely to be
// what an operator wants in production.
func logStartupWarnings(log *slog.Logger, cfg config.Config) {
	prod := cfg.Mode == config.ModeProd

	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			log.Warn("allowed origins contains a wildcard; any site can open WebSocket connections",
				"warning_code", warnOriginsWildcard)
			break
		}
	}

	if prod && len(cfg.AllowedOrigins) == 0 {
		log.Warn("no allowed origins configured in prod mode; only same-host browser origins will be accepted",
			"warning_code", warnOriginsEmpty,
			"env", "ALLOWED_ORIGINS")
	}

	if prod && cfg.ReportsDir == "" {
		log.Warn("abuse report store is in-memory; reports will be lost on restart",
			"warning_code", warnReportsInMemory,
			"env", "US_REPORTS_DIR")
	}

	if prod && len(cfg.ICEServers) == 0 {
		log.Warn("no ICE servers configured; clients behind NAT may fail to establish video sessions",
			"warning_code", warnNoICEServers)
	}

	if cfg.MaxMessageBytes > 1<<20 {
		log.Warn("max message size is over 1 MiB; a single client can hold large buffers",
			"warning_code", warnLargeMessageLimit,
			"max_message_bytes", cfg.MaxMessageBytes)
	}
}
