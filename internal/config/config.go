// Package config loads and validates server configuration from environment
// variables and command-line flags. Env values act as flag defaults, so an
// explicitly passed flag always wins.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pion/webrtc/v4"

	"github.com/Muhammd-hafeef-th/Us/internal/origin"
)

const (
	envVarListenAddr      = "US_LISTEN_ADDR"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarMode            = "US_MODE"
	envVarLogFormat       = "US_LOG_FORMAT"
	envVarLogLevel        = "US_LOG_LEVEL"
	envVarShutdownTimeout = "US_SHUTDOWN_TIMEOUT"

	// WebSocket hardening knobs.
	envVarWSIdleTimeout        = "US_WS_IDLE_TIMEOUT"
	envVarWSPingInterval       = "US_WS_PING_INTERVAL"
	envVarWSWriteTimeout       = "US_WS_WRITE_TIMEOUT"
	envVarMaxMessageBytes      = "US_MAX_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "US_MAX_MESSAGES_PER_SECOND"
	envVarSendQueueBytes       = "US_SEND_QUEUE_BYTES"

	// Chat moderation.
	envVarChatFilterWords = "US_CHAT_FILTER_WORDS"
	envVarChatFilterMask  = "US_CHAT_FILTER_MASK"

	// Abuse report persistence.
	envVarReportsDir = "US_REPORTS_DIR"

	DefaultListenAddr           = "127.0.0.1:8080"
	DefaultShutdown             = 15 * time.Second
	DefaultMode            Mode = ModeDev
	DefaultWSIdleTimeout        = 60 * time.Second
	DefaultWSPingInterval       = 20 * time.Second
	DefaultWSWriteTimeout       = 10 * time.Second
	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultMaxMessagesPerSecond = 50
	DefaultSendQueueBytes       = 256 * 1024
	DefaultChatFilterMask       = "*"
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	// WebSocket hardening.
	WSIdleTimeout  time.Duration
	WSPingInterval time.Duration
	WSWriteTimeout time.Duration
	// MaxMessageBytes caps a single inbound WebSocket message. It must leave
	// room for negotiation payloads (SDP offers run to a few KB), not just
	// chat text.
	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	// SendQueueBytes caps queued outbound bytes per connection before frames
	// are dropped.
	SendQueueBytes int

	// ChatFilterWords enables the chat censor when non-empty.
	ChatFilterWords []string
	ChatFilterMask  rune

	// ReportsDir is the badger directory for abuse reports. Empty means
	// in-memory (reports do not survive a restart).
	ReportsDir string

	// ICEServers is handed to clients verbatim for their RTCPeerConnection
	// setup; the server itself never dials them.
	ICEServers []webrtc.ICEServer
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")
	chatFilterWordsStr := envOrDefault(lookup, envVarChatFilterWords, "")
	chatFilterMaskStr := envOrDefault(lookup, envVarChatFilterMask, DefaultChatFilterMask)
	reportsDir := envOrDefault(lookup, envVarReportsDir, "")
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	shutdownTimeout := DefaultShutdown
	if raw, ok := lookup(envVarShutdownTimeout); ok && raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarShutdownTimeout, raw, err)
		}
		shutdownTimeout = d
	}

	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	wsWriteTimeout, err := envDurationOrDefault(lookup, envVarWSWriteTimeout, DefaultWSWriteTimeout)
	if err != nil {
		return Config{}, err
	}

	maxMessageBytes := DefaultMaxMessageBytes
	if raw, ok := lookup(envVarMaxMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxMessageBytes, raw, err)
		}
		maxMessageBytes = n
	}

	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxMessagesPerSecond, DefaultMaxMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	sendQueueBytes, err := envIntOrDefault(lookup, envVarSendQueueBytes, DefaultSendQueueBytes)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet("us-server", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr      string
		logFormatStr string
		logLevelStr  string
	)

	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port)")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")
	fs.DurationVar(&wsIdleTimeout, "ws-idle-timeout", wsIdleTimeout, "Close idle WebSocket connections after this duration (env "+envVarWSIdleTimeout+")")
	fs.DurationVar(&wsPingInterval, "ws-ping-interval", wsPingInterval, "Send ping frames at this interval (must be < --ws-idle-timeout; env "+envVarWSPingInterval+")")
	fs.DurationVar(&wsWriteTimeout, "ws-write-timeout", wsWriteTimeout, "Per-frame WebSocket write deadline (env "+envVarWSWriteTimeout+")")
	fs.Int64Var(&maxMessageBytes, "max-message-bytes", maxMessageBytes, "Max inbound WebSocket message size in bytes (env "+envVarMaxMessageBytes+")")
	fs.IntVar(&maxMessagesPerSecond, "max-messages-per-second", maxMessagesPerSecond, "Max inbound WebSocket messages per second per connection (env "+envVarMaxMessagesPerSecond+")")
	fs.IntVar(&sendQueueBytes, "send-queue-bytes", sendQueueBytes, "Max queued outbound bytes per connection before dropping (env "+envVarSendQueueBytes+")")
	fs.StringVar(&chatFilterWordsStr, "chat-filter-words", chatFilterWordsStr, "Comma-separated words to censor in chat messages (empty = filter disabled; env "+envVarChatFilterWords+")")
	fs.StringVar(&chatFilterMaskStr, "chat-filter-mask", chatFilterMaskStr, "Replacement character for censored chat text (env "+envVarChatFilterMask+")")
	fs.StringVar(&reportsDir, "reports-dir", reportsDir, "Directory for the abuse report store (empty = in-memory; env "+envVarReportsDir+")")
	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config (env "+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "Comma-separated STUN URLs (env "+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "Comma-separated TURN URLs (env "+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username (env "+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential (env "+envTurnCredential+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if listenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}
	if wsIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-idle-timeout must be > 0", envVarWSIdleTimeout)
	}
	if wsPingInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-ping-interval must be > 0", envVarWSPingInterval)
	}
	if wsPingInterval >= wsIdleTimeout {
		return Config{}, fmt.Errorf("%s/--ws-ping-interval must be < %s/--ws-idle-timeout", envVarWSPingInterval, envVarWSIdleTimeout)
	}
	if wsWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-write-timeout must be > 0", envVarWSWriteTimeout)
	}
	if maxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-message-bytes must be > 0", envVarMaxMessageBytes)
	}
	if maxMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s/--max-messages-per-second must be > 0", envVarMaxMessagesPerSecond)
	}
	if sendQueueBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--send-queue-bytes must be > 0", envVarSendQueueBytes)
	}

	mask, err := parseFilterMask(chatFilterMaskStr)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("%s/--allowed-origins: %w", envVarAllowedOrigins, err)
	}

	iceServers, err := parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential)
	if err != nil {
		return Config{}, err
	}

	return Config{
		ListenAddr:      listenAddr,
		AllowedOrigins:  allowedOrigins,
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,

		WSIdleTimeout:        wsIdleTimeout,
		WSPingInterval:       wsPingInterval,
		WSWriteTimeout:       wsWriteTimeout,
		MaxMessageBytes:      maxMessageBytes,
		MaxMessagesPerSecond: maxMessagesPerSecond,
		SendQueueBytes:       sendQueueBytes,

		ChatFilterWords: splitCommaSeparated(chatFilterWordsStr),
		ChatFilterMask:  mask,

		ReportsDir: strings.TrimSpace(reportsDir),
		ICEServers: iceServers,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseFilterMask(raw string) (rune, error) {
	if utf8.RuneCountInString(raw) != 1 {
		return 0, fmt.Errorf("invalid %s %q (expected exactly one character)", envVarChatFilterMask, raw)
	}
	r, _ := utf8.DecodeRuneInString(raw)
	return r, nil
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if entry == "*" {
			out = append(out, entry)
			continue
		}

		o, ok := origin.Normalize(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, o.Value)
	}

	return out, nil
}
