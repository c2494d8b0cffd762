package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the gateway configuration.
type Config struct {
	// Port is the HTTP/WebSocket listen port.
	Port string

	// AllowedOrigins is the comma separated CORS origin list.
	AllowedOrigins string

	// JWTSecret signs and verifies secure-chat tokens.
	JWTSecret string

	// ChunkInterval is the pause between consecutive binary chunks.
	ChunkInterval time.Duration

	// MaxConcurrentTransfers caps the number of in-flight chunked transfers.
	MaxConcurrentTransfers int64

	// DirectoryTTL evicts services that stop heartbeating. Zero disables eviction.
	DirectoryTTL time.Duration

	// DirectoryBackend selects the service store: "memory" or "kv".
	DirectoryBackend string

	// JetStreamDir is the embedded JetStream storage directory. The kv
	// directory backend needs JetStream enabled.
	JetStreamDir string

	// SendBuffer is the outbound queue length per connection.
	SendBuffer int

	// WriteTimeout bounds how long a reliable emit waits on a slow client.
	WriteTimeout time.Duration

	// RateLimit is the sustained inbound events per second per connection.
	RateLimit float64

	// RateBurst is the inbound burst size per connection.
	RateBurst int

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:                   "3000",
		AllowedOrigins:         "http://localhost:3000,http://localhost:8080",
		JWTSecret:              "your-secret-key",
		ChunkInterval:          50 * time.Millisecond,
		MaxConcurrentTransfers: 4,
		DirectoryTTL:           0,
		DirectoryBackend:       "kv",
		JetStreamDir:           "/tmp/realtime-gateway-demo",
		SendBuffer:             256,
		WriteTimeout:           5 * time.Second,
		RateLimit:              20,
		RateBurst:              40,
		ShutdownTimeout:        30 * time.Second,
	}
}

// Option is a function that modifies Config.
type Option func(*Config)

// WithPort sets the listen port.
func WithPort(port string) Option {
	return func(c *Config) {
		c.Port = port
	}
}

// WithJWTSecret sets the secure-chat signing secret.
func WithJWTSecret(secret string) Option {
	return func(c *Config) {
		c.JWTSecret = secret
	}
}

// WithChunkInterval sets the inter-chunk pacing delay.
func WithChunkInterval(d time.Duration) Option {
	return func(c *Config) {
		c.ChunkInterval = d
	}
}

// WithMaxConcurrentTransfers sets the transfer concurrency cap.
func WithMaxConcurrentTransfers(n int64) Option {
	return func(c *Config) {
		c.MaxConcurrentTransfers = n
	}
}

// WithDirectoryTTL enables heartbeat based eviction.
func WithDirectoryTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.DirectoryTTL = ttl
	}
}

// WithDirectoryBackend selects the directory store.
func WithDirectoryBackend(backend string) Option {
	return func(c *Config) {
		c.DirectoryBackend = backend
	}
}

// WithJetStreamDir sets the JetStream storage directory.
func WithJetStreamDir(dir string) Option {
	return func(c *Config) {
		c.JetStreamDir = dir
	}
}

// WithSendBuffer sets the per-connection outbound queue length.
func WithSendBuffer(n int) Option {
	return func(c *Config) {
		c.SendBuffer = n
	}
}

// WithWriteTimeout sets the reliable emit timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.WriteTimeout = d
	}
}

// WithRateLimit sets the per-connection inbound rate limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Config) {
		c.RateLimit = perSecond
		c.RateBurst = burst
	}
}

// WithShutdownTimeout sets the graceful shutdown bound.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ShutdownTimeout = d
	}
}

// New builds a Config from the defaults and the given options.
func New(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// FromEnv builds a Config from environment variables, falling back to defaults.
func FromEnv() Config {
	cfg := DefaultConfig()

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.AllowedOrigins = getEnv("CORS_ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.DirectoryBackend = getEnv("DIRECTORY_BACKEND", cfg.DirectoryBackend)
	cfg.JetStreamDir = getEnv("JETSTREAM_STORAGE_DIR", cfg.JetStreamDir)
	cfg.ChunkInterval = getEnvDuration("CHUNK_INTERVAL", cfg.ChunkInterval)
	cfg.DirectoryTTL = getEnvDuration("DIRECTORY_TTL", cfg.DirectoryTTL)
	cfg.WriteTimeout = getEnvDuration("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.MaxConcurrentTransfers = int64(getEnvInt("MAX_CONCURRENT_TRANSFERS", int(cfg.MaxConcurrentTransfers)))
	cfg.SendBuffer = getEnvInt("CLIENT_SEND_BUFFER", cfg.SendBuffer)
	cfg.RateBurst = getEnvInt("RATE_LIMIT_BURST", cfg.RateBurst)

	if v := os.Getenv("RATE_LIMIT_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RateLimit = f
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return fallback
}
