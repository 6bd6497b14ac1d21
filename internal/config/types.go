package config

// Config is the process configuration. Durations are Go duration strings
// ("20s", "1m"). Secrets are normally supplied through the environment.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Delivery  DeliveryConfig  `json:"delivery"`
	SMTP      SMTPConfig      `json:"smtp"`
	Resend    ResendConfig    `json:"resend"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Retention RetentionConfig `json:"retention"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

// ServerConfig controls the HTTP front end.
//
// Security note: Token guards every route except /healthz. Prefer setting it
// through ADMIN_TOKEN rather than the config file.
type ServerConfig struct {
	Listen      string   `json:"listen"`
	Token       string   `json:"token,omitempty"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
	// Pprof mounts net/http/pprof under /debug (token protected).
	Pprof bool `json:"pprof,omitempty"`

	ReadTimeout     string `json:"read_timeout,omitempty"`
	WriteTimeout    string `json:"write_timeout,omitempty"`
	IdleTimeout     string `json:"idle_timeout,omitempty"`
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

// DeliveryConfig selects the delivery driver: "smtp", "resend" or "log".
type DeliveryConfig struct {
	Driver string `json:"driver"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty"`
	Timeout  string `json:"timeout"`
}

type ResendConfig struct {
	APIKey string `json:"api_key,omitempty"`
	From   string `json:"from,omitempty"`
}

// DispatchConfig holds admission caps and pacing for new jobs.
//
// Defaults:
//   - delay_min: "60s", delay_max: "70s"
//   - max_active_jobs: 1
//   - max_recipients: 300
//   - max_workers: 3, default_workers: 2
//   - rate_per_sec: 0 (disabled)
type DispatchConfig struct {
	DelayMin       string  `json:"delay_min"`
	DelayMax       string  `json:"delay_max"`
	MaxActiveJobs  int     `json:"max_active_jobs"`
	MaxRecipients  int     `json:"max_recipients"`
	MaxWorkers     int     `json:"max_workers"`
	DefaultWorkers int     `json:"default_workers"`
	RatePerSec     float64 `json:"rate_per_sec,omitempty"`
	RateBurst      int     `json:"rate_burst,omitempty"`
}

// RetentionConfig bounds how long finished jobs stay queryable in memory.
type RetentionConfig struct {
	TTL      string `json:"ttl"`
	MaxJobs  int    `json:"max_jobs"`
	Schedule string `json:"schedule"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`

	// RedactRecipients masks recipient addresses in log lines.
	RedactRecipients bool `json:"redact_recipients,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the optional job journal.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/bulksend.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	Retain      int    `json:"retain,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     "15s",
			IdleTimeout:     "60s",
			ShutdownTimeout: "10s",
		},
		Delivery: DeliveryConfig{Driver: "smtp"},
		SMTP: SMTPConfig{
			Host:    "mail.privateemail.com",
			Port:    465,
			Timeout: "20s",
		},
		Dispatch: DispatchConfig{
			DelayMin:       "60s",
			DelayMax:       "70s",
			MaxActiveJobs:  1,
			MaxRecipients:  300,
			MaxWorkers:     3,
			DefaultWorkers: 2,
		},
		Retention: RetentionConfig{
			TTL:      "24h",
			MaxJobs:  200,
			Schedule: "@every 1m",
		},
		Logging: LoggingConfig{Level: "info", Console: true},
	}
}
