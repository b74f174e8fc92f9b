package config

// Config is the root configuration for agentos.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Agents  AgentsConfig  `yaml:"agents,omitempty"`
	History HistoryConfig `yaml:"history,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket front end.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayTLS configures TLS for the gateway listener.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password" | "none"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// AgentsConfig holds the agent type catalog.
type AgentsConfig struct {
	// Mode decides how Types in the file combine with the built-in types:
	// "merge" overrides built-ins by name and appends new ones, "replace"
	// discards the built-ins.
	Mode  string            `yaml:"mode,omitempty"`
	Types []AgentTypeConfig `yaml:"types,omitempty"`
}

// AgentTypeConfig declares one agent type.
type AgentTypeConfig struct {
	Name          string         `yaml:"name"`
	Handler       string         `yaml:"handler,omitempty"` // defaults to Name
	Enabled       *bool          `yaml:"enabled,omitempty"` // defaults to true
	MaxInstances  int            `yaml:"maxInstances"`
	TimeoutMs     int            `yaml:"timeoutMs"`
	RetryAttempts int            `yaml:"retryAttempts,omitempty"`
	RetryDelayMs  int            `yaml:"retryDelayMs,omitempty"`
	DefaultConfig map[string]any `yaml:"defaultConfig,omitempty"`
}

// IsEnabled reports whether the type accepts new agents and runs.
func (t AgentTypeConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// HandlerName returns the handler bound to this type.
func (t AgentTypeConfig) HandlerName() string {
	if t.Handler != "" {
		return t.Handler
	}
	return t.Name
}

// HistoryConfig configures the run journal.
type HistoryConfig struct {
	Store          string `yaml:"store,omitempty"` // "sqlite" | "memory" | "none"
	Path           string `yaml:"path,omitempty"`  // sqlite file, defaults to <data>/agentos.db
	MaxEntries     int    `yaml:"maxEntries,omitempty"`
	RetentionHours int    `yaml:"retentionHours,omitempty"`
}
