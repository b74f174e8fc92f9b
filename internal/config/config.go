package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	defaultPort           = 18790
	defaultMaxEntries     = 1000
	defaultRetentionHours = 168
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: defaultPort,
			Bind: "loopback",
			Auth: GatewayAuth{
				Mode: "token",
			},
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
		Agents: AgentsConfig{
			Mode:  "merge",
			Types: BuiltinTypes(),
		},
		History: HistoryConfig{
			Store:          "memory",
			MaxEntries:     defaultMaxEntries,
			RetentionHours: defaultRetentionHours,
		},
	}
}

// BuiltinTypes returns the four agent types shipped with agentos.
func BuiltinTypes() []AgentTypeConfig {
	return []AgentTypeConfig{
		{
			Name:          "web-scraper",
			MaxInstances:  3,
			TimeoutMs:     60000,
			RetryAttempts: 2,
			RetryDelayMs:  1000,
			DefaultConfig: map[string]any{
				"userAgent": "agentos-scraper/1.0",
				"latencyMs": 2000,
				"fetch":     false,
			},
		},
		{
			Name:          "data-processor",
			MaxInstances:  5,
			TimeoutMs:     120000,
			RetryAttempts: 1,
			RetryDelayMs:  500,
			DefaultConfig: map[string]any{
				"latencyMs": 1000,
			},
		},
		{
			Name:          "api-caller",
			MaxInstances:  10,
			TimeoutMs:     30000,
			RetryAttempts: 3,
			RetryDelayMs:  1000,
			DefaultConfig: map[string]any{
				"method": "GET",
			},
		},
		{
			Name:          "generic",
			MaxInstances:  5,
			TimeoutMs:     60000,
			RetryAttempts: 0,
			DefaultConfig: map[string]any{
				"latencyMs": 1000,
			},
		},
	}
}
