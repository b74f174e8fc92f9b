package config

import (
	"maps"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandValue walks YAML-decoded values and expands ${VAR} references in
// every string it finds.
func expandValue(v any) any {
	switch val := v.(type) {
	case string:
		return expandEnvVars(val)
	case map[string]any:
		for k, inner := range val {
			val[k] = expandValue(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = expandValue(inner)
		}
		return val
	default:
		return v
	}
}

// expandSensitiveFields processes environment variable references so
// credentials (gateway auth, API keys in handler config) can be stored
// as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	for i := range cfg.Agents.Types {
		if cfg.Agents.Types[i].DefaultConfig != nil {
			expandValue(cfg.Agents.Types[i].DefaultConfig)
		}
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	cfg.Agents.Types = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults and folds
// the file's agent types into the built-in catalog.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = defaultPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
	if cfg.Agents.Mode == "" {
		cfg.Agents.Mode = "merge"
	}
	if cfg.Agents.Mode == "merge" {
		cfg.Agents.Types = mergeTypes(BuiltinTypes(), cfg.Agents.Types)
	}
	if cfg.History.Store == "" {
		cfg.History.Store = "memory"
	}
	if cfg.History.MaxEntries == 0 {
		cfg.History.MaxEntries = defaultMaxEntries
	}
	if cfg.History.RetentionHours == 0 {
		cfg.History.RetentionHours = defaultRetentionHours
	}
}

// mergeTypes overlays file entries on the base list by name. Zero-valued
// fields in an overlay inherit from the base entry; unknown names are
// appended in file order.
func mergeTypes(base, overlay []AgentTypeConfig) []AgentTypeConfig {
	out := make([]AgentTypeConfig, len(base))
	copy(out, base)

	index := make(map[string]int, len(out))
	for i, t := range out {
		index[t.Name] = i
	}

	for _, o := range overlay {
		i, ok := index[o.Name]
		if !ok {
			index[o.Name] = len(out)
			out = append(out, o)
			continue
		}
		out[i] = overlayType(out[i], o)
	}
	return out
}

func overlayType(b, o AgentTypeConfig) AgentTypeConfig {
	if o.Handler != "" {
		b.Handler = o.Handler
	}
	if o.Enabled != nil {
		b.Enabled = o.Enabled
	}
	if o.MaxInstances != 0 {
		b.MaxInstances = o.MaxInstances
	}
	if o.TimeoutMs != 0 {
		b.TimeoutMs = o.TimeoutMs
	}
	if o.RetryAttempts != 0 {
		b.RetryAttempts = o.RetryAttempts
	}
	if o.RetryDelayMs != 0 {
		b.RetryDelayMs = o.RetryDelayMs
	}
	if len(o.DefaultConfig) > 0 {
		merged := maps.Clone(b.DefaultConfig)
		if merged == nil {
			merged = make(map[string]any, len(o.DefaultConfig))
		}
		maps.Copy(merged, o.DefaultConfig)
		b.DefaultConfig = merged
	}
	return b
}

// applyEnvOverrides reads AGENTOS_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTOS_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("AGENTOS_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("AGENTOS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("AGENTOS_HISTORY_STORE"); v != "" {
		cfg.History.Store = strings.ToLower(v)
	}
}
