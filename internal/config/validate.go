package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}

	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}

	validAuthModes := []string{"token", "password", "none"}
	if cfg.Gateway.Auth.Mode != "" && !slices.Contains(validAuthModes, cfg.Gateway.Auth.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.auth.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validAuthModes, cfg.Gateway.Auth.Mode),
		})
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// Agent type catalog validation
	validAgentModes := []string{"merge", "replace"}
	if cfg.Agents.Mode != "" && !slices.Contains(validAgentModes, cfg.Agents.Mode) {
		issues = append(issues, ValidationIssue{
			Path:    "agents.mode",
			Message: fmt.Sprintf("must be one of %v, got %q", validAgentModes, cfg.Agents.Mode),
		})
	}

	if len(cfg.Agents.Types) == 0 {
		issues = append(issues, ValidationIssue{
			Path:    "agents.types",
			Message: "at least one agent type is required",
		})
	}

	seen := make(map[string]bool, len(cfg.Agents.Types))
	for i, t := range cfg.Agents.Types {
		prefix := fmt.Sprintf("agents.types[%d]", i)
		if t.Name == "" {
			issues = append(issues, ValidationIssue{Path: prefix + ".name", Message: "name is required"})
		} else if seen[t.Name] {
			issues = append(issues, ValidationIssue{Path: prefix + ".name", Message: fmt.Sprintf("duplicate type %q", t.Name)})
		}
		seen[t.Name] = true

		if t.MaxInstances < 1 {
			issues = append(issues, ValidationIssue{
				Path:    prefix + ".maxInstances",
				Message: fmt.Sprintf("must be at least 1, got %d", t.MaxInstances),
			})
		}
		if t.TimeoutMs < 1 {
			issues = append(issues, ValidationIssue{
				Path:    prefix + ".timeoutMs",
				Message: fmt.Sprintf("must be at least 1, got %d", t.TimeoutMs),
			})
		}
		if t.RetryAttempts < 0 {
			issues = append(issues, ValidationIssue{
				Path:    prefix + ".retryAttempts",
				Message: fmt.Sprintf("must not be negative, got %d", t.RetryAttempts),
			})
		}
		if t.RetryDelayMs < 0 {
			issues = append(issues, ValidationIssue{
				Path:    prefix + ".retryDelayMs",
				Message: fmt.Sprintf("must not be negative, got %d", t.RetryDelayMs),
			})
		}
	}

	// History validation
	validStores := []string{"sqlite", "memory", "none"}
	if cfg.History.Store != "" && !slices.Contains(validStores, cfg.History.Store) {
		issues = append(issues, ValidationIssue{
			Path:    "history.store",
			Message: fmt.Sprintf("must be one of %v, got %q", validStores, cfg.History.Store),
		})
	}
	if cfg.History.MaxEntries < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "history.maxEntries",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.History.MaxEntries),
		})
	}

	return issues
}
