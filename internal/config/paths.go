package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const defaultBaseDir = ".agentos"

// Paths holds resolved filesystem paths for agentos data.
type Paths struct {
	Base   string // ~/.agentos
	Config string // ~/.agentos/config.yaml
	Logs   string // ~/.agentos/logs
	Data   string // ~/.agentos/data
}

// ResolvePaths computes all standard paths from the home directory.
// If AGENTOS_HOME is set, it overrides the default base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("AGENTOS_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Logs:   filepath.Join(base, "logs"),
		Data:   filepath.Join(base, "data"),
	}, nil
}

// HistoryDB returns the sqlite journal path for cfg, falling back to the
// data directory.
func (p Paths) HistoryDB(cfg HistoryConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(p.Data, "agentos.db")
}

// EnsureDirs creates all standard directories if they don't exist.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.Base, p.Logs, p.Data}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// ParseConfigPath splits a dot-separated config path into segments.
// Returns an error if any segment is empty or contains whitespace.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
		if strings.ContainsAny(p, " \t\n") {
			return nil, &ConfigError{Message: "config path segment contains whitespace: " + strconv.Quote(p)}
		}
	}
	return parts, nil
}

// GetValueAtPath walks root by path. Map nodes are indexed by key and
// list nodes by decimal position, so "agents.types.0.name" reaches into
// the catalog.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	var node any = root
	for _, seg := range path {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[seg]
			if !ok {
				return nil, false
			}
			node = v
		case []any:
			i, ok := listIndex(n, seg)
			if !ok {
				return nil, false
			}
			node = n[i]
		default:
			return nil, false
		}
	}
	return node, true
}

// SetValueAtPath stores value at path. Missing or scalar intermediates
// become maps; list positions must already exist.
func SetValueAtPath(root map[string]any, path []string, value any) error {
	if len(path) == 0 {
		return &ConfigError{Message: "empty config path"}
	}
	_, err := setIn(root, path, value)
	return err
}

func setIn(node any, path []string, value any) (any, error) {
	seg, rest := path[0], path[1:]
	switch n := node.(type) {
	case map[string]any:
		if len(rest) == 0 {
			n[seg] = value
			return n, nil
		}
		next, err := setIn(n[seg], rest, value)
		if err != nil {
			return nil, err
		}
		n[seg] = next
		return n, nil
	case []any:
		i, ok := listIndex(n, seg)
		if !ok {
			return nil, &ConfigError{Message: fmt.Sprintf("list index %q out of range (len %d)", seg, len(n))}
		}
		if len(rest) == 0 {
			n[i] = value
			return n, nil
		}
		next, err := setIn(n[i], rest, value)
		if err != nil {
			return nil, err
		}
		n[i] = next
		return n, nil
	default:
		return setIn(map[string]any{}, path, value)
	}
}

// UnsetValueAtPath removes the value at path, deleting map keys or
// splicing list elements out. It reports whether anything was removed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	if len(path) == 0 {
		return false
	}
	_, ok := unsetIn(root, path)
	return ok
}

func unsetIn(node any, path []string) (any, bool) {
	seg, rest := path[0], path[1:]
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[seg]
		if !ok {
			return n, false
		}
		if len(rest) == 0 {
			delete(n, seg)
			return n, true
		}
		next, ok := unsetIn(v, rest)
		if ok {
			n[seg] = next
		}
		return n, ok
	case []any:
		i, ok := listIndex(n, seg)
		if !ok {
			return n, false
		}
		if len(rest) == 0 {
			return append(n[:i:i], n[i+1:]...), true
		}
		next, ok := unsetIn(n[i], rest)
		if ok {
			n[i] = next
		}
		return n, ok
	}
	return node, false
}

func listIndex(list []any, seg string) (int, bool) {
	i, err := strconv.Atoi(seg)
	if err != nil || i < 0 || i >= len(list) {
		return 0, false
	}
	return i, true
}
