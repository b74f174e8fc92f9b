package domain

import "strings"

// RedactedValue replaces secret config values in wire projections.
const RedactedValue = "[redacted]"

// secretKeys are config keys whose values never leave the process.
// Matched case-insensitively.
var secretKeys = map[string]bool{
	"clientsecret":  true,
	"secret":        true,
	"password":      true,
	"apikey":        true,
	"token":         true,
	"accesstoken":   true,
	"refreshtoken":  true,
	"authorization": true,
}

// RedactConfig returns a copy of cfg with secret values masked. Nested
// maps are walked, and every value under a "headers" map is masked since
// headers routinely carry credentials. cfg is not modified.
func RedactConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		key := strings.ToLower(k)
		switch {
		case secretKeys[key]:
			out[k] = RedactedValue
		case key == "headers":
			out[k] = maskValues(v)
		default:
			if m, ok := v.(map[string]any); ok {
				out[k] = RedactConfig(m)
			} else {
				out[k] = v
			}
		}
	}
	return out
}

func maskValues(v any) any {
	switch h := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(h))
		for k := range h {
			out[k] = RedactedValue
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(h))
		for k := range h {
			out[k] = RedactedValue
		}
		return out
	}
	return RedactedValue
}

// Redacted returns a copy of the agent safe to hand to API clients.
func (a Agent) Redacted() Agent {
	out := a.Clone()
	out.Config = RedactConfig(a.Config)
	return out
}
