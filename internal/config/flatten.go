package config

import (
	"strings"
)

// secretKeys are the credentials a wschat config file can carry: the auth
// service key used by sign-in and the LLM key used by `wschat relay serve`.
var secretKeys = map[string]bool{
	"auth.api_key":      true,
	"agent.llm.api_key": true,
}

// IsSecretKey reports whether `wschat config` must mask the value of key.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten turns the nested config document into the dotted keys accepted by
// `wschat config get/set`, e.g. {"relay": {"endpoint": "..."}} becomes
// {"relay.endpoint": "..."}.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]any); ok {
			flatten(key, child, out)
			continue
		}
		out[key] = v
	}
}

// Unflatten rebuilds the nested document written to config.json, so
// {"agent.llm.model": "gpt-4o"} becomes {"agent": {"llm": {"model": "gpt-4o"}}}.
// A scalar sitting where a section is needed is replaced by that section.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		parts := strings.Split(k, ".")
		section := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := section[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				section[part] = next
			}
			section = next
		}
		section[parts[len(parts)-1]] = v
	}
	return out
}

// MaskSecrets copies flat, hiding auth.api_key and agent.llm.api_key behind
// "***" plus their last four characters. Empty or non-string secrets pass
// through unchanged.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		s, ok := v.(string)
		if !secretKeys[k] || !ok || s == "" {
			out[k] = v
			continue
		}
		out[k] = maskTail(s)
	}
	return out
}

func maskTail(s string) string {
	if len(s) <= 4 {
		return "***" + s
	}
	return "***" + s[len(s)-4:]
}
