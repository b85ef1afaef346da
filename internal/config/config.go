package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Store    struct {
		Backend   string `json:"backend"`
		ProjectID string `json:"project_id"`
	} `json:"store"`
	Relay struct {
		Endpoint       string `json:"endpoint"`
		BackendURL     string `json:"backend_url"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"relay"`
	Auth struct {
		APIKey string `json:"api_key"`
	} `json:"auth"`
	Chat struct {
		AgentMarker     string `json:"agent_marker"`
		AgentSenderID   string `json:"agent_sender_id"`
		StrictAgentTags bool   `json:"strict_agent_tags"`
	} `json:"chat"`
	Agent struct {
		Listen        string `json:"listen"`
		Name          string `json:"name"`
		MaxConcurrent int    `json:"max_concurrent"`
		LLM           struct {
			BaseURL          string  `json:"base_url"`
			APIKey           string  `json:"api_key"`
			Model            string  `json:"model"`
			MaxTokens        int     `json:"max_tokens"`
			Temperature      float32 `json:"temperature"`
			MaxContextTokens int     `json:"max_context_tokens"`
			OutputReserve    int     `json:"output_reserve"`
		} `json:"llm"`
	} `json:"agent"`
}

// Defaults returns the configuration used when no file exists yet.
func Defaults() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".wschat"),
		LogLevel: "info",
	}
	cfg.Store.Backend = "local"
	cfg.Relay.Endpoint = "http://localhost:8080/relay"
	cfg.Relay.BackendURL = "http://localhost:8080"
	cfg.Relay.TimeoutSeconds = 30
	cfg.Chat.AgentMarker = "agent"
	cfg.Chat.AgentSenderID = "agent"
	cfg.Agent.Listen = ":8080"
	cfg.Agent.Name = "Agent"
	cfg.Agent.MaxConcurrent = 2
	cfg.Agent.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.Agent.LLM.Model = "gpt-4o-mini"
	cfg.Agent.LLM.MaxTokens = 1000
	cfg.Agent.LLM.Temperature = 0.7
	cfg.Agent.LLM.MaxContextTokens = 128000
	cfg.Agent.LLM.OutputReserve = 4096
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overrides file values; the environment has the highest precedence.
func applyEnv(cfg *Config) {
	if v := os.Getenv("WSCHAT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("WSCHAT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("WSCHAT_STORE"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		cfg.Store.ProjectID = v
	}
	if v := os.Getenv("WSCHAT_RELAY_ENDPOINT"); v != "" {
		cfg.Relay.Endpoint = v
	}
	if v := os.Getenv("WSCHAT_BACKEND_URL"); v != "" {
		cfg.Relay.BackendURL = v
	}
	if v := os.Getenv("WSCHAT_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("WSCHAT_STRICT_AGENT_TAGS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Chat.StrictAgentTags = b
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Agent.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Agent.LLM.BaseURL = v
	}
}

// Save writes cfg to path atomically, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts cfg into its nested JSON map form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns every setting keyed by its dotted path.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one dotted key from the config file at path.
func GetValue(path, key string) (any, error) {
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	v, ok := Flatten(raw)[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores value under a dotted key in the existing config file.
// Values that parse as JSON (numbers, booleans) are stored typed; anything
// else is stored as a string.
func SetValue(path, key, value string) error {
	raw, err := readRaw(path)
	if err != nil {
		return err
	}
	flat := Flatten(raw)

	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		parsed = value
	}
	flat[key] = parsed

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func readRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return m, nil
}
