package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bowerhall/lantern/internal/llm"
)

const defaultConfigPath = "config.json"

// source resolves a key from the environment first, then the config file.
type source struct {
	file map[string]string
}

func (s source) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) getOr(key, fallback string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return fallback
}

func Load() (*Config, error) {
	path := os.Getenv("LANTERN_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}

	file, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	src := source{file: file}

	token := src.get("WECHAT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("WECHAT_TOKEN not set (environment or %s)", path)
	}

	llmConfig, err := loadLLMConfig(src)
	if err != nil {
		return nil, err
	}

	alertsConfig, err := loadAlertsConfig(src)
	if err != nil {
		return nil, err
	}

	keep := 7
	if raw := src.get("BACKUP_KEEP"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid BACKUP_KEEP: %q", raw)
		}
		keep = n
	}

	return &Config{
		Token:       token,
		ListenAddr:  src.getOr("LANTERN_LISTEN", ":80"),
		Route:       src.getOr("LANTERN_ROUTE", "/wechat"),
		PersonaPath: src.get("LANTERN_PERSONA"),
		LLM:         llmConfig,
		Store:       loadStoreConfig(src),
		Storage:     loadStorageConfig(src),
		Backup:      BackupConfig{Schedule: src.getOr("BACKUP_SCHEDULE", "0 3 * * *"), Keep: keep},
		Alerts:      alertsConfig,
	}, nil
}

// readConfigFile returns the flat key/value pairs of the local config file.
// A missing file yields no values.
func readConfigFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	raw := map[string]any{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[k] = fmt.Sprint(v)
	}

	return values, nil
}

func loadLLMConfig(src source) (LLMConfig, error) {
	provider := src.getOr("LLM_PROVIDER", "deepseek")
	if !llm.IsKnownProvider(provider) {
		return LLMConfig{}, fmt.Errorf("unknown LLM_PROVIDER: %s", provider)
	}

	apiKey, err := getAPIKey(src, provider)
	if err != nil {
		return LLMConfig{}, err
	}

	timeout := 30 * time.Second
	if raw := src.get("LLM_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return LLMConfig{}, fmt.Errorf("invalid LLM_TIMEOUT: %q", raw)
		}
		timeout = d
	}

	return LLMConfig{
		Provider: provider,
		APIKey:   apiKey,
		Model:    src.get("LLM_MODEL"),
		BaseURL:  src.get("LLM_BASE_URL"),
		Timeout:  timeout,
	}, nil
}

func getAPIKey(src source, provider string) (string, error) {
	if key := src.get("LLM_API_KEY"); key != "" {
		return key, nil
	}

	if !llm.NeedsAPIKey(provider) {
		return provider, nil
	}

	envKey := EnvKeyForProvider(provider)

	key := src.get(envKey)
	if key == "" {
		return "", fmt.Errorf("%s not set", envKey)
	}

	return key, nil
}

// EnvKeyForProvider returns the variable holding the provider's API key.
func EnvKeyForProvider(provider string) string {
	switch provider {
	case "claude":
		return "ANTHROPIC_API_KEY"
	case "ollama":
		return ""
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}

func loadStoreConfig(src source) StoreConfig {
	backend := src.getOr("LANTERN_STORE", "file")

	fallback := "database.json"
	if backend == "sqlite" {
		fallback = "lantern.db"
	}

	return StoreConfig{
		Backend: backend,
		Path:    src.getOr("LANTERN_DB", fallback),
	}
}

func loadStorageConfig(src source) StorageConfig {
	accessKey := src.get("MINIO_ACCESS_KEY")
	secretKey := src.get("MINIO_SECRET_KEY")

	return StorageConfig{
		Enabled:   accessKey != "" && secretKey != "",
		Endpoint:  src.getOr("MINIO_ENDPOINT", "minio:9000"),
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    src.get("MINIO_USE_SSL") == "true",
		Bucket:    src.getOr("MINIO_BUCKET", "lantern-backups"),
	}
}

func loadAlertsConfig(src source) (AlertsConfig, error) {
	var chatID int64
	if raw := src.get("ALERT_TELEGRAM_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return AlertsConfig{}, fmt.Errorf("invalid ALERT_TELEGRAM_CHAT_ID: %q", raw)
		}
		chatID = id
	}

	cooldown := time.Hour
	if d, err := time.ParseDuration(src.get("ALERT_COOLDOWN")); err == nil && d > 0 {
		cooldown = d
	}

	return AlertsConfig{
		TelegramToken:  src.get("ALERT_TELEGRAM_TOKEN"),
		TelegramChatID: chatID,
		DiscordWebhook: src.get("ALERT_DISCORD_WEBHOOK"),
		Cooldown:       cooldown,
	}, nil
}

// LoadPersona reads the system preamble from path. An empty path or missing
// file returns "" so the caller keeps its built-in persona.
func LoadPersona(path string) string {
	if path == "" {
		return ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}
