package config

import "time"

type Config struct {
	Token       string
	ListenAddr  string
	Route       string
	PersonaPath string
	LLM         LLMConfig
	Store       StoreConfig
	Storage     StorageConfig
	Backup      BackupConfig
	Alerts      AlertsConfig
}

type LLMConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

type StoreConfig struct {
	Backend string // "file" or "sqlite"
	Path    string
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type BackupConfig struct {
	Schedule string
	Keep     int
}

type AlertsConfig struct {
	TelegramToken  string
	TelegramChatID int64
	DiscordWebhook string
	Cooldown       time.Duration
}
