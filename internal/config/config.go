package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultBotName          = "Rahul"
	DefaultAppName          = "Nagar Alert"
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "nagaralert"
	DefaultPGSSLMode        = "disable"
	DefaultMediaTimeoutSecs = 15
	DefaultPendingWindow    = "2h"
	DefaultBlobRoot         = "data/media"
)

type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Whapi      WhapiConfig      `toml:"whapi"`
	Meta       MetaConfig       `toml:"meta"`
	Classifier ClassifierConfig `toml:"classifier"`
	Composer   ComposerConfig   `toml:"composer"`
	Email      EmailConfig      `toml:"email"`
	Media      MediaConfig      `toml:"media"`
	Intake     IntakeConfig     `toml:"intake"`
	Postgres   PostgresConfig   `toml:"postgres"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// WhapiConfig configures the whapi-style WhatsApp gateway (provider A).
type WhapiConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

// MetaConfig configures the Meta Cloud API gateway (provider B).
type MetaConfig struct {
	GraphBaseURL  string `toml:"graph_base_url"`
	Token         string `toml:"token"`
	PhoneNumberID string `toml:"phone_number_id"`
	VerifyToken   string `toml:"verify_token"`
}

type ClassifierConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type ComposerConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	BotName        string `toml:"bot_name"`
	AppName        string `toml:"app_name"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// EmailConfig selects and configures the outbound email provider.
// Provider is "generic" (SMTP) or "mailgun".
type EmailConfig struct {
	Provider      string `toml:"provider"`
	From          string `toml:"from"`
	EscalationTo  string `toml:"escalation_to"`
	DashboardURL  string `toml:"dashboard_url"`
	SMTPHost      string `toml:"smtp_host"`
	SMTPPort      int    `toml:"smtp_port"`
	SMTPSecurity  string `toml:"smtp_security"`
	Username      string `toml:"username"`
	Password      string `toml:"password"`
	MailgunDomain string `toml:"mailgun_domain"`
	MailgunAPIKey string `toml:"mailgun_api_key"`
	MailgunRegion string `toml:"mailgun_region"`
}

type MediaConfig struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	BlobRoot       string `toml:"blob_root"`
	PublicBaseURL  string `toml:"public_base_url"`
}

// IntakeConfig tunes the draft-report conversation flow.
type IntakeConfig struct {
	PendingWindow string `toml:"pending_window"`
	// TextThreshold is compared strictly (> passes) against classifier
	// confidence when the address arrives as plain text.
	TextThreshold int `toml:"text_threshold"`
	// LocationThreshold is compared inclusively (>= passes) when the address
	// arrives as a shared location event.
	LocationThreshold int `toml:"location_threshold"`
	// SweepSpec is the cron spec for the draft expiry sweep.
	SweepSpec string `toml:"sweep_spec"`
	// BroadcastChannel is the provider tag used for resident alert sends.
	BroadcastChannel string `toml:"broadcast_channel"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Meta: MetaConfig{
			GraphBaseURL: "https://graph.facebook.com/v19.0",
			VerifyToken:  "nagar_alert_verify_token",
		},
		Classifier: ClassifierConfig{
			TimeoutSeconds: 30,
		},
		Composer: ComposerConfig{
			BotName:        DefaultBotName,
			AppName:        DefaultAppName,
			TimeoutSeconds: 30,
		},
		Email: EmailConfig{
			Provider:     "generic",
			SMTPPort:     587,
			SMTPSecurity: "starttls",
		},
		Media: MediaConfig{
			TimeoutSeconds: DefaultMediaTimeoutSecs,
			BlobRoot:       DefaultBlobRoot,
		},
		Intake: IntakeConfig{
			PendingWindow:     DefaultPendingWindow,
			TextThreshold:     80,
			LocationThreshold: 70,
			SweepSpec:         "*/15 * * * *",
			BroadcastChannel:  "whapi",
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
