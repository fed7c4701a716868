package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                       = "FOLIO"
	defaultHTTPAddress              = "0.0.0.0:8080"
	defaultDatabasePath             = "folio.db"
	defaultLogLevel                 = "info"
	defaultLogFormat                = "json"
	defaultAdminUsername            = "admin"
	defaultTokenTTLMinutes          = 60
	defaultCaptchaTTLMinutes        = 10
	defaultCaptchaAttemptsPerMinute = 30
	defaultCaptchaAttemptBurst      = 10
	defaultAssistantModel           = "gpt-4o-mini"
	defaultAssistantTimeoutSeconds  = 20
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress              string
	DatabasePath             string
	LogLevel                 string
	LogFormat                string
	AdminUsername            string
	AdminPasswordHash        string
	AdminSigningSecret       string
	TokenTTL                 time.Duration
	CaptchaTTL               time.Duration
	CaptchaAttemptsPerMinute float64
	CaptchaAttemptBurst      int
	AssistantAPIKey          string
	AssistantModel           string
	AssistantBaseURL         string
	AssistantTimeout         time.Duration
	AllowedOrigins           []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("admin.username", defaultAdminUsername)
	configViper.SetDefault("admin.password_hash", "")
	configViper.SetDefault("admin.signing_secret", "")
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("captcha.ttl_minutes", defaultCaptchaTTLMinutes)
	configViper.SetDefault("captcha.attempts_per_minute", defaultCaptchaAttemptsPerMinute)
	configViper.SetDefault("captcha.attempt_burst", defaultCaptchaAttemptBurst)
	configViper.SetDefault("assistant.api_key", "")
	configViper.SetDefault("assistant.model", defaultAssistantModel)
	configViper.SetDefault("assistant.base_url", "")
	configViper.SetDefault("assistant.timeout_seconds", defaultAssistantTimeoutSeconds)
	configViper.SetDefault("cors.allowed_origins", []string{"*"})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:              configViper.GetString("http.address"),
		DatabasePath:             configViper.GetString("database.path"),
		LogLevel:                 configViper.GetString("log.level"),
		LogFormat:                configViper.GetString("log.format"),
		AdminUsername:            configViper.GetString("admin.username"),
		AdminPasswordHash:        configViper.GetString("admin.password_hash"),
		AdminSigningSecret:       configViper.GetString("admin.signing_secret"),
		TokenTTL:                 time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		CaptchaTTL:               time.Duration(configViper.GetInt("captcha.ttl_minutes")) * time.Minute,
		CaptchaAttemptsPerMinute: configViper.GetFloat64("captcha.attempts_per_minute"),
		CaptchaAttemptBurst:      configViper.GetInt("captcha.attempt_burst"),
		AssistantAPIKey:          configViper.GetString("assistant.api_key"),
		AssistantModel:           configViper.GetString("assistant.model"),
		AssistantBaseURL:         configViper.GetString("assistant.base_url"),
		AssistantTimeout:         time.Duration(configViper.GetInt("assistant.timeout_seconds")) * time.Second,
		AllowedOrigins:           splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// splitOrigins accepts both list values and a comma separated env value.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.AdminUsername) == "" {
		return fmt.Errorf("admin.username is required")
	}
	if strings.TrimSpace(c.AdminPasswordHash) == "" {
		return fmt.Errorf("admin.password_hash is required")
	}
	if strings.TrimSpace(c.AdminSigningSecret) == "" {
		return fmt.Errorf("admin.signing_secret is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	if c.CaptchaTTL <= 0 {
		return fmt.Errorf("captcha.ttl_minutes must be positive")
	}
	if c.CaptchaAttemptsPerMinute <= 0 || c.CaptchaAttemptBurst <= 0 {
		return fmt.Errorf("captcha.attempts_per_minute and captcha.attempt_burst must be positive")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("cors.allowed_origins must not be empty")
	}
	return nil
}
