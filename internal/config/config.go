// Package config loads the typed service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port     int    `mapstructure:"port"`
	MongoURI string `mapstructure:"mongo_uri"`
	MongoDB  string `mapstructure:"mongo_db"`

	AccessUserTokenSignature    string `mapstructure:"access_user_token_signature"`
	RefreshUserTokenSignature   string `mapstructure:"refresh_user_token_signature"`
	AccessSystemTokenSignature  string `mapstructure:"access_system_token_signature"`
	RefreshSystemTokenSignature string `mapstructure:"refresh_system_token_signature"`
	AccessTokenExpiresIn        int    `mapstructure:"access_token_expires_in"`  // seconds
	RefreshTokenExpiresIn       int    `mapstructure:"refresh_token_expires_in"` // seconds
	SaltRound                   int    `mapstructure:"salt_round"`

	RedisURL    string `mapstructure:"redis_url"` // empty disables the revocation cache
	AMQPURL     string `mapstructure:"amqp_url"`  // empty delivers notifications in-process
	NotifyQueue string `mapstructure:"notify_queue"`

	SMTPServer      string `mapstructure:"smtp_server"`
	SMTPUser        string `mapstructure:"smtp_user"`
	SMTPPassword    string `mapstructure:"smtp_password"`
	AppEmail        string `mapstructure:"app_email"`
	ApplicationName string `mapstructure:"application_name"`

	AWSRegion           string `mapstructure:"aws_region"`
	AWSBucketName       string `mapstructure:"aws_bucket_name"`
	UploadCheckDelaySec int    `mapstructure:"upload_check_delay_sec"`

	WebClientIDs []string `mapstructure:"web_client_ids"`

	LogLevel            string   `mapstructure:"log_level"`
	LogFile             string   `mapstructure:"log_file"`
	AllowedOrigins      []string `mapstructure:"allowed_origins"`
	AuthRateLimitPerMin int      `mapstructure:"auth_rate_limit_per_min"`
	TrustedProxies      []string `mapstructure:"trusted_proxies"` // peers allowed to set X-Forwarded-For
	ShutdownTimeoutSec  int      `mapstructure:"shutdown_timeout_sec"`
}

// Load reads the configuration from environment variables over the defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_db", "socialhub")
	v.SetDefault("access_user_token_signature", "")
	v.SetDefault("refresh_user_token_signature", "")
	v.SetDefault("access_system_token_signature", "")
	v.SetDefault("refresh_system_token_signature", "")
	v.SetDefault("access_token_expires_in", 3600)
	v.SetDefault("refresh_token_expires_in", 31536000)
	v.SetDefault("salt_round", 12)
	v.SetDefault("redis_url", "")
	v.SetDefault("amqp_url", "")
	v.SetDefault("notify_queue", "socialhub.notifications")
	v.SetDefault("smtp_server", "smtp.gmail.com:587")
	v.SetDefault("smtp_user", "")
	v.SetDefault("smtp_password", "")
	v.SetDefault("app_email", "")
	v.SetDefault("application_name", "socialhub")
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("aws_bucket_name", "")
	v.SetDefault("upload_check_delay_sec", 30)
	v.SetDefault("web_client_ids", []string{})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("auth_rate_limit_per_min", 60)
	v.SetDefault("trusted_proxies", []string{})
	v.SetDefault("shutdown_timeout_sec", 15)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.WebClientIDs = splitList(cfg.WebClientIDs)
	cfg.AllowedOrigins = splitList(cfg.AllowedOrigins)
	cfg.TrustedProxies = splitList(cfg.TrustedProxies)
	return &cfg, nil
}

// splitList trims entries and splits any that still carry commas.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	for name, sig := range map[string]string{
		"ACCESS_USER_TOKEN_SIGNATURE":    c.AccessUserTokenSignature,
		"REFRESH_USER_TOKEN_SIGNATURE":   c.RefreshUserTokenSignature,
		"ACCESS_SYSTEM_TOKEN_SIGNATURE":  c.AccessSystemTokenSignature,
		"REFRESH_SYSTEM_TOKEN_SIGNATURE": c.RefreshSystemTokenSignature,
	} {
		if sig == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if c.AccessTokenExpiresIn <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRES_IN must be positive"))
	}
	if c.RefreshTokenExpiresIn <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_EXPIRES_IN must be positive"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	return errors.Join(errs...)
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenExpiresIn) * time.Second
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpiresIn) * time.Second
}

func (c *Config) UploadCheckDelay() time.Duration {
	return time.Duration(c.UploadCheckDelaySec) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
