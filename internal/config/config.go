package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Match     MatchConfig     `yaml:"match"`
	Rating    RatingConfig    `yaml:"rating"`
	Billing   BillingConfig   `yaml:"billing"`
	Support   SupportConfig   `yaml:"support"`
	Retention RetentionConfig `yaml:"retention"`
	Notifier  NotifierConfig  `yaml:"notifier"`
	Avatar    AvatarConfig    `yaml:"avatar"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Env            string   `yaml:"env"` // dev | staging | production
	TrustedHosts   []string `yaml:"trusted_hosts"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// IsDev reports whether dev-only endpoints (OTP echo, billing simulate)
// are enabled.
func (s ServerConfig) IsDev() bool { return s.Env == "dev" }

// DatabaseConfig holds the Postgres pool settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the optional leaderboard cache settings. The server
// runs correctly with Enabled=false; the cache only shortens reads.
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// AuthConfig holds identity, OTP, session, and throttle settings.
type AuthConfig struct {
	JWTSecret             string `yaml:"jwt_secret"`
	OTPPepper             string `yaml:"otp_pepper"`
	PIIPepper             string `yaml:"pii_pepper"`
	AccessTokenMinutes    int    `yaml:"access_token_minutes"`
	RefreshTokenDays      int    `yaml:"refresh_token_days"`
	OTPTTLMinutes         int    `yaml:"otp_ttl_minutes"`
	OTPCooldownSeconds    int    `yaml:"otp_cooldown_seconds"`
	LoginWindowMinutes    int    `yaml:"login_window_minutes"`
	LoginMaxFailures      int    `yaml:"login_max_failures"`
	PasswordMinLength     int    `yaml:"password_min_length"`
	DeletionGraceDays     int    `yaml:"deletion_grace_days"`
}

// AccessTTL returns the access-token lifetime as a duration.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessTokenMinutes) * time.Minute
}

// RefreshTTL returns the refresh-token lifetime as a duration.
func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshTokenDays) * 24 * time.Hour
}

// OTPTTL returns the one-time-code lifetime as a duration.
func (a AuthConfig) OTPTTL() time.Duration {
	return time.Duration(a.OTPTTLMinutes) * time.Minute
}

// OTPCooldown returns the per-contact reissue cooldown.
func (a AuthConfig) OTPCooldown() time.Duration {
	return time.Duration(a.OTPCooldownSeconds) * time.Second
}

// LoginWindow returns the sliding window for the login throttle.
func (a AuthConfig) LoginWindow() time.Duration {
	return time.Duration(a.LoginWindowMinutes) * time.Minute
}

// MatchConfig holds the confirmation-protocol settings.
type MatchConfig struct {
	ConfirmWindowHours      int `yaml:"confirm_window_hours"`
	MaxScoreProposals       int `yaml:"max_score_proposals"`
	MaxOpenPending          int `yaml:"max_open_pending"`
	ExpiredLookbackDays     int `yaml:"expired_lookback_days"`
}

// ConfirmWindow returns the confirmation deadline offset.
func (m MatchConfig) ConfirmWindow() time.Duration {
	return time.Duration(m.ConfirmWindowHours) * time.Hour
}

// RatingConfig holds the Elo engine settings.
type RatingConfig struct {
	ProvisionalMatches int `yaml:"provisional_matches"`
	ProvisionalCap     int `yaml:"provisional_cap"`
}

// BillingConfig holds provider codes, webhook verification, and store
// validation credentials.
type BillingConfig struct {
	Provider                string `yaml:"provider"` // none | stripe | app_store | google_play | manual
	WebhookSecret           string `yaml:"webhook_secret"`
	RequireSignature        bool   `yaml:"require_webhook_signature"`
	WebhookMaxAgeSeconds    int    `yaml:"webhook_max_age_seconds"`
	ProductPlanMap          string `yaml:"product_plan_map"` // "prod_a=RIVIO_PLUS,prod_b:FREE"
	CheckoutSuccessURL      string `yaml:"checkout_success_url"`
	CheckoutCancelURL       string `yaml:"checkout_cancel_url"`
	AppStoreSharedSecret    string `yaml:"app_store_shared_secret"`
	GooglePlayPackage       string `yaml:"google_play_package"`
	GooglePlayCredentials   string `yaml:"google_play_credentials_json"`
	ReconcileIntervalMins   int    `yaml:"reconcile_interval_minutes"`
	ReconcileBatchLimit     int    `yaml:"reconcile_batch_limit"`
}

// WebhookMaxAge returns the replay-protection window for signed webhooks.
func (b BillingConfig) WebhookMaxAge() time.Duration {
	return time.Duration(b.WebhookMaxAgeSeconds) * time.Second
}

// ProductPlans parses the product→plan map. Items are comma separated and
// use '=' or ':' between product id and plan code.
func (b BillingConfig) ProductPlans() map[string]string {
	out := map[string]string{}
	for _, item := range strings.Split(b.ProductPlanMap, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		sep := "="
		if !strings.Contains(item, "=") {
			sep = ":"
		}
		parts := strings.SplitN(item, sep, 2)
		if len(parts) != 2 {
			continue
		}
		product := strings.TrimSpace(parts[0])
		plan := strings.ToUpper(strings.TrimSpace(parts[1]))
		if product != "" && plan != "" {
			out[product] = plan
		}
	}
	return out
}

// SupportConfig holds in-app support settings.
type SupportConfig struct {
	ContactEmail             string `yaml:"contact_email"`
	TicketsEnabled           bool   `yaml:"tickets_enabled"`
	MaxTicketsPerDay         int    `yaml:"max_tickets_per_day"`
	MinSecondsBetweenTickets int    `yaml:"min_seconds_between_tickets"`
}

// RetentionConfig holds cleanup windows for auth artifacts.
type RetentionConfig struct {
	OTPDays            int `yaml:"otp_days"`
	LoginAttemptsDays  int `yaml:"login_attempts_days"`
	ContactChangesDays int `yaml:"contact_changes_days"`
	IntervalHours      int `yaml:"interval_hours"`
}

// NotifierConfig holds OTP delivery settings. When disabled, codes are only
// logged (and echoed in dev responses).
type NotifierConfig struct {
	Enabled   bool   `yaml:"enabled"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
	SESRegion string `yaml:"ses_region"`
}

// AvatarConfig holds the upload pipeline settings.
type AvatarConfig struct {
	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	BaseURL    string `yaml:"base_url"` // public URL prefix for stored objects
	MaxBytes   int64  `yaml:"max_bytes"`
	TargetSize int    `yaml:"target_size"` // square pixel edge after resize
}

// WarehouseConfig holds the optional Snowflake export settings.
type WarehouseConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Account         string `yaml:"account"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	Schema          string `yaml:"schema"`
	Warehouse       string `yaml:"warehouse"`
	IntervalMinutes int    `yaml:"interval_minutes"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Env == "" {
		cfg.Server.Env = "dev"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.Redis.TTLSeconds == 0 {
		cfg.Redis.TTLSeconds = 60
	}
	if cfg.Auth.AccessTokenMinutes == 0 {
		cfg.Auth.AccessTokenMinutes = 60
	}
	if cfg.Auth.RefreshTokenDays == 0 {
		cfg.Auth.RefreshTokenDays = 30
	}
	if cfg.Auth.OTPTTLMinutes == 0 {
		cfg.Auth.OTPTTLMinutes = 10
	}
	if cfg.Auth.OTPCooldownSeconds == 0 {
		cfg.Auth.OTPCooldownSeconds = 120
	}
	if cfg.Auth.LoginWindowMinutes == 0 {
		cfg.Auth.LoginWindowMinutes = 15
	}
	if cfg.Auth.LoginMaxFailures == 0 {
		cfg.Auth.LoginMaxFailures = 8
	}
	if cfg.Auth.PasswordMinLength == 0 {
		cfg.Auth.PasswordMinLength = 8
	}
	if cfg.Auth.DeletionGraceDays == 0 {
		cfg.Auth.DeletionGraceDays = 30
	}
	if cfg.Match.ConfirmWindowHours == 0 {
		cfg.Match.ConfirmWindowHours = 48
	}
	if cfg.Match.MaxScoreProposals == 0 {
		cfg.Match.MaxScoreProposals = 2
	}
	if cfg.Match.MaxOpenPending == 0 {
		cfg.Match.MaxOpenPending = 2
	}
	if cfg.Match.ExpiredLookbackDays == 0 {
		cfg.Match.ExpiredLookbackDays = 30
	}
	if cfg.Rating.ProvisionalMatches == 0 {
		cfg.Rating.ProvisionalMatches = 5
	}
	if cfg.Rating.ProvisionalCap == 0 {
		cfg.Rating.ProvisionalCap = 30
	}
	if cfg.Billing.Provider == "" {
		cfg.Billing.Provider = "none"
	}
	if cfg.Billing.WebhookMaxAgeSeconds == 0 {
		cfg.Billing.WebhookMaxAgeSeconds = 300
	}
	if cfg.Billing.ReconcileIntervalMins == 0 {
		cfg.Billing.ReconcileIntervalMins = 60
	}
	if cfg.Billing.ReconcileBatchLimit == 0 {
		cfg.Billing.ReconcileBatchLimit = 200
	}
	if cfg.Support.ContactEmail == "" {
		cfg.Support.ContactEmail = "soporte@rivio.app"
	}
	if cfg.Support.MaxTicketsPerDay == 0 {
		cfg.Support.MaxTicketsPerDay = 3
	}
	if cfg.Support.MinSecondsBetweenTickets == 0 {
		cfg.Support.MinSecondsBetweenTickets = 60
	}
	if cfg.Retention.OTPDays == 0 {
		cfg.Retention.OTPDays = 30
	}
	if cfg.Retention.LoginAttemptsDays == 0 {
		cfg.Retention.LoginAttemptsDays = 90
	}
	if cfg.Retention.ContactChangesDays == 0 {
		cfg.Retention.ContactChangesDays = 30
	}
	if cfg.Retention.IntervalHours == 0 {
		cfg.Retention.IntervalHours = 6
	}
	if cfg.Notifier.SESRegion == "" {
		cfg.Notifier.SESRegion = "us-east-1"
	}
	if cfg.Notifier.FromName == "" {
		cfg.Notifier.FromName = "Rivio"
	}
	if cfg.Avatar.MaxBytes == 0 {
		cfg.Avatar.MaxBytes = 5 << 20
	}
	if cfg.Avatar.TargetSize == 0 {
		cfg.Avatar.TargetSize = 256
	}
	if cfg.Warehouse.IntervalMinutes == 0 {
		cfg.Warehouse.IntervalMinutes = 60
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		// A missing file is fine when the environment carries everything.
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = &Config{}
		applyDefaults(cfg)
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Server.Env = v
	}
	if v := os.Getenv("TRUSTED_HOSTS"); v != "" {
		cfg.Server.TrustedHosts = splitList(v)
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("OTP_PEPPER"); v != "" {
		cfg.Auth.OTPPepper = v
	}
	if v := os.Getenv("PII_PEPPER"); v != "" {
		cfg.Auth.PIIPepper = v
	}
	if v := os.Getenv("JWT_ACCESS_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Auth.AccessTokenMinutes = n
		}
	}
	if v := os.Getenv("JWT_REFRESH_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Auth.RefreshTokenDays = n
		}
	}
	if v := os.Getenv("OTP_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Auth.OTPTTLMinutes = n
		}
	}
	if v := os.Getenv("OTP_REQUEST_COOLDOWN_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Auth.OTPCooldownSeconds = n
		}
	}

	if v := os.Getenv("CONFIRM_WINDOW_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Match.ConfirmWindowHours = n
		}
	}
	if v := os.Getenv("MAX_SCORE_PROPOSALS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Match.MaxScoreProposals = n
		}
	}
	if v := os.Getenv("PROVISIONAL_MATCHES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rating.ProvisionalMatches = n
		}
	}
	if v := os.Getenv("PROVISIONAL_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rating.ProvisionalCap = n
		}
	}

	if v := os.Getenv("BILLING_PROVIDER"); v != "" {
		cfg.Billing.Provider = v
	}
	if v := os.Getenv("BILLING_WEBHOOK_SECRET"); v != "" {
		cfg.Billing.WebhookSecret = v
	}
	if v := os.Getenv("BILLING_REQUIRE_WEBHOOK_SIGNATURE"); v != "" {
		cfg.Billing.RequireSignature = v == "true" || v == "1"
	}
	if v := os.Getenv("BILLING_WEBHOOK_MAX_AGE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Billing.WebhookMaxAgeSeconds = n
		}
	}
	if v := os.Getenv("BILLING_PRODUCT_PLAN_MAP"); v != "" {
		cfg.Billing.ProductPlanMap = v
	}
	if v := os.Getenv("APP_STORE_SHARED_SECRET"); v != "" {
		cfg.Billing.AppStoreSharedSecret = v
	}
	if v := os.Getenv("GOOGLE_PLAY_PACKAGE"); v != "" {
		cfg.Billing.GooglePlayPackage = v
	}
	if v := os.Getenv("GOOGLE_PLAY_CREDENTIALS_JSON"); v != "" {
		cfg.Billing.GooglePlayCredentials = v
	}

	if v := os.Getenv("SUPPORT_CONTACT_EMAIL"); v != "" {
		cfg.Support.ContactEmail = v
	}
	if v := os.Getenv("SUPPORT_TICKETS_ENABLED"); v != "" {
		cfg.Support.TicketsEnabled = v == "true" || v == "1"
	}

	if v := os.Getenv("AVATAR_S3_BUCKET"); v != "" {
		cfg.Avatar.S3Bucket = v
	}
	if v := os.Getenv("AVATAR_S3_REGION"); v != "" {
		cfg.Avatar.S3Region = v
	}
	if v := os.Getenv("AVATAR_BASE_URL"); v != "" {
		cfg.Avatar.BaseURL = v
	}

	if v := os.Getenv("SNOWFLAKE_ACCOUNT"); v != "" {
		cfg.Warehouse.Account = v
		cfg.Warehouse.Enabled = true
	}
	if v := os.Getenv("SNOWFLAKE_USER"); v != "" {
		cfg.Warehouse.User = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Warehouse.Password = v
	}

	return cfg, nil
}

// Validate checks the settings without which the server cannot run safely.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.Auth.OTPPepper == "" {
		return fmt.Errorf("otp pepper is required")
	}
	if !c.Server.IsDev() && c.Billing.RequireSignature && c.Billing.WebhookSecret == "" {
		return fmt.Errorf("billing webhook secret is required when signatures are enforced")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
