package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Media     MediaConfig
	Call      CallConfig
	Signaling SignalingConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// MediaConfig covers the media provider boundary.
type MediaConfig struct {
	// WebhookSecret signs provider callbacks (HMAC-SHA256).
	WebhookSecret string
	// WebhookTolerance bounds the accepted callback timestamp skew.
	WebhookTolerance time.Duration

	// CredentialSecret signs per-party channel tokens.
	CredentialSecret string
	CredentialTTL    time.Duration
}

// CallConfig holds session lifecycle and billing knobs.
type CallConfig struct {
	FreeAllowanceSeconds int
	ExtensionSeconds     int

	RequestTTL         time.Duration
	NoShowWarningAfter time.Duration
	NoShowHardAfter    time.Duration
	DisconnectGrace    time.Duration
	MediaJoinTimeout   time.Duration
	TickInterval       time.Duration

	LedgerTimeout    time.Duration
	LedgerRetryMin   time.Duration
	LedgerRetryMax   time.Duration
	ReserveRetries   int
	MaxActivePerUser int
}

// SignalingConfig selects the signaling bus.
type SignalingConfig struct {
	// Backend is redis (multi-instance) or memory (single process).
	Backend string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Media.WebhookSecret = os.Getenv("MEDIA_WEBHOOK_SECRET")
	c.Media.WebhookTolerance = mustDuration("MEDIA_WEBHOOK_TOLERANCE")
	c.Media.CredentialSecret = os.Getenv("MEDIA_CREDENTIAL_SECRET")
	c.Media.CredentialTTL = mustDuration("MEDIA_CREDENTIAL_TTL")

	// Call knobs are optional; zero means "use the default".
	{
		n, err := optionalInt("CALL_FREE_ALLOWANCE_SECONDS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Call.FreeAllowanceSeconds = n
	}
	{
		n, err := optionalInt("CALL_EXTENSION_SECONDS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Call.ExtensionSeconds = n
	}
	{
		n, err := optionalInt("CALL_RESERVE_RETRIES")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Call.ReserveRetries = n
	}
	{
		n, err := optionalInt("CALL_MAX_ACTIVE_PER_USER")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Call.MaxActivePerUser = n
	}
	c.Call.RequestTTL = mustDuration("CALL_REQUEST_TTL")
	c.Call.NoShowWarningAfter = mustDuration("CALL_NOSHOW_WARNING_AFTER")
	c.Call.NoShowHardAfter = mustDuration("CALL_NOSHOW_HARD_AFTER")
	c.Call.DisconnectGrace = mustDuration("CALL_DISCONNECT_GRACE")
	c.Call.MediaJoinTimeout = mustDuration("CALL_MEDIA_JOIN_TIMEOUT")
	c.Call.TickInterval = mustDuration("CALL_TICK_INTERVAL")
	c.Call.LedgerTimeout = mustDuration("CALL_LEDGER_TIMEOUT")
	c.Call.LedgerRetryMin = mustDuration("CALL_LEDGER_RETRY_MIN")
	c.Call.LedgerRetryMax = mustDuration("CALL_LEDGER_RETRY_MAX")

	c.Signaling.Backend = strings.TrimSpace(os.Getenv("SIGNALING_BACKEND"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every rule and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			// Allowed values are enforced below.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	errs = append(errs, c.validateMedia()...)
	errs = append(errs, c.validateCall()...)

	switch c.Signaling.Backend {
	case "":
		c.Signaling.Backend = SignalingRedis
	case SignalingRedis, SignalingMemory:
	default:
		errs = append(errs, fmt.Errorf("SIGNALING_BACKEND must be one of redis, memory, got %q", c.Signaling.Backend))
	}
	if c.IsProduction() && c.Signaling.Backend == SignalingMemory {
		errs = append(errs, errors.New("SIGNALING_BACKEND=memory is not allowed in production"))
	}

	return joinErrors(errs)
}

const (
	SignalingRedis  = "redis"
	SignalingMemory = "memory"
)

func (c *Config) validateMedia() []error {
	var errs []error
	if c.Media.WebhookSecret == "" {
		errs = append(errs, errors.New("MEDIA_WEBHOOK_SECRET is required"))
	}
	if c.Media.CredentialSecret == "" {
		errs = append(errs, errors.New("MEDIA_CREDENTIAL_SECRET is required"))
	} else if c.Media.CredentialSecret == c.Auth.JWTSecret {
		errs = append(errs, errors.New("MEDIA_CREDENTIAL_SECRET must differ from JWT_SECRET"))
	}
	if c.Media.WebhookTolerance <= 0 {
		c.Media.WebhookTolerance = 5 * time.Minute
	}
	if c.Media.CredentialTTL <= 0 {
		c.Media.CredentialTTL = 2 * time.Hour
	}
	return errs
}

func (c *Config) validateCall() []error {
	var errs []error
	cc := &c.Call

	if cc.FreeAllowanceSeconds < 0 {
		errs = append(errs, fmt.Errorf("CALL_FREE_ALLOWANCE_SECONDS must be >= 0, got %d", cc.FreeAllowanceSeconds))
	} else if cc.FreeAllowanceSeconds == 0 {
		cc.FreeAllowanceSeconds = 900
	}
	if cc.ExtensionSeconds < 0 {
		errs = append(errs, fmt.Errorf("CALL_EXTENSION_SECONDS must be >= 0, got %d", cc.ExtensionSeconds))
	} else if cc.ExtensionSeconds == 0 {
		cc.ExtensionSeconds = 600
	}
	if cc.ReserveRetries < 0 {
		errs = append(errs, fmt.Errorf("CALL_RESERVE_RETRIES must be >= 0, got %d", cc.ReserveRetries))
	} else if cc.ReserveRetries == 0 {
		cc.ReserveRetries = 3
	}
	if cc.MaxActivePerUser < 0 {
		errs = append(errs, fmt.Errorf("CALL_MAX_ACTIVE_PER_USER must be >= 0, got %d", cc.MaxActivePerUser))
	} else if cc.MaxActivePerUser == 0 {
		cc.MaxActivePerUser = 1
	}

	defaultDuration(&cc.RequestTTL, 60*time.Second)
	defaultDuration(&cc.NoShowWarningAfter, 3*time.Minute)
	defaultDuration(&cc.NoShowHardAfter, 5*time.Minute)
	defaultDuration(&cc.DisconnectGrace, 30*time.Second)
	defaultDuration(&cc.MediaJoinTimeout, 60*time.Second)
	defaultDuration(&cc.TickInterval, time.Second)
	defaultDuration(&cc.LedgerTimeout, 5*time.Second)
	defaultDuration(&cc.LedgerRetryMin, 200*time.Millisecond)
	defaultDuration(&cc.LedgerRetryMax, 30*time.Second)

	if cc.NoShowHardAfter <= cc.NoShowWarningAfter {
		errs = append(errs, errors.New("CALL_NOSHOW_HARD_AFTER must be greater than CALL_NOSHOW_WARNING_AFTER"))
	}
	if cc.LedgerRetryMax < cc.LedgerRetryMin {
		errs = append(errs, errors.New("CALL_LEDGER_RETRY_MAX must be >= CALL_LEDGER_RETRY_MIN"))
	}
	return errs
}

func defaultDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
