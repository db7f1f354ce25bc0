package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the api and callsync processes.
// All values must come from env (or a .env file loaded by the binary before Load).
// No business logic should depend on raw environment variables; the one exception is the
// transcription provider, which is re-resolved per call through internal/settings.
type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	RingCentral   RingCentralConfig
	Transcription TranscriptionConfig
	Scheduler     SchedulerConfig
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

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. An empty Host disables the cross-process job lock.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type RingCentralConfig struct {
	ClientID     string
	ClientSecret string
	// JWT is the JWT-bearer credential exchanged for access tokens.
	JWT       string
	ServerURL string
}

type TranscriptionConfig struct {
	// DefaultProvider is the env fallback for the persisted provider setting.
	DefaultProvider string

	AssemblyAIKey string
	DeepgramKey   string
	OpenAIKey     string

	MinDuration  time.Duration
	SampleOver   time.Duration
	SampleLength time.Duration

	// SalesKeywords overrides the built-in classifier vocabulary when non-empty.
	SalesKeywords []string
}

type SchedulerConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	CallDelay time.Duration
}

const defaultRingCentralServer = "https://platform.ringcentral.com"

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := optionalInt("APP_PORT", 8080)
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
	if c.Redis.Host != "" {
		n, err := optionalInt("REDIS_PORT", 6379)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
		c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}

	c.RingCentral.ClientID = strings.TrimSpace(os.Getenv("RINGCENTRAL_CLIENT_ID"))
	c.RingCentral.ClientSecret = os.Getenv("RINGCENTRAL_CLIENT_SECRET")
	c.RingCentral.JWT = strings.TrimSpace(os.Getenv("RINGCENTRAL_JWT"))
	c.RingCentral.ServerURL = envOr("RINGCENTRAL_SERVER_URL", defaultRingCentralServer)

	c.Transcription.DefaultProvider = strings.ToLower(envOr("TRANSCRIPTION_PROVIDER", "assemblyai"))
	c.Transcription.AssemblyAIKey = os.Getenv("ASSEMBLYAI_API_KEY")
	c.Transcription.DeepgramKey = os.Getenv("DEEPGRAM_API_KEY")
	c.Transcription.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	{
		var err error
		c.Transcription.MinDuration, err = optionalDuration("TRANSCRIBE_MIN_DURATION")
		c.Transcription.MinDuration, parseErrs = appendParseErr(parseErrs, c.Transcription.MinDuration, err)
		c.Transcription.SampleOver, err = optionalDuration("TRANSCRIBE_SAMPLE_OVER")
		c.Transcription.SampleOver, parseErrs = appendParseErr(parseErrs, c.Transcription.SampleOver, err)
		c.Transcription.SampleLength, err = optionalDuration("TRANSCRIBE_SAMPLE_LENGTH")
		c.Transcription.SampleLength, parseErrs = appendParseErr(parseErrs, c.Transcription.SampleLength, err)
	}
	c.Transcription.SalesKeywords = splitList(os.Getenv("SALES_KEYWORDS"))

	{
		b, err := envBool("SCHEDULER_ENABLED", true)
		c.Scheduler.Enabled, parseErrs = appendParseErr(parseErrs, b, err)
		c.Scheduler.Interval, err = optionalDuration("SCHEDULER_INTERVAL")
		c.Scheduler.Interval, parseErrs = appendParseErr(parseErrs, c.Scheduler.Interval, err)
		c.Scheduler.CallDelay, err = optionalDuration("SCHEDULER_CALL_DELAY")
		c.Scheduler.CallDelay, parseErrs = appendParseErr(parseErrs, c.Scheduler.CallDelay, err)
	}
	{
		n, err := optionalInt("SCHEDULER_BATCH_SIZE", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Scheduler.BatchSize = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
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
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.RingCentral.ClientID == "" {
		errs = append(errs, errors.New("RINGCENTRAL_CLIENT_ID is required"))
	}
	if c.RingCentral.ClientSecret == "" {
		errs = append(errs, errors.New("RINGCENTRAL_CLIENT_SECRET is required"))
	}
	if c.RingCentral.JWT == "" {
		errs = append(errs, errors.New("RINGCENTRAL_JWT is required"))
	}
	if c.RingCentral.ServerURL == "" {
		c.RingCentral.ServerURL = defaultRingCentralServer
	}

	if c.Transcription.DefaultProvider == "" {
		c.Transcription.DefaultProvider = "assemblyai"
	}
	if !isValidProvider(c.Transcription.DefaultProvider) {
		errs = append(errs, fmt.Errorf("TRANSCRIPTION_PROVIDER must be one of assemblyai, deepgram, whisper, ringcentral, got %q", c.Transcription.DefaultProvider))
	}
	if c.Transcription.MinDuration <= 0 {
		c.Transcription.MinDuration = 15 * time.Second
	}
	if c.Transcription.SampleOver <= 0 {
		c.Transcription.SampleOver = 20 * time.Minute
	}
	if c.Transcription.SampleLength <= 0 {
		c.Transcription.SampleLength = 5 * time.Minute
	}
	if c.Transcription.SampleLength >= c.Transcription.SampleOver {
		errs = append(errs, errors.New("TRANSCRIBE_SAMPLE_LENGTH must be shorter than TRANSCRIBE_SAMPLE_OVER"))
	}

	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = 5 * time.Minute
	}
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 20
	}
	if c.Scheduler.CallDelay <= 0 {
		c.Scheduler.CallDelay = 15 * time.Second
	}

	return joinErrors(errs)
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

// RedisEnabled reports whether the cross-process lock should be used.
func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
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

func optionalInt(key string, def int) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return def, nil
	}
	return mustInt(key)
}

// optionalDuration returns 0 when key is unset so Validate can fill the default.
func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 30s or 5m, got %q", key, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return d, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

func appendParseErr[T any](errs []error, v T, err error) (T, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
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

func isValidProvider(v string) bool {
	switch v {
	case "assemblyai", "deepgram", "whisper", "ringcentral":
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
