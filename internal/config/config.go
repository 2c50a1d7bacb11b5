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
	App        AppConfig
	DB         DBConfig
	Lock       LockConfig
	Auth       AuthConfig
	Retell     RetellConfig
	Actions    ActionsConfig
	Classifier ClassifierConfig
}

type AppConfig struct {
	Env  string
	Port int
	// LogFile, when set, receives a rotated copy of the JSON log.
	LogFile string
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBConfig struct {
	// Driver is postgres or sqlite.
	Driver string

	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	SQLitePath string

	// AutoMigrate runs EnsureSchema at startup.
	AutoMigrate bool
}

const (
	LockMemory = "memory"
	LockRedis  = "redis"
)

// LockConfig selects how per-call writes are serialized. redis is needed
// once more than one API instance shares a database.
type LockConfig struct {
	Backend string
	TTL     time.Duration

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
}

// AuthConfig signs operator tokens. Tokens are issued out of band by
// screenctl, so there is no refresh flow; TokenTTL bounds a whole shift.
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	TokenTTL    time.Duration
}

// MaxTokenTTL caps operator token lifetime.
const MaxTokenTTL = 30 * 24 * time.Hour

type RetellConfig struct {
	APIKey        string
	BaseURL       string
	WebhookSecret string
}

type ActionsConfig struct {
	TransferTarget string
	EndCallMessage string
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

type ClassifierConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	SummaryWords int
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
	c.App.LogFile = strings.TrimSpace(os.Getenv("LOG_FILE"))

	db, errs := loadDB()
	c.DB = db
	parseErrs = append(parseErrs, errs...)

	c.Lock.Backend = strings.TrimSpace(os.Getenv("LOCK_BACKEND"))
	c.Lock.TTL, parseErrs = optDuration(parseErrs, "LOCK_TTL")
	c.Lock.RedisHost = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Lock.RedisPort, parseErrs = optInt(parseErrs, "REDIS_PORT")
	c.Lock.RedisPassword = os.Getenv("REDIS_PASSWORD")
	c.Lock.RedisDB, parseErrs = optInt(parseErrs, "REDIS_DB")

	c.Auth, parseErrs = loadAuth(parseErrs)

	c.Retell.APIKey = os.Getenv("RETELL_API_KEY")
	c.Retell.BaseURL = strings.TrimSpace(os.Getenv("RETELL_BASE_URL"))
	c.Retell.WebhookSecret = os.Getenv("RETELL_WEBHOOK_SECRET")

	c.Actions.TransferTarget = strings.TrimSpace(os.Getenv("TRANSFER_TARGET_NUMBER"))
	c.Actions.EndCallMessage = strings.TrimSpace(os.Getenv("END_CALL_MESSAGE"))
	c.Actions.MaxAttempts, parseErrs = optInt(parseErrs, "ACTION_MAX_ATTEMPTS")
	c.Actions.BaseDelay, parseErrs = optDuration(parseErrs, "ACTION_BASE_DELAY")
	c.Actions.AttemptTimeout, parseErrs = optDuration(parseErrs, "ACTION_ATTEMPT_TIMEOUT")

	c.Classifier, parseErrs = loadClassifier(parseErrs)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadDB reads only the database section. Used by tools that do not serve HTTP.
func LoadDB() (DBConfig, error) {
	db, errs := loadDB()
	if err := joinErrors(errs); err != nil {
		return DBConfig{}, err
	}
	errs = db.validate(false)
	if err := joinErrors(errs); err != nil {
		return DBConfig{}, err
	}
	return db, nil
}

// LoadAuth reads only the JWT section.
func LoadAuth() (AuthConfig, error) {
	a, errs := loadAuth(nil)
	if err := joinErrors(errs); err != nil {
		return AuthConfig{}, err
	}
	if err := joinErrors(a.validate(false)); err != nil {
		return AuthConfig{}, err
	}
	return a, nil
}

// LoadClassifier reads only the classifier section.
func LoadClassifier() (ClassifierConfig, error) {
	cl, errs := loadClassifier(nil)
	if err := joinErrors(errs); err != nil {
		return ClassifierConfig{}, err
	}
	cl.applyDefaults()
	return cl, nil
}

func loadDB() (DBConfig, []error) {
	var errs []error
	db := DBConfig{}
	db.Driver = strings.TrimSpace(os.Getenv("DB_DRIVER"))
	db.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	db.Port, errs = optInt(errs, "DB_PORT")
	db.User = strings.TrimSpace(os.Getenv("DB_USER"))
	db.Password = os.Getenv("DB_PASSWORD")
	db.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	db.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	db.SQLitePath = strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	db.AutoMigrate, errs = optBool(errs, "DB_AUTO_MIGRATE")
	return db, errs
}

func loadAuth(errs []error) (AuthConfig, []error) {
	a := AuthConfig{}
	a.JWTSecret = os.Getenv("JWT_SECRET")
	a.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	a.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	a.TokenTTL, errs = optDuration(errs, "JWT_TOKEN_TTL")
	return a, errs
}

func loadClassifier(errs []error) (ClassifierConfig, []error) {
	cl := ClassifierConfig{}
	cl.BaseURL = strings.TrimSpace(os.Getenv("CLASSIFIER_BASE_URL"))
	cl.APIKey = os.Getenv("CLASSIFIER_API_KEY")
	cl.Model = strings.TrimSpace(os.Getenv("CLASSIFIER_MODEL"))
	cl.Timeout, errs = optDuration(errs, "CLASSIFIER_TIMEOUT")
	cl.SummaryWords, errs = optInt(errs, "SUMMARY_WORDS")
	return cl, errs
}

// Validate checks the config and fills defaults in place.
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

	errs = append(errs, c.DB.validate(c.IsProduction())...)

	if c.Lock.Backend == "" {
		c.Lock.Backend = LockMemory
	}
	if c.Lock.TTL <= 0 {
		c.Lock.TTL = 30 * time.Second
	}
	switch c.Lock.Backend {
	case LockMemory:
	case LockRedis:
		if c.Lock.RedisHost == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when LOCK_BACKEND=redis"))
		}
		if c.Lock.RedisPort == 0 {
			c.Lock.RedisPort = 6379
		}
		if c.Lock.RedisPort < 0 || c.Lock.RedisPort > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Lock.RedisPort))
		}
	default:
		errs = append(errs, fmt.Errorf("LOCK_BACKEND must be one of memory, redis, got %q", c.Lock.Backend))
	}

	errs = append(errs, c.Auth.validate(c.IsProduction())...)

	if c.Retell.BaseURL == "" {
		c.Retell.BaseURL = "https://api.retellai.com"
	}
	if c.IsProduction() {
		if c.Retell.APIKey == "" {
			errs = append(errs, errors.New("RETELL_API_KEY is required in production"))
		}
		if c.Retell.WebhookSecret == "" {
			errs = append(errs, errors.New("RETELL_WEBHOOK_SECRET is required in production"))
		}
		if c.Actions.TransferTarget == "" {
			errs = append(errs, errors.New("TRANSFER_TARGET_NUMBER is required in production"))
		}
	}

	if c.Actions.MaxAttempts == 0 {
		c.Actions.MaxAttempts = 3
	}
	if c.Actions.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("ACTION_MAX_ATTEMPTS must be positive, got %d", c.Actions.MaxAttempts))
	}
	if c.Actions.BaseDelay <= 0 {
		c.Actions.BaseDelay = time.Second
	}
	if c.Actions.AttemptTimeout <= 0 {
		c.Actions.AttemptTimeout = 10 * time.Second
	}

	c.Classifier.applyDefaults()
	if c.Classifier.SummaryWords > 50 {
		errs = append(errs, fmt.Errorf("SUMMARY_WORDS must be at most 50, got %d", c.Classifier.SummaryWords))
	}

	return joinErrors(errs)
}

func (db *DBConfig) validate(production bool) []error {
	var errs []error
	if db.Driver == "" {
		db.Driver = DriverPostgres
	}
	switch db.Driver {
	case DriverSQLite:
		if production {
			errs = append(errs, errors.New("DB_DRIVER=sqlite is not supported in production"))
		}
		if db.SQLitePath == "" {
			db.SQLitePath = "calls.db"
		}
		return errs
	case DriverPostgres:
	default:
		return append(errs, fmt.Errorf("DB_DRIVER must be one of postgres, sqlite, got %q", db.Driver))
	}

	if db.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if db.Port <= 0 || db.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", db.Port))
	}
	if db.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if db.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if db.SSLMode == "" {
		if production {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			db.SSLMode = "disable"
		}
	}
	if db.SSLMode != "" && !isValidSSLMode(db.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", db.SSLMode))
	}
	return errs
}

func (a *AuthConfig) validate(production bool) []error {
	var errs []error
	if a.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if production {
		if a.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if a.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if a.TokenTTL <= 0 {
		a.TokenTTL = 12 * time.Hour
	}
	if a.TokenTTL > MaxTokenTTL {
		errs = append(errs, fmt.Errorf("JWT_TOKEN_TTL must not exceed %s", MaxTokenTTL))
	}
	return errs
}

func (cl *ClassifierConfig) applyDefaults() {
	if cl.BaseURL == "" {
		cl.BaseURL = "http://localhost:11434/v1"
	}
	if cl.Model == "" {
		cl.Model = "gemma3:1b"
	}
	if cl.Timeout <= 0 {
		cl.Timeout = 30 * time.Second
	}
	if cl.SummaryWords <= 0 {
		cl.SummaryWords = 5
	}
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (db DBConfig) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host,
		db.Port,
		db.User,
		db.Password,
		db.Name,
		db.SSLMode,
	)
}

func (l LockConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", l.RedisHost, l.RedisPort)
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

func optInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration like 10s, got %q", key, v))
	}
	return d, errs
}

func optBool(errs []error, key string) (bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return b, errs
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
