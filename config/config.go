package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Tie-break policies applied when more than one booking or payment link matches.
const (
	TieBreakFirst  = "first"
	TieBreakLatest = "latest"
)

type Config struct {
	DatabaseURL       string
	DBHost            string
	DBPort            string
	DBUser            string
	DBPassword        string
	DBName            string
	DBSSLMode         string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	HTTPAddr   string
	AppBaseURL string

	RazorpayKeyID            string
	RazorpayKeySecret        string
	RazorpayWebhookSecret    string
	RazorpayTimeout          time.Duration
	PaymentCurrency          string
	MatchTieBreak            string
	CallbackRequireSignature bool

	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	EmailFrom string

	// Kafka
	KafkaBrokers      string
	KafkaBookingTopic string
	KafkaEmailTopic   string
	KafkaDLQTopic     string
	KafkaGroupID      string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	WebhookDedupeTTL time.Duration

	StatusCheckRPS   float64
	StatusCheckBurst int
	TrustedProxies   string

	LogLevel  string
	LogFormat string
	ExportDir string
}

var AppConfig Config

// LoadConfig loads configuration into AppConfig and exits on invalid settings.
func LoadConfig() {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	AppConfig = cfg
}

// Load reads .env (if any) and the environment, applies defaults and validates.
func Load() (Config, error) {
	// Try loading .env from different locations
	envLocations := []string{
		".env",              // project root
		"config/.env",       // config subdirectory
		"../config/.env",    // one level up
		"../../config/.env", // two levels up
	}

	envLoaded := false
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		log.Println("No .env file found, using environment variables")
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv builds a Config from the current environment without touching .env files.
func FromEnv() Config {
	return Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBHost:            os.Getenv("DB_HOST"),
		DBPort:            getEnvWithDefault("DB_PORT", "5432"),
		DBUser:            getEnvWithDefault("DB_USER", "postgres"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            getEnvWithDefault("DB_NAME", "postgres"),
		DBSSLMode:         getEnvWithDefault("DB_SSLMODE", "disable"),
		DBMaxOpenConns:    getIntWithDefault("DB_MAX_OPEN_CONNS", 20),
		DBMaxIdleConns:    getIntWithDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: getDurationWithDefault("DB_CONN_MAX_LIFETIME", 30*time.Minute),

		HTTPAddr:   getEnvWithDefault("HTTP_ADDR", ":8080"),
		AppBaseURL: strings.TrimRight(os.Getenv("APP_BASE_URL"), "/"),

		RazorpayKeyID:            os.Getenv("RazorpayKeyID"),
		RazorpayKeySecret:        os.Getenv("RazorpayKeySecret"),
		RazorpayWebhookSecret:    os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		RazorpayTimeout:          getDurationWithDefault("RAZORPAY_TIMEOUT", 15*time.Second),
		PaymentCurrency:          getEnvWithDefault("PAYMENT_CURRENCY", "INR"),
		MatchTieBreak:            strings.ToLower(getEnvWithDefault("MATCH_TIE_BREAK", TieBreakFirst)),
		CallbackRequireSignature: getBoolWithDefault("CALLBACK_REQUIRE_SIGNATURE", false),

		SMTPHost:  getEnvWithDefault("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:  getIntWithDefault("SMTP_PORT", 587),
		SMTPUser:  os.Getenv("SMTP_USER"),
		SMTPPass:  os.Getenv("SMTP_PASS"),
		EmailFrom: os.Getenv("EMAIL_FROM"),

		// Kafka settings (comma-separated brokers, empty disables Kafka)
		KafkaBrokers:      os.Getenv("KAFKA_BROKERS"),
		KafkaBookingTopic: getEnvWithDefault("KAFKA_BOOKING_TOPIC", "bookings"),
		KafkaEmailTopic:   getEnvWithDefault("KAFKA_EMAIL_TOPIC", "emails"),
		KafkaDLQTopic:     getEnvWithDefault("KAFKA_DLQ_TOPIC", "bookings.dlq"),
		KafkaGroupID:      getEnvWithDefault("KAFKA_GROUP_ID", "travel-backoffice"),

		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getIntWithDefault("REDIS_DB", 0),
		WebhookDedupeTTL: getDurationWithDefault("WEBHOOK_DEDUPE_TTL", 24*time.Hour),

		StatusCheckRPS:   getFloatWithDefault("STATUS_CHECK_RPS", 2),
		StatusCheckBurst: getIntWithDefault("STATUS_CHECK_BURST", 10),
		TrustedProxies:   os.Getenv("TRUSTED_PROXIES"),

		LogLevel:  getEnvWithDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvWithDefault("LOG_FORMAT", "json"),
		ExportDir: getEnvWithDefault("EXPORT_DIR", os.TempDir()),
	}
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	if c.DatabaseURL == "" && c.DBHost == "" {
		return fmt.Errorf("database is not configured (set DATABASE_URL or DB_HOST)")
	}
	if c.MatchTieBreak != TieBreakFirst && c.MatchTieBreak != TieBreakLatest {
		return fmt.Errorf("MATCH_TIE_BREAK must be %q or %q, got %q", TieBreakFirst, TieBreakLatest, c.MatchTieBreak)
	}
	if c.AppBaseURL != "" {
		if u, err := url.Parse(c.AppBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("APP_BASE_URL must be an absolute URL, got %q", c.AppBaseURL)
		}
	}
	if c.RazorpayTimeout <= 0 {
		return fmt.Errorf("RAZORPAY_TIMEOUT must be positive")
	}
	if c.DBMaxOpenConns <= 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
	}
	return nil
}

// RazorpayConfigured reports whether both API credentials are present.
func (c Config) RazorpayConfigured() bool {
	return c.RazorpayKeyID != "" && c.RazorpayKeySecret != ""
}

// KafkaEnabled reports whether at least one broker is configured.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokerList()) > 0
}

// KafkaBrokerList splits KafkaBrokers and drops empty entries.
func (c Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

// TrustedProxyList returns the IPs/CIDRs whose X-Forwarded-For header is honoured.
func (c Config) TrustedProxyList() []string {
	return splitList(c.TrustedProxies)
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// CallbackURL is where the provider redirects the buyer after checkout. Empty without
// APP_BASE_URL, in which case links are created without a callback.
func (c Config) CallbackURL() string {
	if c.AppBaseURL == "" {
		return ""
	}
	return c.AppBaseURL + "/payment-callback"
}

// GetDBConnString returns DATABASE_URL when set, otherwise a key/value DSN.
func (c Config) GetDBConnString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return "host=" + c.DBHost +
		" port=" + c.DBPort +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" sslmode=" + c.DBSSLMode
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getFloatWithDefault(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

// getDurationWithDefault accepts Go durations ("15s") or bare seconds ("15").
func getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
