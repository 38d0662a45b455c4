package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DatabaseURL string
	DBUser      string
	DBPassword  string
	DBName      string
	DBHost      string
	DBPort      string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	HTTPAddr       string
	TrustProxy     bool
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	MetricsUser    string
	MetricsPass    string

	BotToken    string
	BotUsername string
	AppName     string
	WebAppURL   string
	BotEnabled  bool

	JWTSecret      string
	SessionTTL     time.Duration
	InitDataMaxAge time.Duration

	ReferralIssuerBonus   int
	ReferralRedeemerBonus int

	AffiliateConfigPath string
	MarketConfigPath    string

	ScrapeTimeout  time.Duration
	ScrapeCacheTTL time.Duration

	DispatchWorkers  int
	DispatchInterval time.Duration

	CheckerInterval time.Duration
	BirthdayWindow  int

	YookassaShopID  string
	YookassaKey     string
	PremiumPrice    string
	PremiumCurrency string
	PremiumDays     int
	AllowedYooIp    []string

	LogLevel      string
	LogFormat     string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using system environment variables")
	}

	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "wishbucket"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		TrustProxy:     getEnvBool("TRUST_PROXY", false),
		CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"*"}),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 30),
		MetricsUser:    getEnv("METRICS_USER", ""),
		MetricsPass:    getEnv("METRICS_PASS", ""),

		BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		BotUsername: getEnv("TELEGRAM_BOT_USERNAME", "wishbucket_bot"),
		AppName:     getEnv("TELEGRAM_APP_NAME", "app"),
		WebAppURL:   getEnv("WEBAPP_URL", "https://t.me/wishbucket_bot/app"),
		BotEnabled:  getEnvBool("BOT_ENABLED", true),

		JWTSecret:      getEnv("JWT_SECRET", ""),
		SessionTTL:     getEnvDuration("SESSION_TTL", 24*time.Hour),
		InitDataMaxAge: getEnvDuration("INIT_DATA_MAX_AGE", 24*time.Hour),

		ReferralIssuerBonus:   getEnvInt("REFERRAL_ISSUER_BONUS", 100),
		ReferralRedeemerBonus: getEnvInt("REFERRAL_REDEEMER_BONUS", 50),

		AffiliateConfigPath: getEnv("AFFILIATE_CONFIG", ""),
		MarketConfigPath:    getEnv("MARKET_CONFIG", ""),

		ScrapeTimeout:  getEnvDuration("SCRAPE_TIMEOUT", 8*time.Second),
		ScrapeCacheTTL: getEnvDuration("SCRAPE_CACHE_TTL", 6*time.Hour),

		DispatchWorkers:  getEnvInt("DISPATCH_WORKERS", 5),
		DispatchInterval: getEnvDuration("DISPATCH_INTERVAL", 5*time.Second),

		CheckerInterval: getEnvDuration("CHECKER_INTERVAL", time.Hour),
		BirthdayWindow:  getEnvInt("BIRTHDAY_WINDOW_DAYS", 7),

		YookassaShopID:  getEnv("YOOKASSA_SHOP_ID", ""),
		YookassaKey:     getEnv("YOOKASSA_SECRET_KEY", ""),
		PremiumPrice:    getEnv("PREMIUM_PRICE", "299.00"),
		PremiumCurrency: getEnv("PREMIUM_CURRENCY", "RUB"),
		PremiumDays:     getEnvInt("PREMIUM_DAYS", 30),
		AllowedYooIp: []string{
			"185.71.76.0/27",
			"185.71.77.0/27",
			"77.75.153.0/25",
			"77.75.156.11/32",
			"77.75.156.35/32",
			"77.75.154.128/25",
			"2a02:5180::/32",
		},

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "text"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
	}
}

// PostgresDSN returns DATABASE_URL when set, otherwise a keyword DSN built from DB_*.
func (c *Config) PostgresDSN() string {
	if strings.TrimSpace(c.DatabaseURL) != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// ReferralLink builds the Mini-App deep link carrying a referral code.
func (c *Config) ReferralLink(code string) string {
	return fmt.Sprintf("https://t.me/%s/%s?startapp=ref_%s", c.BotUsername, c.AppName, code)
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" && c.BotToken == "" {
		return fmt.Errorf("config: JWT_SECRET or TELEGRAM_BOT_TOKEN must be set")
	}
	if c.ReferralIssuerBonus < 0 || c.ReferralRedeemerBonus < 0 {
		return fmt.Errorf("config: referral bonuses must be non-negative")
	}
	return nil
}

// SessionSecret falls back to the bot token so a single secret is enough for small deployments.
func (c *Config) SessionSecret() string {
	if c.JWTSecret != "" {
		return c.JWTSecret
	}
	return c.BotToken
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Warnf("config: invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		log.Warnf("config: invalid %s=%q, using %v", key, value, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		log.Warnf("config: invalid %s=%q, using %v", key, value, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		log.Warnf("config: invalid %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
