package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configFileEnv = "CONFIG_FILE"

const (
	RendererPDF  = "pdf"
	RendererHTML = "html"

	StorageLocal = "local"
	StorageS3    = "s3"

	// DuplicatesAllow re-bills an owner every time a run covers a period.
	DuplicatesAllow = "allow"
	// DuplicatesSkip leaves owners alone that already have an invoice for the period.
	DuplicatesSkip = "skip"
)

type Config struct {
	DatabasePath  string `yaml:"database_path"`
	ServerAddress string `yaml:"server_address"`
	JWTSecret     string `yaml:"jwt_secret"`
	AuthRequired  bool   `yaml:"auth_required"`
	LogLevel      string `yaml:"log_level"`
	Timezone      string `yaml:"timezone"`

	Pricing Pricing `yaml:"pricing"`
	Sender  Sender  `yaml:"sender"`

	PaymentTermDays   int    `yaml:"payment_term_days"`
	InvoiceDuplicates string `yaml:"invoice_duplicates"`
	InvoiceLanguage   string `yaml:"invoice_language"`
	HistoryDays       int    `yaml:"history_days"`
	// AutoBillingDay is the day of month on which last month is synced and
	// billed automatically. 0 disables it.
	AutoBillingDay int `yaml:"auto_billing_day"`

	ZaptecBaseURL  string `yaml:"zaptec_base_url"`
	ZaptecUsername string `yaml:"zaptec_username"`
	ZaptecPassword string `yaml:"zaptec_password"`
	ZaptecAPIKey   string `yaml:"zaptec_api_key"`
	OCPPAPIURL     string `yaml:"ocpp_api_url"`
	OCPPAPIToken   string `yaml:"ocpp_api_token"`

	AllowedOrigins []string `yaml:"allowed_origins"`

	Renderer   string `yaml:"renderer"`
	ChromePath string `yaml:"chrome_path"`

	Storage      string        `yaml:"storage"`
	InvoiceDir   string        `yaml:"invoice_dir"`
	S3           S3            `yaml:"s3"`
	SignedURLTTL time.Duration `yaml:"signed_url_ttl"`

	RedisURL string `yaml:"redis_url"`
	MQTT     MQTT   `yaml:"mqtt"`
}

// Pricing is captured once per sync or invoice run.
type Pricing struct {
	CostPerKWh       float64 `yaml:"cost_per_kwh"`
	AdminFeePerMonth float64 `yaml:"admin_fee_per_month"`
	Currency         string  `yaml:"currency"`
	RoundTotal       bool    `yaml:"round_total"`
}

type Sender struct {
	Name              string `yaml:"name"`
	Address           string `yaml:"address"`
	BankName          string `yaml:"bank_name"`
	BankAccount       string `yaml:"bank_account"`
	BankAccountHolder string `yaml:"bank_account_holder"`
}

type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type MQTT struct {
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Load reads .env (if present), then the optional YAML file named by
// CONFIG_FILE, then lets environment variables override both.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv(configFileEnv); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	return cfg, nil
}

func Defaults() *Config {
	return &Config{
		DatabasePath:  "./zaptec-invoices.db",
		ServerAddress: ":8000",
		JWTSecret:     "zaptec-invoice-secret-change-in-production",
		LogLevel:      "info",
		Timezone:      "Europe/Stockholm",
		Pricing: Pricing{
			CostPerKWh: 0.25,
			Currency:   "SEK",
		},
		PaymentTermDays:   30,
		InvoiceDuplicates: DuplicatesAllow,
		InvoiceLanguage:   "sv",
		HistoryDays:       90,
		ZaptecBaseURL:     "https://api.zaptec.com",
		AllowedOrigins:    []string{"http://localhost:5173", "http://localhost:3000"},
		Renderer:          RendererPDF,
		Storage:           StorageLocal,
		InvoiceDir:        "./invoices",
		SignedURLTTL:      7 * 24 * time.Hour,
		MQTT: MQTT{
			TopicPrefix: "zaptec-invoices",
		},
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.ServerAddress = getEnv("SERVER_ADDRESS", cfg.ServerAddress)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.AuthRequired = getEnvBool("AUTH_REQUIRED", cfg.AuthRequired)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)

	cfg.Pricing.CostPerKWh = getEnvFloat("COST_PER_KWH", cfg.Pricing.CostPerKWh)
	cfg.Pricing.AdminFeePerMonth = getEnvFloat("ADMIN_FEE_PER_MONTH", cfg.Pricing.AdminFeePerMonth)
	cfg.Pricing.Currency = getEnv("CURRENCY", cfg.Pricing.Currency)
	cfg.Pricing.RoundTotal = getEnvBool("ROUND_TOTAL", cfg.Pricing.RoundTotal)

	cfg.Sender.Name = getEnv("SENDER_NAME", cfg.Sender.Name)
	cfg.Sender.Address = getEnv("SENDER_ADDRESS", cfg.Sender.Address)
	cfg.Sender.BankName = getEnv("BANK_NAME", cfg.Sender.BankName)
	cfg.Sender.BankAccount = getEnv("BANK_ACCOUNT", cfg.Sender.BankAccount)
	cfg.Sender.BankAccountHolder = getEnv("BANK_ACCOUNT_HOLDER", cfg.Sender.BankAccountHolder)

	cfg.PaymentTermDays = getEnvInt("PAYMENT_TERM_DAYS", cfg.PaymentTermDays)
	cfg.InvoiceDuplicates = getEnv("INVOICE_DUPLICATES", cfg.InvoiceDuplicates)
	cfg.InvoiceLanguage = getEnv("INVOICE_LANGUAGE", cfg.InvoiceLanguage)
	cfg.HistoryDays = getEnvInt("HISTORY_DAYS", cfg.HistoryDays)
	cfg.AutoBillingDay = getEnvInt("AUTO_BILLING_DAY", cfg.AutoBillingDay)

	cfg.ZaptecBaseURL = strings.TrimRight(getEnv("ZAPTEC_BASE_URL", cfg.ZaptecBaseURL), "/")
	cfg.ZaptecUsername = getEnv("ZAPTEC_USERNAME", cfg.ZaptecUsername)
	cfg.ZaptecPassword = getEnv("ZAPTEC_PASSWORD", cfg.ZaptecPassword)
	cfg.ZaptecAPIKey = getEnv("ZAPTEC_API_KEY", cfg.ZaptecAPIKey)
	cfg.OCPPAPIURL = strings.TrimRight(getEnv("OCPP_API_URL", cfg.OCPPAPIURL), "/")
	cfg.OCPPAPIToken = getEnv("OCPP_API_TOKEN", cfg.OCPPAPIToken)

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	cfg.Renderer = getEnv("RENDERER", cfg.Renderer)
	cfg.ChromePath = getEnv("CHROME_PATH", cfg.ChromePath)

	cfg.Storage = getEnv("STORAGE", cfg.Storage)
	cfg.InvoiceDir = getEnv("INVOICE_DIR", cfg.InvoiceDir)
	cfg.S3.Endpoint = getEnv("S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.Bucket = getEnv("S3_BUCKET", cfg.S3.Bucket)
	cfg.S3.AccessKey = getEnv("S3_ACCESS_KEY", cfg.S3.AccessKey)
	cfg.S3.SecretKey = getEnv("S3_SECRET_KEY", cfg.S3.SecretKey)
	cfg.S3.Region = getEnv("S3_REGION", cfg.S3.Region)
	cfg.S3.UseSSL = getEnvBool("S3_USE_SSL", cfg.S3.UseSSL)
	cfg.SignedURLTTL = getEnvDuration("SIGNED_URL_TTL", cfg.SignedURLTTL)

	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", cfg.MQTT.TopicPrefix)
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.DatabasePath == "" {
		problems = append(problems, "DATABASE_PATH must not be empty")
	}
	if c.JWTSecret == "" {
		problems = append(problems, "JWT_SECRET must not be empty")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("invalid TIMEZONE %q: %v", c.Timezone, err))
	}
	if c.Pricing.CostPerKWh < 0 {
		problems = append(problems, "COST_PER_KWH must not be negative")
	}
	if c.Pricing.AdminFeePerMonth < 0 {
		problems = append(problems, "ADMIN_FEE_PER_MONTH must not be negative")
	}
	if c.Pricing.Currency == "" {
		problems = append(problems, "CURRENCY must not be empty")
	}
	if c.PaymentTermDays < 0 {
		problems = append(problems, "PAYMENT_TERM_DAYS must not be negative")
	}
	if c.HistoryDays < 1 || c.HistoryDays > 365 {
		problems = append(problems, fmt.Sprintf("HISTORY_DAYS %d must be between 1 and 365", c.HistoryDays))
	}
	if c.AutoBillingDay < 0 || c.AutoBillingDay > 28 {
		problems = append(problems, fmt.Sprintf("AUTO_BILLING_DAY %d must be between 0 and 28", c.AutoBillingDay))
	}
	if c.InvoiceDuplicates != DuplicatesAllow && c.InvoiceDuplicates != DuplicatesSkip {
		problems = append(problems, fmt.Sprintf("INVOICE_DUPLICATES %q must be %q or %q", c.InvoiceDuplicates, DuplicatesAllow, DuplicatesSkip))
	}
	if c.InvoiceLanguage != "sv" && c.InvoiceLanguage != "en" {
		problems = append(problems, fmt.Sprintf("INVOICE_LANGUAGE %q must be \"sv\" or \"en\"", c.InvoiceLanguage))
	}
	if _, err := url.ParseRequestURI(c.ZaptecBaseURL); err != nil {
		problems = append(problems, fmt.Sprintf("invalid ZAPTEC_BASE_URL %q", c.ZaptecBaseURL))
	}
	if c.OCPPAPIURL != "" {
		if _, err := url.ParseRequestURI(c.OCPPAPIURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid OCPP_API_URL %q", c.OCPPAPIURL))
		}
	}

	switch c.Renderer {
	case RendererPDF, RendererHTML:
	default:
		problems = append(problems, fmt.Sprintf("RENDERER %q must be %q or %q", c.Renderer, RendererPDF, RendererHTML))
	}

	switch c.Storage {
	case StorageLocal:
		if c.InvoiceDir == "" {
			problems = append(problems, "INVOICE_DIR must not be empty for local storage")
		}
	case StorageS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			problems = append(problems, "S3_ENDPOINT and S3_BUCKET are required for s3 storage")
		}
		if c.SignedURLTTL <= 0 || c.SignedURLTTL > 7*24*time.Hour {
			problems = append(problems, "SIGNED_URL_TTL must be between 1s and 168h")
		}
	default:
		problems = append(problems, fmt.Sprintf("STORAGE %q must be %q or %q", c.Storage, StorageLocal, StorageS3))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

// Location returns the time zone used to turn session timestamps into dates.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
