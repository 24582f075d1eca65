package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server     ServerConfig     `envconfig:"SERVER"`
	Database   DatabaseConfig   `envconfig:"DB"`
	JWT        JWTConfig        `envconfig:"JWT"`
	Extraction ExtractionConfig `envconfig:"EXTRACTION"`
	Gemini     GeminiConfig     `envconfig:"GEMINI"`
	GigaChat   GigaChatConfig   `envconfig:"GIGACHAT"`
	ABR        ABRConfig        `envconfig:"ABR"`
	Storage    StorageConfig    `envconfig:"STORAGE"`
	Xero       XeroConfig       `envconfig:"XERO"`
	Export     ExportConfig     `envconfig:"EXPORT"`
	Stripe     StripeConfig     `envconfig:"STRIPE"`
	Logger     LoggerConfig     `envconfig:"LOG"`

	// ProcessingStaleAfter is how long a PROCESSING claim is honoured
	// before another digitize run may take the document over.
	ProcessingStaleAfter time.Duration `envconfig:"PROCESSING_STALE_AFTER" default:"10m"`
}

type LoggerConfig struct {
	Level string `envconfig:"LEVEL" default:"info"`
}

type ServerConfig struct {
	Port         string        `envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"120s"`
	BodyLimitMB  int           `envconfig:"BODY_LIMIT_MB" default:"20"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     string `envconfig:"PORT" default:"5432"`
	User     string `envconfig:"USER" default:"postgres"`
	Password string `envconfig:"PASSWORD" default:"postgres"`
	DBName   string `envconfig:"NAME" default:"receiptflow"`
	SSLMode  string `envconfig:"SSLMODE" default:"disable"`
}

type JWTConfig struct {
	SecretKey  string        `envconfig:"SECRET_KEY" default:"change-me"`
	Expiration time.Duration `envconfig:"EXPIRATION" default:"24h"`
	RefreshExp time.Duration `envconfig:"REFRESH_EXPIRATION" default:"168h"`
}

type ExtractionConfig struct {
	// Provider selects the vision backend: gemini or gigachat.
	Provider string        `envconfig:"PROVIDER" default:"gemini"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"90s"`
	// Fallback keeps a document moving with empty fields when the
	// provider fails after all retries.
	Fallback     bool          `envconfig:"FALLBACK" default:"true"`
	MaxAttempts  int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	RetryBackoff time.Duration `envconfig:"RETRY_BACKOFF" default:"2s"`
}

type GeminiConfig struct {
	APIKey string `envconfig:"API_KEY"`
	Model  string `envconfig:"MODEL" default:"gemini-2.0-flash"`
}

type GigaChatConfig struct {
	APIKey             string `envconfig:"API_KEY"`
	Scope              string `envconfig:"SCOPE" default:"GIGACHAT_API_PERS"`
	InsecureSkipVerify bool   `envconfig:"INSECURE_SKIP_VERIFY" default:"true"`
	Model              string `envconfig:"MODEL" default:"GigaChat"`
}

type ABRConfig struct {
	GUID    string        `envconfig:"GUID"`
	BaseURL string        `envconfig:"BASE_URL" default:"https://abr.business.gov.au/json"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"15s"`
}

type StorageConfig struct {
	// Driver is local or s3.
	Driver    string `envconfig:"DRIVER" default:"local"`
	UploadDir string `envconfig:"UPLOAD_DIR" default:"./uploads"`
	S3Bucket  string `envconfig:"S3_BUCKET"`
	S3Region  string `envconfig:"S3_REGION" default:"ap-southeast-2"`
}

type XeroConfig struct {
	ClientID           string `envconfig:"CLIENT_ID"`
	ClientSecret       string `envconfig:"CLIENT_SECRET"`
	TenantID           string `envconfig:"TENANT_ID"`
	TokenURL           string `envconfig:"TOKEN_URL" default:"https://identity.xero.com/connect/token"`
	BaseURL            string `envconfig:"BASE_URL" default:"https://api.xero.com/api.xro/2.0"`
	BankAccountCode    string `envconfig:"BANK_ACCOUNT_CODE" default:"090"`
	DefaultAccountCode string `envconfig:"DEFAULT_ACCOUNT_CODE" default:"429"`
}

type ExportConfig struct {
	Concurrency int `envconfig:"CONCURRENCY" default:"4"`
}

type StripeConfig struct {
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	for _, envFile := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Extraction.Provider {
	case "gemini", "gigachat":
	default:
		return fmt.Errorf("unknown extraction provider %q", c.Extraction.Provider)
	}
	switch c.Storage.Driver {
	case "local":
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("STORAGE_S3_BUCKET is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.ProcessingStaleAfter <= c.Extraction.Timeout {
		return fmt.Errorf("PROCESSING_STALE_AFTER (%s) must be longer than EXTRACTION_TIMEOUT (%s)",
			c.ProcessingStaleAfter, c.Extraction.Timeout)
	}
	if c.Export.Concurrency < 1 {
		c.Export.Concurrency = 1
	}
	if c.Extraction.MaxAttempts < 1 {
		c.Extraction.MaxAttempts = 1
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
