package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Processor     ProcessorConfig     `mapstructure:"processor"`
	Reconcile     ReconcileConfig     `mapstructure:"reconcile"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Nonce         NonceConfig         `mapstructure:"nonce"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RateLimit       int           `mapstructure:"rate_limit"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// ProcessorConfig configures the remote payment processor.
type ProcessorConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Driver         string        `mapstructure:"driver"` // flutterwave | mock
	BaseURL        string        `mapstructure:"base_url"`
	GoLive         bool          `mapstructure:"go_live"`
	LiveSecretKey  string        `mapstructure:"live_secret_key"`
	LivePublicKey  string        `mapstructure:"live_public_key"`
	TestSecretKey  string        `mapstructure:"test_secret_key"`
	TestPublicKey  string        `mapstructure:"test_public_key"`
	PaymentOptions string        `mapstructure:"payment_options"`
	Title          string        `mapstructure:"title"`
	Description    string        `mapstructure:"description"`
	TestReference  bool          `mapstructure:"test_reference"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`

	CircuitBreakerMinRequests  uint32        `mapstructure:"circuit_breaker_min_requests"`
	CircuitBreakerFailureRatio float64       `mapstructure:"circuit_breaker_failure_ratio"`
	CircuitBreakerTimeout      time.Duration `mapstructure:"circuit_breaker_timeout"`
}

// SecretKey returns the secret key for the selected environment.
func (c *ProcessorConfig) SecretKey() string {
	if c.GoLive {
		return c.LiveSecretKey
	}
	return c.TestSecretKey
}

// PublicKey returns the public key for the selected environment.
func (c *ProcessorConfig) PublicKey() string {
	if c.GoLive {
		return c.LivePublicKey
	}
	return c.TestPublicKey
}

// RequeryBudget is the longest a single processor call can take with every
// retry exhausted: each attempt hits RequestTimeout and the backoff between
// attempts doubles from RetryDelay up to ten times RetryDelay.
func (c *ProcessorConfig) RequeryBudget() time.Duration {
	attempts := c.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	budget := time.Duration(attempts) * c.RequestTimeout
	delay := c.RetryDelay
	for i := 1; i < attempts; i++ {
		budget += min(delay, 10*c.RetryDelay)
		delay *= 2
	}
	return budget
}

// MissingKeys lists the key settings left empty for the selected environment.
func (c *ProcessorConfig) MissingKeys() []string {
	mode := "test"
	if c.GoLive {
		mode = "live"
	}
	var missing []string
	if c.SecretKey() == "" {
		missing = append(missing, "processor."+mode+"_secret_key")
	}
	if c.PublicKey() == "" {
		missing = append(missing, "processor."+mode+"_public_key")
	}
	return missing
}

type ReconcileConfig struct {
	Epsilon          float64       `mapstructure:"epsilon"`
	AutoComplete     bool          `mapstructure:"auto_complete"`
	Subscriptions    bool          `mapstructure:"subscriptions"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
	LockWait         time.Duration `mapstructure:"lock_wait"`
	NotifyURL        string        `mapstructure:"notify_url"`
	OrderReceivedURL string        `mapstructure:"order_received_url"`
	CartURL          string        `mapstructure:"cart_url"`
	HomeURL          string        `mapstructure:"home_url"`
}

type WebhookConfig struct {
	SecretHash    string `mapstructure:"secret_hash"`
	SignatureMode string `mapstructure:"signature_mode"` // shared | hmac
	HMACSecret    string `mapstructure:"hmac_secret"`
}

type NonceConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// MaintenanceConfig drives the worker's housekeeping loop.
type MaintenanceConfig struct {
	IdempotencyCleanupInterval time.Duration `mapstructure:"idempotency_cleanup_interval"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CHECKOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/checkout-reconciler")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks structural settings. Missing processor keys are not an
// error here; initiation reports them to the merchant instead.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	switch c.Processor.Driver {
	case "flutterwave", "mock":
	default:
		errs = append(errs, fmt.Errorf("processor.driver must be flutterwave or mock, got %q", c.Processor.Driver))
	}
	if c.Processor.Driver == "flutterwave" && c.Processor.BaseURL == "" {
		errs = append(errs, fmt.Errorf("processor.base_url is required"))
	}
	if c.Reconcile.Epsilon < 0 {
		errs = append(errs, fmt.Errorf("reconcile.epsilon must not be negative"))
	}
	if c.Reconcile.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("reconcile.lock_ttl must be positive"))
	}
	if c.Reconcile.NotifyURL == "" {
		errs = append(errs, fmt.Errorf("reconcile.notify_url is required"))
	}
	if !strings.Contains(c.Reconcile.OrderReceivedURL, "{order_id}") {
		errs = append(errs, fmt.Errorf("reconcile.order_received_url must contain {order_id}"))
	}
	switch c.Webhook.SignatureMode {
	case "shared":
	case "hmac":
		if c.Webhook.HMACSecret == "" {
			errs = append(errs, fmt.Errorf("webhook.hmac_secret is required when webhook.signature_mode is hmac"))
		}
	default:
		errs = append(errs, fmt.Errorf("webhook.signature_mode must be shared or hmac, got %q", c.Webhook.SignatureMode))
	}
	if c.Nonce.TTL <= 0 {
		errs = append(errs, fmt.Errorf("nonce.ttl must be positive"))
	}
	if c.Maintenance.IdempotencyCleanupInterval < 0 {
		errs = append(errs, fmt.Errorf("maintenance.idempotency_cleanup_interval must not be negative"))
	}

	// A reconciliation holds the order lock and the response open for the
	// whole processor call.
	if budget := c.Processor.RequeryBudget(); budget > 0 {
		if c.Server.WriteTimeout > 0 && budget >= c.Server.WriteTimeout {
			errs = append(errs, fmt.Errorf("processor call budget %s (request_timeout x max_retries + backoff) must be below server.write_timeout %s", budget, c.Server.WriteTimeout))
		}
		if c.Reconcile.LockTTL > 0 && budget >= c.Reconcile.LockTTL {
			errs = append(errs, fmt.Errorf("processor call budget %s (request_timeout x max_retries + backoff) must be below reconcile.lock_ttl %s", budget, c.Reconcile.LockTTL))
		}
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Processor.Driver == "mock" {
			errs = append(errs, fmt.Errorf("processor.driver mock is not allowed in production"))
		}
		if c.Webhook.SignatureMode == "shared" && (c.Webhook.SecretHash == "" || c.Webhook.SecretHash == DefaultSecretHash) {
			errs = append(errs, fmt.Errorf("webhook.secret_hash must be set to a private value in production"))
		}
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

// secretKeys have no default value. They are registered so that viper
// resolves them from CHECKOUT_* variables.
var secretKeys = []string{
	"database.password",
	"redis.password",
	"processor.live_secret_key",
	"processor.live_public_key",
	"processor.test_secret_key",
	"processor.test_public_key",
	"webhook.hmac_secret",
	"auth.jwt_secret",
}

func setDefaults(v *viper.Viper) {
	for _, key := range secretKeys {
		v.SetDefault(key, "")
	}

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "45s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "checkout")
	v.SetDefault("database.database", "checkout")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Processor defaults
	v.SetDefault("processor.enabled", true)
	v.SetDefault("processor.driver", "flutterwave")
	v.SetDefault("processor.base_url", "https://api.flutterwave.com")
	v.SetDefault("processor.go_live", false)
	v.SetDefault("processor.payment_options", "card")
	v.SetDefault("processor.title", "Order Payment")
	v.SetDefault("processor.description", "Payment for items on order")
	v.SetDefault("processor.test_reference", false)
	v.SetDefault("processor.request_timeout", "10s")
	v.SetDefault("processor.max_retries", 3)
	v.SetDefault("processor.retry_delay", "500ms")
	v.SetDefault("processor.circuit_breaker_min_requests", 10)
	v.SetDefault("processor.circuit_breaker_failure_ratio", 0.6)
	v.SetDefault("processor.circuit_breaker_timeout", "30s")

	// Reconcile defaults
	v.SetDefault("reconcile.epsilon", 0.01)
	v.SetDefault("reconcile.auto_complete", false)
	v.SetDefault("reconcile.subscriptions", false)
	v.SetDefault("reconcile.lock_ttl", "45s")
	v.SetDefault("reconcile.lock_wait", "5s")
	v.SetDefault("reconcile.notify_url", "http://localhost:8080/payment/return")
	v.SetDefault("reconcile.order_received_url", "http://localhost:3000/checkout/order-received/{order_id}")
	v.SetDefault("reconcile.cart_url", "http://localhost:3000/cart")
	v.SetDefault("reconcile.home_url", "http://localhost:3000/")

	// Webhook defaults
	v.SetDefault("webhook.secret_hash", DefaultSecretHash)
	v.SetDefault("webhook.signature_mode", "shared")

	// Nonce defaults
	v.SetDefault("nonce.ttl", "24h")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.service_name", "checkout-reconciler")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Maintenance defaults
	v.SetDefault("maintenance.idempotency_cleanup_interval", "1h")

	// Auth defaults
	v.SetDefault("auth.jwt_expiry", "24h")

	v.SetDefault("instance_id", "checkout-reconciler-1")
}

// DefaultSecretHash is sha256("Rave-Secret-Hash"), the value merchants get
// until they set their own webhook secret.
const DefaultSecretHash = "a4a6e4c86fc1347a48eeab1171f7fea1a10eecbac223b86db3b3e3e134fefa40"

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL is the URL form golang-migrate expects.
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
