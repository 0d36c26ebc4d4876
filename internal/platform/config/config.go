package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultIdleTimeout    = 120 * time.Second
	defaultLogLevel       = "info"
	defaultDataDir        = "./public/data"
	defaultCatalogTimeout = 8 * time.Second
	defaultStorageBackend = "badger"
	defaultStoragePath    = "./.data/cart"
	defaultCartKey        = "cart"
	defaultMaxLineQty     = 99
	defaultMerchantID     = "17613812255336763067"
	defaultMerchantName   = "Demo Only (you will not be charged)"
	defaultGateway        = "stripe"
	defaultGatewayVersion = "2018-10-31"
	defaultGatewayKey     = "pk_test_MNKMwKAvgdo2yKOhIeCOE6MZ00yS3mWShu"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Catalog CatalogConfig
	Storage StorageConfig
	Cart    CartConfig
	Payment PaymentConfig
	Policy  Policy
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string
}

// CatalogConfig points the catalog at its data source. BaseURL wins over DataDir when set.
type CatalogConfig struct {
	BaseURL string
	DataDir string
	Timeout time.Duration
}

// StorageConfig selects the cart persistence backend.
type StorageConfig struct {
	Backend string
	Path    string
	CartKey string
}

// CartConfig bounds what a single cart line may hold.
type CartConfig struct {
	MaxLineQuantity int
}

// PaymentConfig carries the merchant and tokenization parameters of the payment request.
type PaymentConfig struct {
	MerchantID         string
	MerchantName       string
	Gateway            string
	GatewayVersion     string
	GatewayMerchantKey string
}

// ValidationError is returned when configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration from defaults, .env overrides, environment variables and
// the optional pricing policy file.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Log: LogConfig{
			Level: stringWithDefault(lookup, "STOREFRONT_LOG_LEVEL", defaultLogLevel),
		},
		Catalog: CatalogConfig{
			BaseURL: strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_CATALOG_BASE_URL", ""), "/"),
			DataDir: stringWithDefault(lookup, "STOREFRONT_CATALOG_DATA_DIR", defaultDataDir),
			Timeout: durationWithDefault(lookup, "STOREFRONT_CATALOG_TIMEOUT", defaultCatalogTimeout),
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_STORAGE_BACKEND", defaultStorageBackend)),
			Path:    stringWithDefault(lookup, "STOREFRONT_STORAGE_PATH", defaultStoragePath),
			CartKey: stringWithDefault(lookup, "STOREFRONT_STORAGE_CART_KEY", defaultCartKey),
		},
		Cart: CartConfig{
			MaxLineQuantity: intWithDefault(lookup, "STOREFRONT_CART_MAX_LINE_QUANTITY", defaultMaxLineQty),
		},
		Payment: PaymentConfig{
			MerchantID:         stringWithDefault(lookup, "STOREFRONT_MERCHANT_ID", defaultMerchantID),
			MerchantName:       stringWithDefault(lookup, "STOREFRONT_MERCHANT_NAME", defaultMerchantName),
			Gateway:            stringWithDefault(lookup, "STOREFRONT_PAYMENT_GATEWAY", defaultGateway),
			GatewayVersion:     stringWithDefault(lookup, "STOREFRONT_PAYMENT_GATEWAY_VERSION", defaultGatewayVersion),
			GatewayMerchantKey: stringWithDefault(lookup, "STOREFRONT_PAYMENT_GATEWAY_MERCHANT_KEY", defaultGatewayKey),
		},
	}

	policyFile := stringWithDefault(lookup, "STOREFRONT_POLICY_FILE", "")
	if policyFile == "" {
		cfg.Policy = DefaultPolicy()
	} else {
		policy, err := LoadPolicyFile(policyFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Policy = policy
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	if strings.TrimSpace(cfg.Server.Port) == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Server.ReadTimeout <= 0 {
		invalid = append(invalid, "Server.ReadTimeout")
	}
	if cfg.Server.WriteTimeout <= 0 {
		invalid = append(invalid, "Server.WriteTimeout")
	}
	if cfg.Catalog.BaseURL == "" && strings.TrimSpace(cfg.Catalog.DataDir) == "" {
		invalid = append(invalid, "Catalog.DataDir")
	}
	if cfg.Catalog.Timeout <= 0 {
		invalid = append(invalid, "Catalog.Timeout")
	}
	switch cfg.Storage.Backend {
	case "badger", "memory":
	default:
		invalid = append(invalid, "Storage.Backend")
	}
	if strings.TrimSpace(cfg.Storage.CartKey) == "" {
		invalid = append(invalid, "Storage.CartKey")
	}
	if cfg.Cart.MaxLineQuantity <= 0 {
		invalid = append(invalid, "Cart.MaxLineQuantity")
	}
	if strings.TrimSpace(cfg.Payment.MerchantName) == "" {
		invalid = append(invalid, "Payment.MerchantName")
	}
	if strings.TrimSpace(cfg.Payment.Gateway) == "" {
		invalid = append(invalid, "Payment.Gateway")
	}
	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return fallback
}
