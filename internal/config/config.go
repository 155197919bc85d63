package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Shopify  ShopifyConfig  `yaml:"shopify"`
	Risk     RiskConfig     `yaml:"risk"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Temporal TemporalConfig `yaml:"temporal"`
	Delivery DeliveryConfig `yaml:"delivery"`
	LogLevel string         `yaml:"log_level"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ProxyPrefix     string        `yaml:"proxy_prefix"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// TrustedProxies lists the IPs or CIDRs allowed to append to
	// X-Forwarded-For. Empty means the peer address is the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// TrustedPrefixes parses TrustedProxies. A bare IP becomes a single-host
// prefix.
func (c ServerConfig) TrustedPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, v := range c.TrustedProxies {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("server.trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type ShopifyConfig struct {
	APIKey           string            `yaml:"api_key"`
	APISecret        string            `yaml:"api_secret"`
	APIVersion       string            `yaml:"api_version"`
	CompleteAccepted bool              `yaml:"complete_accepted"`
	RequestTimeout   time.Duration     `yaml:"request_timeout"`
	RetryBackoff     time.Duration     `yaml:"retry_backoff"`
	AccessTokens     map[string]string `yaml:"access_tokens"`
}

type RiskConfig struct {
	FlagThreshold   int           `yaml:"flag_threshold"`
	RejectThreshold int           `yaml:"reject_threshold"`
	Window          time.Duration `yaml:"window"`
	VelocityLimit   int           `yaml:"velocity_limit"`
	MaxQuantity     int           `yaml:"max_quantity"`
	MaxWilayaCode   int           `yaml:"max_wilaya_code"`
	BlockedWords    []string      `yaml:"blocked_words"`
	Weights         RiskWeights   `yaml:"weights"`
}

type RiskWeights struct {
	InvalidPhone      int `yaml:"invalid_phone"`
	MissingPhone      int `yaml:"missing_phone"`
	DuplicateSession  int `yaml:"duplicate_session"`
	DuplicatePhone    int `yaml:"duplicate_phone"`
	PhoneVelocity     int `yaml:"phone_velocity"`
	SuspiciousAddress int `yaml:"suspicious_address"`
	SuspiciousName    int `yaml:"suspicious_name"`
	UnknownWilaya     int `yaml:"unknown_wilaya"`
	BulkQuantity      int `yaml:"bulk_quantity"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	OrdersTopic string   `yaml:"orders_topic"`
	CartsTopic  string   `yaml:"carts_topic"`
}

type TemporalConfig struct {
	HostPort  string `yaml:"host_port"`
	Namespace string `yaml:"namespace"`
}

type DeliveryConfig struct {
	Title      string         `yaml:"title"`
	DefaultFee int            `yaml:"default_fee"`
	Fees       map[string]int `yaml:"fees"`
}

// Default returns the configuration used when no file or env override is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8090",
			ProxyPrefix:     "/proxy/cod",
			RateLimitRPS:    5,
			RateLimitBurst:  20,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Shopify: ShopifyConfig{
			APIVersion:       "2024-10",
			CompleteAccepted: true,
			RequestTimeout:   10 * time.Second,
			RetryBackoff:     500 * time.Millisecond,
		},
		Risk: RiskConfig{
			FlagThreshold:   40,
			RejectThreshold: 80,
			Window:          time.Hour,
			VelocityLimit:   3,
			MaxQuantity:     10,
			MaxWilayaCode:   58,
			BlockedWords:    []string{"test", "fake", "xxx"},
			Weights: RiskWeights{
				InvalidPhone:      40,
				MissingPhone:      20,
				DuplicateSession:  20,
				DuplicatePhone:    25,
				PhoneVelocity:     60,
				SuspiciousAddress: 25,
				SuspiciousName:    15,
				UnknownWilaya:     15,
				BulkQuantity:      20,
			},
		},
		Kafka: KafkaConfig{
			OrdersTopic: "cod.orders",
			CartsTopic:  "cod.carts",
		},
		Temporal: TemporalConfig{
			Namespace: "default",
		},
		Delivery: DeliveryConfig{
			Title:      "Livraison",
			DefaultFee: 800,
		},
		LogLevel: "info",
	}
}

// DefaultPath is $COD_CONFIG, or config.yaml in the working directory.
func DefaultPath() string {
	if v := os.Getenv("COD_CONFIG"); v != "" {
		return v
	}
	return "config.yaml"
}

// Load reads path (if it exists) over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.Server.TrustedProxies = splitList(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("SHOPIFY_API_KEY"); v != "" {
		cfg.Shopify.APIKey = v
	}
	if v := os.Getenv("SHOPIFY_API_SECRET"); v != "" {
		cfg.Shopify.APISecret = v
	}
	if v := os.Getenv("SHOPIFY_API_VERSION"); v != "" {
		cfg.Shopify.APIVersion = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("TEMPORAL_HOSTPORT"); v != "" {
		cfg.Temporal.HostPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if n, ok := intFromEnv("RISK_FLAG_THRESHOLD"); ok {
		cfg.Risk.FlagThreshold = n
	}
	if n, ok := intFromEnv("RISK_REJECT_THRESHOLD"); ok {
		cfg.Risk.RejectThreshold = n
	}
}

// Validate checks the values that would otherwise fail at request time.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if !strings.HasPrefix(c.Server.ProxyPrefix, "/") {
		return fmt.Errorf("server.proxy_prefix must start with /: %q", c.Server.ProxyPrefix)
	}
	if _, err := c.Server.TrustedPrefixes(); err != nil {
		return err
	}
	if c.Risk.FlagThreshold <= 0 || c.Risk.RejectThreshold <= 0 {
		return errors.New("risk thresholds must be positive")
	}
	if c.Risk.FlagThreshold >= c.Risk.RejectThreshold {
		return fmt.Errorf("risk.flag_threshold (%d) must be below risk.reject_threshold (%d)",
			c.Risk.FlagThreshold, c.Risk.RejectThreshold)
	}
	if c.Risk.Window <= 0 {
		return errors.New("risk.window must be positive")
	}
	if c.Shopify.RequestTimeout <= 0 {
		return errors.New("shopify.request_timeout must be positive")
	}
	return nil
}

// FeeFor returns the delivery fee for a wilaya code, falling back to the default.
func (d DeliveryConfig) FeeFor(wilayaCode string) int {
	if fee, ok := d.Fees[strings.TrimLeft(wilayaCode, "0")]; ok {
		return fee
	}
	if fee, ok := d.Fees[wilayaCode]; ok {
		return fee
	}
	return d.DefaultFee
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intFromEnv(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
