// Package config loads the gateway configuration from YAML with environment
// expansion and credential fallbacks.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
	"github.com/shigeo-nakamura/dex-router/internal/utils"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvMode selects default endpoints and which credential set is read.
type EnvMode string

const (
	EnvModeTestnet EnvMode = "TESTNET"
	EnvModeMainnet EnvMode = "MAINNET"
)

const (
	DefaultListen            = ":8080"
	DefaultLogLevel          = "info"
	DefaultFillExpiration    = 60 * time.Second
	MinFillExpiration        = 10 * time.Second
	MaxFillExpiration        = 60 * time.Second
	DefaultSweepInterval     = 10 * time.Second
	DefaultConfirmAttempts   = 10
	DefaultConfirmInterval   = time.Second
	DefaultRequestTimeout    = time.Second
	DefaultRequestsPerSecond = 10
)

// Config is the root of the YAML file.
type Config struct {
	EnvMode   EnvMode         `yaml:"env_mode" json:"env_mode" jsonschema:"title=Environment,enum=TESTNET,enum=MAINNET" validate:"required,oneof=TESTNET MAINNET"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Exchanges ExchangesConfig `yaml:"exchanges" json:"exchanges"`
}

// ServerConfig configures the HTTP router.
type ServerConfig struct {
	Listen string `yaml:"listen" json:"listen" jsonschema:"title=Listen address,default=:8080"`
	// APIKey is compared with the Authorization header of every request.
	APIKey string `yaml:"api_key" json:"api_key" jsonschema:"title=API key,description=Value expected in the Authorization header" validate:"required"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level" jsonschema:"title=Log level,enum=debug,enum=info,enum=warn,enum=error" validate:"omitempty,oneof=debug info warn error"`
}

// CacheConfig tunes the fill cache of every adapter.
type CacheConfig struct {
	FillExpiration time.Duration `yaml:"fill_expiration" json:"fill_expiration" jsonschema:"title=Fill expiration,description=How long fill records are kept (10s to 60s)"`
	SweepInterval  time.Duration `yaml:"sweep_interval" json:"sweep_interval" jsonschema:"title=Sweep interval"`
}

type ExchangesConfig struct {
	Mufex          ExchangeConfig `yaml:"mufex" json:"mufex"`
	Apex           ExchangeConfig `yaml:"apex" json:"apex"`
	BinanceFutures ExchangeConfig `yaml:"binance_futures" json:"binance_futures"`
}

// ExchangeConfig configures one adapter. Empty credentials are read from the
// environment, see applyEnvCredentials.
type ExchangeConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	APIKey          string `yaml:"api_key" json:"api_key,omitempty"`
	APISecret       string `yaml:"api_secret" json:"api_secret,omitempty"`
	Passphrase      string `yaml:"passphrase" json:"passphrase,omitempty"`
	OrderSigningKey string `yaml:"order_signing_key" json:"order_signing_key,omitempty" jsonschema:"description=Hex Stark private key that signs orders (ApeX)"`

	BaseURL          string `yaml:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	PublicStreamURL  string `yaml:"public_stream_url" json:"public_stream_url,omitempty" validate:"omitempty,url"`
	PrivateStreamURL string `yaml:"private_stream_url" json:"private_stream_url,omitempty" validate:"omitempty,url"`

	RecvWindow        int64         `yaml:"recv_window" json:"recv_window,omitempty" validate:"gte=0"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second,omitempty" validate:"gte=0"`
	Burst             int           `yaml:"burst" json:"burst,omitempty" validate:"gte=0"`

	PaddingTicks   int64  `yaml:"padding_ticks" json:"padding_ticks,omitempty" validate:"gte=0"`
	PaddingPercent string `yaml:"padding_percent" json:"padding_percent,omitempty" jsonschema:"description=Fraction of the price; wins over padding_ticks"`

	ConfirmAttempts int           `yaml:"confirm_attempts" json:"confirm_attempts,omitempty" validate:"gte=0"`
	ConfirmInterval time.Duration `yaml:"confirm_interval" json:"confirm_interval,omitempty"`
	OrderExpiry     time.Duration `yaml:"order_expiry" json:"order_expiry,omitempty"`

	// Symbols are subscribed on the ticker feed.
	Symbols []string `yaml:"symbols" json:"symbols,omitempty"`
}

// Padding returns the instant-fill padding. Percent wins when set.
func (e ExchangeConfig) Padding() utils.Padding {
	if e.PaddingPercent != "" {
		if pct, err := decimal.NewFromString(e.PaddingPercent); err == nil && pct.IsPositive() {
			return utils.PercentPadding(pct)
		}
	}

	if e.PaddingTicks > 0 {
		return utils.TickPadding(e.PaddingTicks)
	}

	return utils.TickPadding(utils.DefaultPaddingTicks)
}

// Mainnet reports whether production endpoints are used.
func (c *Config) Mainnet() bool {
	return c.EnvMode == EnvModeMainnet
}

// LogLevel parses the configured level.
func (c *Config) LogLevel() zapcore.Level {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return zapcore.InfoLevel
	}

	return level
}

// Default returns a configuration with every default filled in. It is also
// the sample written by the schema command.
func Default() *Config {
	c := &Config{EnvMode: EnvModeTestnet}
	c.applyDefaults()

	return c
}

// Load reads path, expanding ${VAR} references from the environment. When
// envFile is set it is loaded into the environment first; a missing env file
// is not an error.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrCodeConfiguration, err, "failed to load env file %s", envFile)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeConfiguration, err, "failed to read config %s", path)
	}

	return Parse(raw)
}

// Parse decodes, completes and validates a YAML document.
func Parse(raw []byte) (*Config, error) {
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	decoder.KnownFields(true)

	var c Config
	if err := decoder.Decode(&c); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, "failed to parse config", err)
	}

	c.EnvMode = EnvMode(strings.ToUpper(string(c.EnvMode)))
	c.applyDefaults()
	c.applyEnvCredentials()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	if c.Cache.FillExpiration == 0 {
		c.Cache.FillExpiration = DefaultFillExpiration
	}

	if c.Cache.SweepInterval == 0 {
		c.Cache.SweepInterval = DefaultSweepInterval
	}

	for _, e := range c.Exchanges.all() {
		if e.Timeout == 0 {
			e.Timeout = DefaultRequestTimeout
		}

		if e.RequestsPerSecond == 0 {
			e.RequestsPerSecond = DefaultRequestsPerSecond
		}

		if e.ConfirmAttempts == 0 {
			e.ConfirmAttempts = DefaultConfirmAttempts
		}

		if e.ConfirmInterval == 0 {
			e.ConfirmInterval = DefaultConfirmInterval
		}
	}
}

// named maps each exchange block to its environment variable prefix.
func (e *ExchangesConfig) named() map[string]*ExchangeConfig {
	return map[string]*ExchangeConfig{
		"MUFEX":   &e.Mufex,
		"APEX":    &e.Apex,
		"BINANCE": &e.BinanceFutures,
	}
}

func (e *ExchangesConfig) all() []*ExchangeConfig {
	return []*ExchangeConfig{&e.Mufex, &e.Apex, &e.BinanceFutures}
}

// applyEnvCredentials fills empty credentials from <PREFIX>_<FIELD>_MAIN or
// <PREFIX>_<FIELD>_TEST depending on the environment mode, e.g.
// MUFEX_API_KEY_TEST.
func (c *Config) applyEnvCredentials() {
	suffix := "_TEST"
	if c.Mainnet() {
		suffix = "_MAIN"
	}

	for prefix, e := range c.Exchanges.named() {
		fields := map[string]*string{
			"API_KEY":           &e.APIKey,
			"API_SECRET":        &e.APISecret,
			"PASSPHRASE":        &e.Passphrase,
			"ORDER_SIGNING_KEY": &e.OrderSigningKey,
		}

		for name, target := range fields {
			if *target == "" {
				*target = os.Getenv(prefix + "_" + name + suffix)
			}
		}
	}
}

// Validate checks the struct tags and the cross-field rules.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeConfiguration, "invalid config", err)
	}

	if c.Cache.FillExpiration < MinFillExpiration || c.Cache.FillExpiration > MaxFillExpiration {
		return errors.Newf(errors.ErrCodeConfiguration, "cache.fill_expiration must be between %s and %s, got %s",
			MinFillExpiration, MaxFillExpiration, c.Cache.FillExpiration)
	}

	if c.Cache.SweepInterval <= 0 {
		return errors.New(errors.ErrCodeConfiguration, "cache.sweep_interval must be positive")
	}

	enabled := 0

	for prefix, e := range c.Exchanges.named() {
		if !e.Enabled {
			continue
		}

		enabled++

		if e.APIKey == "" || e.APISecret == "" {
			return errors.Newf(errors.ErrCodeMissingSecret, "%s api key and secret are required", strings.ToLower(prefix))
		}

		if e.PaddingPercent != "" {
			if _, err := decimal.NewFromString(e.PaddingPercent); err != nil {
				return errors.Wrapf(errors.ErrCodeConfiguration, err, "%s padding_percent is not a number", strings.ToLower(prefix))
			}
		}
	}

	if c.Exchanges.Apex.Enabled && (c.Exchanges.Apex.Passphrase == "" || c.Exchanges.Apex.OrderSigningKey == "") {
		return errors.New(errors.ErrCodeMissingSecret, "apex passphrase and order signing key are required")
	}

	if enabled == 0 {
		return errors.New(errors.ErrCodeConfiguration, "no exchange is enabled")
	}

	return nil
}

// Schema returns the JSON schema of the configuration file.
func Schema() (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	schema := r.Reflect(&Config{})

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeUnknown, "failed to marshal config schema", err)
	}

	return string(schemaBytes), nil
}

// SampleYAML renders Default as YAML, prefixed with a schema hint for editors.
func SampleYAML(schemaName string) ([]byte, error) {
	out, err := yaml.Marshal(Default())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUnknown, "failed to marshal sample config", err)
	}

	return append([]byte("# yaml-language-server: $schema="+schemaName+"\n"), out...), nil
}
