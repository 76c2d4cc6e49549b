package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shigeo-nakamura/dex-router/internal/utils"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

const minimal = `
env_mode: testnet
server:
  api_key: secret-token
exchanges:
  mufex:
    enabled: true
    api_key: key
    api_secret: secret
`

func (suite *ConfigTestSuite) TestParseAppliesDefaults() {
	c, err := Parse([]byte(minimal))
	suite.Require().NoError(err)

	suite.Equal(EnvModeTestnet, c.EnvMode)
	suite.False(c.Mainnet())
	suite.Equal(DefaultListen, c.Server.Listen)
	suite.Equal(zapcore.InfoLevel, c.LogLevel())
	suite.Equal(60*time.Second, c.Cache.FillExpiration)
	suite.Equal(10*time.Second, c.Cache.SweepInterval)
	suite.Equal(time.Second, c.Exchanges.Mufex.Timeout)
	suite.Equal(DefaultConfirmAttempts, c.Exchanges.Mufex.ConfirmAttempts)
	suite.Equal(utils.TickPadding(utils.DefaultPaddingTicks), c.Exchanges.Mufex.Padding())
}

func (suite *ConfigTestSuite) TestParseFullDocument() {
	c, err := Parse([]byte(`
env_mode: MAINNET
server:
  listen: 127.0.0.1:9000
  api_key: token
log:
  level: debug
cache:
  fill_expiration: 30s
  sweep_interval: 5s
exchanges:
  apex:
    enabled: true
    api_key: k
    api_secret: s
    passphrase: p
    order_signing_key: "0101"
    timeout: 2s
    padding_percent: "0.01"
    confirm_attempts: 3
    confirm_interval: 500ms
    order_expiry: 24h
    symbols: [BTC-USDC, ETH-USDC]
`))
	suite.Require().NoError(err)

	suite.True(c.Mainnet())
	suite.Equal("127.0.0.1:9000", c.Server.Listen)
	suite.Equal(zapcore.DebugLevel, c.LogLevel())
	suite.Equal(30*time.Second, c.Cache.FillExpiration)
	suite.Equal(5*time.Second, c.Cache.SweepInterval)

	apex := c.Exchanges.Apex
	suite.Equal(2*time.Second, apex.Timeout)
	suite.Equal(3, apex.ConfirmAttempts)
	suite.Equal(500*time.Millisecond, apex.ConfirmInterval)
	suite.Equal(24*time.Hour, apex.OrderExpiry)
	suite.Equal([]string{"BTC-USDC", "ETH-USDC"}, apex.Symbols)
	suite.True(decimal.RequireFromString("0.01").Equal(apex.Padding().Percent))
}

func (suite *ConfigTestSuite) TestParseExpandsEnvironment() {
	suite.T().Setenv("DEX_ROUTER_TEST_TOKEN", "from-env")

	c, err := Parse([]byte(`
env_mode: TESTNET
server:
  api_key: ${DEX_ROUTER_TEST_TOKEN}
exchanges:
  mufex: {enabled: true, api_key: k, api_secret: s}
`))
	suite.Require().NoError(err)
	suite.Equal("from-env", c.Server.APIKey)
}

func (suite *ConfigTestSuite) TestCredentialsFallBackToEnvironment() {
	suite.T().Setenv("BINANCE_API_KEY_TEST", "test-key")
	suite.T().Setenv("BINANCE_API_SECRET_TEST", "test-secret")
	suite.T().Setenv("BINANCE_API_KEY_MAIN", "main-key")

	c, err := Parse([]byte(`
env_mode: TESTNET
server: {api_key: token}
exchanges:
  binance_futures: {enabled: true}
`))
	suite.Require().NoError(err)
	suite.Equal("test-key", c.Exchanges.BinanceFutures.APIKey)
	suite.Equal("test-secret", c.Exchanges.BinanceFutures.APISecret)
}

func (suite *ConfigTestSuite) TestMissingSecret() {
	_, err := Parse([]byte(`
env_mode: TESTNET
server: {api_key: token}
exchanges:
  mufex: {enabled: true, api_key: only-key}
`))
	suite.True(errors.HasCode(err, errors.ErrCodeMissingSecret))
}

func (suite *ConfigTestSuite) TestApexNeedsSigningKey() {
	_, err := Parse([]byte(`
env_mode: TESTNET
server: {api_key: token}
exchanges:
  apex: {enabled: true, api_key: k, api_secret: s, passphrase: p}
`))
	suite.True(errors.HasCode(err, errors.ErrCodeMissingSecret))
}

func (suite *ConfigTestSuite) TestInvalidDocuments() {
	cases := map[string]string{
		"bad env mode":       "env_mode: STAGING\nserver: {api_key: t}\nexchanges: {mufex: {enabled: true, api_key: k, api_secret: s}}",
		"missing api key":    "env_mode: TESTNET\nexchanges: {mufex: {enabled: true, api_key: k, api_secret: s}}",
		"unknown field":      "env_mode: TESTNET\nserver: {api_key: t, port: 1}\nexchanges: {mufex: {enabled: true, api_key: k, api_secret: s}}",
		"expiration too big": "env_mode: TESTNET\nserver: {api_key: t}\ncache: {fill_expiration: 2m}\nexchanges: {mufex: {enabled: true, api_key: k, api_secret: s}}",
		"expiration small":   "env_mode: TESTNET\nserver: {api_key: t}\ncache: {fill_expiration: 1s}\nexchanges: {mufex: {enabled: true, api_key: k, api_secret: s}}",
		"nothing enabled":    "env_mode: TESTNET\nserver: {api_key: t}",
		"bad padding":        "env_mode: TESTNET\nserver: {api_key: t}\nexchanges: {mufex: {enabled: true, api_key: k, api_secret: s, padding_percent: abc}}",
		"bad log level":      "env_mode: TESTNET\nserver: {api_key: t}\nlog: {level: loud}\nexchanges: {mufex: {enabled: true, api_key: k, api_secret: s}}",
	}

	for name, doc := range cases {
		suite.Run(name, func() {
			_, err := Parse([]byte(doc))
			suite.Error(err)
			suite.True(errors.IsConfiguration(err))
		})
	}
}

func (suite *ConfigTestSuite) TestLoadWithEnvFile() {
	dir := suite.T().TempDir()
	envFile := filepath.Join(dir, ".env")
	configFile := filepath.Join(dir, "config.yaml")

	suite.Require().NoError(os.WriteFile(envFile, []byte("MUFEX_API_KEY_TEST=dotenv-key\nMUFEX_API_SECRET_TEST=dotenv-secret\n"), 0o600))
	suite.Require().NoError(os.WriteFile(configFile, []byte("env_mode: TESTNET\nserver: {api_key: t}\nexchanges: {mufex: {enabled: true}}\n"), 0o600))

	suite.T().Cleanup(func() {
		_ = os.Unsetenv("MUFEX_API_KEY_TEST")
		_ = os.Unsetenv("MUFEX_API_SECRET_TEST")
	})

	c, err := Load(configFile, envFile)
	suite.Require().NoError(err)
	suite.Equal("dotenv-key", c.Exchanges.Mufex.APIKey)

	// a missing env file is skipped
	_, err = Load(configFile, filepath.Join(dir, "missing.env"))
	suite.NoError(err)
}

func (suite *ConfigTestSuite) TestLoadMissingFile() {
	_, err := Load(filepath.Join(suite.T().TempDir(), "nope.yaml"), "")
	suite.True(errors.HasCode(err, errors.ErrCodeConfiguration))
}

func (suite *ConfigTestSuite) TestSchema() {
	schema, err := Schema()
	suite.Require().NoError(err)

	var decoded map[string]any
	suite.Require().NoError(json.Unmarshal([]byte(schema), &decoded))
	suite.Contains(schema, "env_mode")
	suite.Contains(schema, "binance_futures")
}

func (suite *ConfigTestSuite) TestSampleYAML() {
	out, err := SampleYAML("config.schema.json")
	suite.Require().NoError(err)
	suite.Contains(string(out), "# yaml-language-server: $schema=config.schema.json")

	var decoded Config
	suite.Require().NoError(yaml.Unmarshal(out, &decoded))
	suite.Equal(EnvModeTestnet, decoded.EnvMode)
	suite.Equal(DefaultSweepInterval, decoded.Cache.SweepInterval)
}
