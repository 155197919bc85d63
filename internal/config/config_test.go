package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, 40, cfg.Risk.FlagThreshold)
	assert.Equal(t, 80, cfg.Risk.RejectThreshold)
	assert.Equal(t, time.Hour, cfg.Risk.Window)
	assert.True(t, cfg.Shopify.CompleteAccepted)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
server:
  port: "9000"
risk:
  flag_threshold: 30
  reject_threshold: 70
  window: 30m
delivery:
  default_fee: 600
  fees:
    "16": 400
kafka:
  brokers: ["k1:9092"]
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	t.Setenv("RISK_REJECT_THRESHOLD", "90")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("SHOPIFY_API_SECRET", "shh")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 30, cfg.Risk.FlagThreshold)
	assert.Equal(t, 90, cfg.Risk.RejectThreshold)
	assert.Equal(t, 30*time.Minute, cfg.Risk.Window)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "shh", cfg.Shopify.APISecret)
	// untouched defaults survive a partial file
	assert.Equal(t, 40, cfg.Risk.Weights.InvalidPhone)

	assert.Equal(t, 400, cfg.Delivery.FeeFor("16"))
	assert.Equal(t, 600, cfg.Delivery.FeeFor("31"))
}

func TestLoadRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("RISK_FLAG_THRESHOLD", "90")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flag_threshold")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestFeeForLeadingZero(t *testing.T) {
	d := DeliveryConfig{DefaultFee: 800, Fees: map[string]int{"9": 500}}
	assert.Equal(t, 500, d.FeeFor("09"))
	assert.Equal(t, 800, d.FeeFor(""))
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("COD_CONFIG", "")
	assert.Equal(t, "config.yaml", DefaultPath())
	t.Setenv("COD_CONFIG", "/etc/cod/config.yaml")
	assert.Equal(t, "/etc/cod/config.yaml", DefaultPath())
}

func TestTrustedPrefixes(t *testing.T) {
	sc := ServerConfig{TrustedProxies: []string{"10.0.0.0/8", " 23.227.38.4 ", "", "::ffff:192.0.2.1"}}
	got, err := sc.TrustedPrefixes()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "10.0.0.0/8", got[0].String())
	assert.Equal(t, "23.227.38.4/32", got[1].String())
	assert.Equal(t, "192.0.2.1/32", got[2].String())

	cfg := Default()
	cfg.Server.TrustedProxies = []string{"not-an-ip"}
	assert.Error(t, cfg.Validate())
}
