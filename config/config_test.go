package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
vault: "0x00000000000000000000000000000000000000AA"
debt_token:
  address: "0x00000000000000000000000000000000000000BB"
assets:
  - symbol: eth
    address: "0x00000000000000000000000000000000000000CC"
    feed_decimals: 8
    initial_price: "200000000000"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8451", cfg.ListenAddress)
	require.Equal(t, "sUSD", cfg.DebtToken.Symbol)
	require.Equal(t, "ETH", cfg.Assets[0].Symbol)
	require.Equal(t, time.Duration(0), cfg.Oracle.Timeout())
}

func TestLoadParsesOracleTimeout(t *testing.T) {
	path := writeConfig(t, `
vault: "0x00000000000000000000000000000000000000AA"
oracle:
  timeout_seconds: 900
debt_token:
  address: "0x00000000000000000000000000000000000000BB"
assets:
  - symbol: BTC
    address: "0x00000000000000000000000000000000000000CC"
    feed_decimals: 8
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 15*time.Minute, cfg.Oracle.Timeout())
}

func TestLoadTrimsAPITokens(t *testing.T) {
	path := writeConfig(t, `
vault: "0x00000000000000000000000000000000000000AA"
debt_token:
  address: "0x00000000000000000000000000000000000000BB"
assets:
  - symbol: ETH
    address: "0x00000000000000000000000000000000000000CC"
    feed_decimals: 8
auth:
  api_tokens:
    - "  secret  "
    - ""
    - "other"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"secret", "other"}, cfg.Auth.APITokens)
}

func TestLoadRejectsInvalidConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{
			name: "bad vault",
			body: `
vault: "not-an-address"
debt_token:
  address: "0x00000000000000000000000000000000000000BB"
assets:
  - symbol: ETH
    address: "0x00000000000000000000000000000000000000CC"
`,
		},
		{
			name: "bad debt token",
			body: `
vault: "0x00000000000000000000000000000000000000AA"
debt_token:
  address: "nope"
assets:
  - symbol: ETH
    address: "0x00000000000000000000000000000000000000CC"
`,
		},
		{
			name: "no assets",
			body: `
vault: "0x00000000000000000000000000000000000000AA"
debt_token:
  address: "0x00000000000000000000000000000000000000BB"
assets: []
`,
		},
		{
			name: "duplicate asset",
			body: `
vault: "0x00000000000000000000000000000000000000AA"
debt_token:
  address: "0x00000000000000000000000000000000000000BB"
assets:
  - symbol: ETH
    address: "0x00000000000000000000000000000000000000CC"
  - symbol: WETH
    address: "0x00000000000000000000000000000000000000CC"
`,
		},
		{
			name: "feed decimals too large",
			body: `
vault: "0x00000000000000000000000000000000000000AA"
debt_token:
  address: "0x00000000000000000000000000000000000000BB"
assets:
  - symbol: ETH
    address: "0x00000000000000000000000000000000000000CC"
    feed_decimals: 19
`,
		},
		{
			name: "negative initial price",
			body: `
vault: "0x00000000000000000000000000000000000000AA"
debt_token:
  address: "0x00000000000000000000000000000000000000BB"
assets:
  - symbol: ETH
    address: "0x00000000000000000000000000000000000000CC"
    feed_decimals: 8
    initial_price: "-5"
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
