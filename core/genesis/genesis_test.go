package genesis

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ChainID:   "spacekit-dev",
		Timestamp: 1700000000,
		Token: TokenConfig{
			Symbol:                "ASTRA",
			Name:                  "Astra",
			Decimals:              8,
			MaxSupply:             big.NewInt(0),
			InitialTreasurySupply: big.NewInt(100_000_000_000),
			Mintable:              false,
		},
		Treasury: "did:spacekit:treasury",
		Version:  Version,
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty chain id", func(c *Config) { c.ChainID = " " }},
		{"empty symbol", func(c *Config) { c.Token.Symbol = "" }},
		{"too many decimals", func(c *Config) { c.Token.Decimals = 19 }},
		{"empty treasury", func(c *Config) { c.Treasury = "" }},
		{"negative seed", func(c *Config) { c.Token.InitialTreasurySupply = big.NewInt(-1) }},
		{"seed over cap", func(c *Config) {
			c.Token.MaxSupply = big.NewInt(10)
			c.Token.InitialTreasurySupply = big.NewInt(11)
		}},
		{"did missing id", func(c *Config) {
			c.InitialDIDs = []DidRegistration{{ID: "", PublicKeyHex: "ab"}}
		}},
		{"did bad key", func(c *Config) {
			c.InitialDIDs = []DidRegistration{{ID: "did:spacekit:x", PublicKeyHex: "zz"}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, validConfig().Validate())
}

func TestHashIsStableAndFieldSensitive(t *testing.T) {
	a := validConfig()
	b := validConfig()
	require.Equal(t, a.Hash(), b.Hash())
	require.Len(t, a.Hash(), 64)

	b.Token.MaxSupply = big.NewInt(1)
	require.NotEqual(t, a.Hash(), b.Hash())

	require.Equal(t, a.HashSync(), validConfig().HashSync())
	require.Len(t, a.HashSync(), 16)
}

func TestProtectedKeyEnforcement(t *testing.T) {
	protected := []string{
		"native:astra:balance:did:spacekit:treasury",
		"did:document:did:spacekit:alice",
		"did:address:spk1qqqsyqcyq5rqwzqf",
		"genesis:astra:supply",
		"validator:set",
		"governance:proposal:1",
	}
	for _, key := range protected {
		require.True(t, IsProtectedKey(key), key)
		require.ErrorIs(t, EnforceStorageProtection(key), ErrProtectedKey)
	}
	open := []string{"contract:counter:value", "user:alice", "nativex:astra"}
	for _, key := range open {
		require.False(t, IsProtectedKey(key), key)
		require.NoError(t, EnforceStorageProtection(key))
	}
}

func TestValidateMint(t *testing.T) {
	cfg := validConfig()
	require.ErrorIs(t, cfg.ValidateMint(big.NewInt(0), big.NewInt(1)), ErrNotMintable)

	cfg.Token.Mintable = true
	cfg.Token.MaxSupply = big.NewInt(100)
	require.NoError(t, cfg.ValidateMint(big.NewInt(90), big.NewInt(10)))
	require.ErrorIs(t, cfg.ValidateMint(big.NewInt(90), big.NewInt(11)), ErrSupplyCapExceeded)

	// A zero cap means unbounded when mintable.
	cfg.Token.MaxSupply = big.NewInt(0)
	require.NoError(t, cfg.ValidateMint(big.NewInt(1), big.NewInt(1_000_000)))
}

func TestStorageKeysUseLowercasedSymbol(t *testing.T) {
	cfg := validConfig()
	require.Equal(t, "native:astra:balance:did:spacekit:alice", cfg.BalanceKey("did:spacekit:alice"))
	require.Equal(t, "native:astra:nonce:did:spacekit:alice", cfg.NonceKey("did:spacekit:alice"))
	require.Equal(t, "genesis:astra:supply", cfg.SupplyKey())
	require.True(t, IsProtectedKey(cfg.BalanceKey("x")))
	require.True(t, IsProtectedKey(cfg.SupplyKey()))
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")
	blob := `{
  "chainId": "spacekit-dev",
  "timestamp": 1700000000,
  "token": {
    "symbol": "ASTRA",
    "name": "Astra",
    "decimals": 8,
    "maxSupply": 0,
    "initialTreasurySupply": 100000000000,
    "mintable": false
  },
  "treasury": "did:spacekit:treasury",
  "version": "1.0"
}`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "spacekit-dev", cfg.ChainID)
	require.Equal(t, "ASTRA", cfg.Token.Symbol)
	require.Equal(t, big.NewInt(100_000_000_000), cfg.Token.InitialTreasurySupply)
}

func TestLoadJSONRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")
	blob := `{"chainId": "dev", "tresury": "typo"}`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.yaml")
	blob := `chainId: spacekit-dev
timestamp: 1700000000
token:
  symbol: ASTRA
  name: Astra
  decimals: 8
  maxSupply: "0"
  initialTreasurySupply: "100000000000"
  mintable: false
treasury: did:spacekit:treasury
initialDids:
  - id: did:spacekit:alice
    publicKeyHex: "04ab"
    algorithm: secp256k1
`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Version, cfg.Version)
	require.Len(t, cfg.InitialDIDs, 1)
	require.Equal(t, "did:spacekit:alice", cfg.InitialDIDs[0].ID)
	require.Equal(t, big.NewInt(100_000_000_000), cfg.Token.InitialTreasurySupply)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.json")
	blob := `{"chainId": "", "token": {"symbol": "ASTRA"}, "treasury": "t"}`
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}
