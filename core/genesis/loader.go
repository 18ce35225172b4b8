package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a genesis configuration from a JSON or YAML file.
// The format follows the file extension; unknown JSON fields are rejected so
// a typo in a protected field cannot silently alter chain parameters.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = parseYAML(raw)
	default:
		cfg, err = parseJSON(raw)
	}
	if err != nil {
		return nil, fmt.Errorf("genesis: parse %s: %w", path, err)
	}
	if cfg.Version == "" {
		cfg.Version = Version
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseJSON(raw []byte) (*Config, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseYAML(raw []byte) (*Config, error) {
	var doc struct {
		ChainID   string `yaml:"chainId"`
		Timestamp int64  `yaml:"timestamp"`
		Token     struct {
			Symbol                string `yaml:"symbol"`
			Name                  string `yaml:"name"`
			Decimals              uint8  `yaml:"decimals"`
			MaxSupply             string `yaml:"maxSupply"`
			InitialTreasurySupply string `yaml:"initialTreasurySupply"`
			Mintable              bool   `yaml:"mintable"`
		} `yaml:"token"`
		Treasury    string            `yaml:"treasury"`
		InitialDIDs []DidRegistration `yaml:"initialDids"`
		Version     string            `yaml:"version"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	maxSupply, err := parseAmount(doc.Token.MaxSupply)
	if err != nil {
		return nil, fmt.Errorf("token.maxSupply: %w", err)
	}
	treasurySeed, err := parseAmount(doc.Token.InitialTreasurySupply)
	if err != nil {
		return nil, fmt.Errorf("token.initialTreasurySupply: %w", err)
	}
	return &Config{
		ChainID:   doc.ChainID,
		Timestamp: doc.Timestamp,
		Token: TokenConfig{
			Symbol:                doc.Token.Symbol,
			Name:                  doc.Token.Name,
			Decimals:              doc.Token.Decimals,
			MaxSupply:             maxSupply,
			InitialTreasurySupply: treasurySeed,
			Mintable:              doc.Token.Mintable,
		},
		Treasury:    doc.Treasury,
		InitialDIDs: doc.InitialDIDs,
		Version:     doc.Version,
	}, nil
}

// parseAmount reads a decimal string into a big integer. Empty means zero.
func parseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", s)
	}
	return v, nil
}
