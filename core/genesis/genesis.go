// Package genesis defines the immutable chain configuration, its commitment
// hash, the protected storage namespaces only the engine may write, and the
// DID registry backed by the same key-value state the VM uses.
package genesis

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Version is the genesis schema version stamped into the canonical form.
const Version = "1.0"

var (
	// ErrProtectedKey is returned when contract-originated code attempts to
	// write a key under an engine-reserved prefix.
	ErrProtectedKey = errors.New("genesis: write to protected storage key")
	// ErrNotMintable is returned when minting is attempted on a fixed-supply
	// currency.
	ErrNotMintable = errors.New("genesis: native currency is not mintable")
	// ErrSupplyCapExceeded is returned when a mint would push total supply
	// past the configured cap.
	ErrSupplyCapExceeded = errors.New("genesis: mint exceeds supply cap")
)

// protectedPrefixes are the storage namespaces writable only by
// engine-internal operations. The set is fixed for the process lifetime.
var protectedPrefixes = []string{
	"native:",
	"did:document:",
	"did:address:",
	"genesis:",
	"validator:",
	"governance:",
}

// TokenConfig describes the native currency.
type TokenConfig struct {
	Symbol                string   `json:"symbol" yaml:"symbol"`
	Name                  string   `json:"name" yaml:"name"`
	Decimals              uint8    `json:"decimals" yaml:"decimals"`
	MaxSupply             *big.Int `json:"maxSupply" yaml:"maxSupply"`
	InitialTreasurySupply *big.Int `json:"initialTreasurySupply" yaml:"initialTreasurySupply"`
	Mintable              bool     `json:"mintable" yaml:"mintable"`
}

// DidRegistration seeds one decentralized identifier at genesis.
type DidRegistration struct {
	ID           string `json:"id" yaml:"id"`
	PublicKeyHex string `json:"publicKeyHex" yaml:"publicKeyHex"`
	Algorithm    string `json:"algorithm" yaml:"algorithm"`
}

// Config is the immutable chain configuration. Its canonical hash is stamped
// into every block header.
type Config struct {
	ChainID     string            `json:"chainId" yaml:"chainId"`
	Timestamp   int64             `json:"timestamp" yaml:"timestamp"`
	Token       TokenConfig       `json:"token" yaml:"token"`
	Treasury    string            `json:"treasury" yaml:"treasury"`
	InitialDIDs []DidRegistration `json:"initialDids,omitempty" yaml:"initialDids"`
	Version     string            `json:"version" yaml:"version"`
}

// Validate checks the configuration invariants once, at engine construction.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ChainID) == "" {
		return fmt.Errorf("genesis: chainId must be provided")
	}
	if strings.TrimSpace(c.Token.Symbol) == "" {
		return fmt.Errorf("genesis: token symbol must be provided")
	}
	if c.Token.Decimals > 18 {
		return fmt.Errorf("genesis: decimals must be 18 or fewer")
	}
	if strings.TrimSpace(c.Treasury) == "" {
		return fmt.Errorf("genesis: treasury identity must be provided")
	}
	treasurySeed := amountOrZero(c.Token.InitialTreasurySupply)
	if treasurySeed.Sign() < 0 {
		return fmt.Errorf("genesis: initialTreasurySupply must not be negative")
	}
	capAmount := amountOrZero(c.Token.MaxSupply)
	if capAmount.Sign() < 0 {
		return fmt.Errorf("genesis: maxSupply must not be negative")
	}
	if capAmount.Sign() > 0 && treasurySeed.Cmp(capAmount) > 0 {
		return fmt.Errorf("genesis: initialTreasurySupply exceeds maxSupply")
	}
	for i, did := range c.InitialDIDs {
		if strings.TrimSpace(did.ID) == "" {
			return fmt.Errorf("genesis: initialDids[%d]: id must be provided", i)
		}
		if _, err := hex.DecodeString(strings.TrimPrefix(did.PublicKeyHex, "0x")); err != nil {
			return fmt.Errorf("genesis: initialDids[%d]: invalid public key: %w", i, err)
		}
	}
	return nil
}

// canonicalString is the stable serialized form hashed into the genesis
// commitment: fields in declaration order, big integers rendered as decimal
// strings.
func (c *Config) canonicalString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "chainId=%s|timestamp=%d|", c.ChainID, c.Timestamp)
	fmt.Fprintf(&b, "symbol=%s|name=%s|decimals=%d|maxSupply=%s|initialTreasurySupply=%s|mintable=%t|",
		c.Token.Symbol, c.Token.Name, c.Token.Decimals,
		amountOrZero(c.Token.MaxSupply).String(),
		amountOrZero(c.Token.InitialTreasurySupply).String(),
		c.Token.Mintable)
	fmt.Fprintf(&b, "treasury=%s|", c.Treasury)
	for _, did := range c.InitialDIDs {
		fmt.Fprintf(&b, "did=%s,%s,%s|", did.ID, did.PublicKeyHex, did.Algorithm)
	}
	fmt.Fprintf(&b, "version=%s", c.Version)
	return b.String()
}

// Hash returns the canonical SHA-256 commitment to the configuration.
func (c *Config) Hash() string {
	sum := sha256.Sum256([]byte(c.canonicalString()))
	return hex.EncodeToString(sum[:])
}

// HashSync is a cheap non-cryptographic digest usable before any
// cryptographic primitive is wired, for early boot ordering only. It must
// never be relied upon for security-sensitive commitments after startup.
func (c *Config) HashSync() string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(c.canonicalString()))
}

// IsProtectedKey reports whether the storage key sits under an
// engine-reserved prefix.
func IsProtectedKey(key string) bool {
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// EnforceStorageProtection rejects contract-originated writes to protected
// keys with a named error; it never drops the write silently.
func EnforceStorageProtection(key string) error {
	if IsProtectedKey(key) {
		return fmt.Errorf("%w: %q", ErrProtectedKey, key)
	}
	return nil
}

// ProtectedPrefixes returns a copy of the reserved namespace list.
func ProtectedPrefixes() []string {
	return append([]string(nil), protectedPrefixes...)
}

// ValidateMint rejects minting on a non-mintable currency and mints that
// would exceed a configured non-zero supply cap.
func (c *Config) ValidateMint(currentSupply, amount *big.Int) error {
	if !c.Token.Mintable {
		return ErrNotMintable
	}
	capAmount := amountOrZero(c.Token.MaxSupply)
	if capAmount.Sign() == 0 {
		return nil
	}
	next := new(big.Int).Add(amountOrZero(currentSupply), amountOrZero(amount))
	if next.Cmp(capAmount) > 0 {
		return fmt.Errorf("%w: supply %s + mint %s > cap %s",
			ErrSupplyCapExceeded, amountOrZero(currentSupply), amountOrZero(amount), capAmount)
	}
	return nil
}

// BalanceKey returns the protected storage key holding an identity's native
// balance.
func (c *Config) BalanceKey(identity string) string {
	return fmt.Sprintf("native:%s:balance:%s", strings.ToLower(c.Token.Symbol), identity)
}

// NonceKey returns the protected storage key holding an identity's next
// expected nonce.
func (c *Config) NonceKey(identity string) string {
	return fmt.Sprintf("native:%s:nonce:%s", strings.ToLower(c.Token.Symbol), identity)
}

// SupplyKey returns the protected storage key tracking circulating supply.
func (c *Config) SupplyKey() string {
	return fmt.Sprintf("genesis:%s:supply", strings.ToLower(c.Token.Symbol))
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
