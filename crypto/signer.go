package crypto

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Classical algorithms verified directly by this package. Anything outside
// this set is treated as post-quantum and delegated to the injected verifier.
const (
	AlgSecp256k1 = "secp256k1"
	AlgEd25519   = "ed25519"
)

var (
	// ErrSignatureInvalid is returned when a signature does not verify
	// against the supplied public key and message.
	ErrSignatureInvalid = errors.New("crypto: signature verification failed")
	// ErrMalformedPayload is returned when a signature payload cannot be
	// decoded.
	ErrMalformedPayload = errors.New("crypto: malformed signature payload")
	// ErrQuantumVerifierUnavailable is returned for post-quantum algorithms
	// when no verifier was injected and permissive mode is off.
	ErrQuantumVerifierUnavailable = errors.New("crypto: no post-quantum verifier configured")
)

// SignaturePayload is the wire form of a signature attached to a transaction
// or DID operation.
type SignaturePayload struct {
	SignatureB64 string `json:"signatureBase64"`
	PublicKeyHex string `json:"publicKeyHex"`
	Algorithm    string `json:"algorithm"`
}

// Decode returns the raw signature and public key bytes.
func (p *SignaturePayload) Decode() (sig, pub []byte, err error) {
	if p == nil {
		return nil, nil, fmt.Errorf("%w: nil payload", ErrMalformedPayload)
	}
	sig, err = base64.StdEncoding.DecodeString(p.SignatureB64)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: signature: %v", ErrMalformedPayload, err)
	}
	pub, err = hex.DecodeString(strings.TrimPrefix(p.PublicKeyHex, "0x"))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: public key: %v", ErrMalformedPayload, err)
	}
	return sig, pub, nil
}

// QuantumVerifier checks a post-quantum signature over the (already hashed)
// message. Implementations live outside this module; latency is unbounded at
// this boundary so callers impose their own timeouts via ctx.
type QuantumVerifier func(ctx context.Context, algorithm string, message, signature, publicKey []byte) (bool, error)

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	// Quantum handles every non-classical algorithm. Optional.
	Quantum QuantumVerifier
	// AllowUnverifiedQuantum lets post-quantum signatures pass when no
	// Quantum verifier is configured. Development escape hatch only; every
	// pass-through is logged at warn level. Must never be enabled in a
	// production configuration.
	AllowUnverifiedQuantum bool
	Logger                 *slog.Logger
}

// Verifier validates signature payloads over canonical messages.
type Verifier struct {
	quantum    QuantumVerifier
	permissive bool
	log        *slog.Logger
}

func NewVerifier(cfg VerifierConfig) *Verifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		quantum:    cfg.Quantum,
		permissive: cfg.AllowUnverifiedQuantum,
		log:        logger,
	}
}

// IsClassical reports whether the algorithm is verified in-process.
func IsClassical(algorithm string) bool {
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case AlgSecp256k1, AlgEd25519:
		return true
	}
	return false
}

// Verify checks the payload's signature over message. The message is hashed
// before verification; signers must apply the same canonicalization.
func (v *Verifier) Verify(ctx context.Context, message []byte, payload *SignaturePayload) error {
	sig, pub, err := payload.Decode()
	if err != nil {
		return err
	}
	digest := HashMessage(message)
	algorithm := strings.ToLower(strings.TrimSpace(payload.Algorithm))
	switch algorithm {
	case AlgSecp256k1:
		// geth encodes recoverable signatures as 65 bytes; only r||s is
		// checked here.
		if len(sig) < 64 {
			return fmt.Errorf("%w: secp256k1 signature too short", ErrMalformedPayload)
		}
		if !crypto.VerifySignature(pub, digest, sig[:64]) {
			return ErrSignatureInvalid
		}
		return nil
	case AlgEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return fmt.Errorf("%w: ed25519 public key must be %d bytes", ErrMalformedPayload, ed25519.PublicKeySize)
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
			return ErrSignatureInvalid
		}
		return nil
	default:
		return v.verifyQuantum(ctx, algorithm, digest, sig, pub)
	}
}

func (v *Verifier) verifyQuantum(ctx context.Context, algorithm string, digest, sig, pub []byte) error {
	if v.quantum == nil {
		if v.permissive {
			v.log.Warn("passing unverified post-quantum signature: no verifier configured and permissive mode is active",
				"algorithm", algorithm)
			return nil
		}
		return fmt.Errorf("%w: algorithm %q", ErrQuantumVerifierUnavailable, algorithm)
	}
	ok, err := v.quantum(ctx, algorithm, digest, sig, pub)
	if err != nil {
		return fmt.Errorf("post-quantum verify %q: %w", algorithm, err)
	}
	if !ok {
		return ErrSignatureInvalid
	}
	return nil
}

// TransactionMessage builds the canonical pipe-delimited message committed to
// by a transaction signature. Input bytes are hex encoded so the message is
// printable; the value is rendered as a decimal string.
func TransactionMessage(contractID, caller string, input []byte, value *big.Int, nonce uint64, timestamp int64) []byte {
	amount := "0"
	if value != nil {
		amount = value.String()
	}
	msg := fmt.Sprintf("%s|%s|%s|%s|%d|%d",
		contractID, caller, hex.EncodeToString(input), amount, nonce, timestamp)
	return []byte(msg)
}

// HashMessage bounds the signed message size by hashing the canonical form
// with keccak256 before signing or verifying.
func HashMessage(message []byte) []byte {
	return crypto.Keccak256(message)
}

// Sign produces a secp256k1 signature payload over the canonical message.
// Intended for the dev/test tooling path; production admission only verifies.
func Sign(key *PrivateKey, message []byte) (*SignaturePayload, error) {
	sig, err := crypto.Sign(HashMessage(message), key.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &SignaturePayload{
		SignatureB64: base64.StdEncoding.EncodeToString(sig),
		PublicKeyHex: hex.EncodeToString(key.PubKey().Bytes()),
		Algorithm:    AlgSecp256k1,
	}, nil
}

// SignEd25519 produces an ed25519 signature payload over the canonical
// message.
func SignEd25519(pub ed25519.PublicKey, priv ed25519.PrivateKey, message []byte) *SignaturePayload {
	sig := ed25519.Sign(priv, HashMessage(message))
	return &SignaturePayload{
		SignatureB64: base64.StdEncoding.EncodeToString(sig),
		PublicKeyHex: hex.EncodeToString(pub),
		Algorithm:    AlgEd25519,
	}
}
