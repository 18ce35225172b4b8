package genesis

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"spacekit/crypto"
	"spacekit/storage"
)

const (
	didKeyPrefix     = "did:document:"
	didAddressPrefix = "did:address:"
)

var (
	// ErrDidExists is returned when registering an identifier that is
	// already present in the registry.
	ErrDidExists = errors.New("genesis: did already registered")
	// ErrDidNotFound is returned when resolving or mutating an unknown
	// identifier.
	ErrDidNotFound = errors.New("genesis: did not found")
	// ErrDidDeactivated is returned when mutating a deactivated identifier.
	ErrDidDeactivated = errors.New("genesis: did is deactivated")
	// ErrDidUnauthorized is returned when a mutation is not signed by the
	// document's current key.
	ErrDidUnauthorized = errors.New("genesis: did operation not authorized")
)

// DidDocument is the stored representation of one decentralized identifier.
// Mutations must be signed by the key currently on the document.
type DidDocument struct {
	ID           string `json:"id"`
	PublicKeyHex string `json:"publicKeyHex"`
	Algorithm    string `json:"algorithm"`
	// Address is the bech32 account address derived from the current key.
	// It follows key rotations.
	Address    string `json:"address,omitempty"`
	Controller string `json:"controller,omitempty"`
	Created    int64  `json:"created"`
	Updated    int64  `json:"updated"`
	Active     bool   `json:"active"`
}

// DidState is the key-value surface the registry persists documents through.
// The engine passes its witnessed state manager here so DID reads and writes
// land in block witnesses like any other state access.
type DidState interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
}

// DidRegistry maps identifiers to documents inside protected state.
type DidRegistry struct {
	state    DidState
	verifier *crypto.Verifier
	now      func() time.Time
}

// NewDidRegistry builds a registry over the given state surface. The verifier
// authenticates update and deactivate operations.
func NewDidRegistry(state DidState, verifier *crypto.Verifier) *DidRegistry {
	return &DidRegistry{state: state, verifier: verifier, now: time.Now}
}

// DidStorageKey returns the protected state key holding the document for id.
func DidStorageKey(id string) string {
	return didKeyPrefix + id
}

// Register stores a new document for id. Registration is first-come and
// needs no signature; ownership is proven on every later mutation.
func (r *DidRegistry) Register(id, publicKeyHex, algorithm string) (*DidDocument, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("genesis: did id must be provided")
	}
	if strings.TrimSpace(publicKeyHex) == "" {
		return nil, fmt.Errorf("genesis: did %q: public key must be provided", id)
	}
	if _, err := r.Resolve(id); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrDidExists, id)
	} else if !errors.Is(err, ErrDidNotFound) {
		return nil, err
	}
	address, err := accountAddress(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("genesis: did %q: %w", id, err)
	}
	now := r.now().Unix()
	doc := &DidDocument{
		ID:           id,
		PublicKeyHex: publicKeyHex,
		Algorithm:    algorithm,
		Address:      address,
		Created:      now,
		Updated:      now,
		Active:       true,
	}
	if err := r.put(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ResolveByAddress returns the document owning the given bech32 account
// address. The address is validated before the index lookup.
func (r *DidRegistry) ResolveByAddress(address string) (*DidDocument, error) {
	decoded, err := crypto.DecodeAddress(address)
	if err != nil {
		return nil, fmt.Errorf("genesis: resolve address %q: %w", address, err)
	}
	if p := decoded.Prefix(); p != crypto.SpacekitPrefix && p != crypto.TreasuryPrefix {
		return nil, fmt.Errorf("genesis: resolve address %q: unknown prefix %q", address, p)
	}
	raw, err := r.state.Get(didAddressPrefix + address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: address %q", ErrDidNotFound, address)
		}
		return nil, err
	}
	return r.Resolve(string(raw))
}

// Resolve returns the document for id.
func (r *DidRegistry) Resolve(id string) (*DidDocument, error) {
	raw, err := r.state.Get(DidStorageKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrDidNotFound, id)
		}
		return nil, err
	}
	var doc DidDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("genesis: decode did %q: %w", id, err)
	}
	return &doc, nil
}

// Update rotates the document's key. The operation must be signed by the key
// currently on the document, over the canonical update message.
func (r *DidRegistry) Update(ctx context.Context, id, newPublicKeyHex, newAlgorithm string, sig *crypto.SignaturePayload) (*DidDocument, error) {
	doc, err := r.authorize(ctx, id, didUpdateMessage(id, newPublicKeyHex, newAlgorithm), sig)
	if err != nil {
		return nil, err
	}
	address, err := accountAddress(newPublicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("genesis: did %q: %w", id, err)
	}
	doc.PublicKeyHex = newPublicKeyHex
	doc.Algorithm = newAlgorithm
	doc.Address = address
	doc.Updated = r.now().Unix()
	if err := r.put(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Deactivate permanently retires the identifier. Must be signed by the
// document's current key.
func (r *DidRegistry) Deactivate(ctx context.Context, id string, sig *crypto.SignaturePayload) (*DidDocument, error) {
	doc, err := r.authorize(ctx, id, didDeactivateMessage(id), sig)
	if err != nil {
		return nil, err
	}
	doc.Active = false
	doc.Updated = r.now().Unix()
	if err := r.put(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// authorize resolves the live document and checks that sig covers message
// under the document's current key.
func (r *DidRegistry) authorize(ctx context.Context, id string, message []byte, sig *crypto.SignaturePayload) (*DidDocument, error) {
	doc, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	if !doc.Active {
		return nil, fmt.Errorf("%w: %q", ErrDidDeactivated, id)
	}
	if sig == nil {
		return nil, fmt.Errorf("%w: %q: missing signature", ErrDidUnauthorized, id)
	}
	if !strings.EqualFold(strings.TrimPrefix(sig.PublicKeyHex, "0x"), strings.TrimPrefix(doc.PublicKeyHex, "0x")) {
		return nil, fmt.Errorf("%w: %q: signature key does not match document key", ErrDidUnauthorized, id)
	}
	if err := r.verifier.Verify(ctx, message, sig); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrDidUnauthorized, id, err)
	}
	return doc, nil
}

func (r *DidRegistry) put(doc *DidDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("genesis: encode did %q: %w", doc.ID, err)
	}
	if err := r.state.Set(DidStorageKey(doc.ID), raw); err != nil {
		return err
	}
	if doc.Address != "" {
		return r.state.Set(didAddressPrefix+doc.Address, []byte(doc.ID))
	}
	return nil
}

// accountAddress derives the bech32 account address from a hex-encoded
// public key.
func accountAddress(publicKeyHex string) (string, error) {
	pub, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode public key: %w", err)
	}
	return crypto.AddressFromPublicKey(pub).String(), nil
}

// didUpdateMessage is the canonical message a key-rotation signature covers.
func didUpdateMessage(id, newPublicKeyHex, newAlgorithm string) []byte {
	return []byte(fmt.Sprintf("did-update|%s|%s|%s", id, newPublicKeyHex, newAlgorithm))
}

// didDeactivateMessage is the canonical message a deactivation signature
// covers.
func didDeactivateMessage(id string) []byte {
	return []byte("did-deactivate|" + id)
}
