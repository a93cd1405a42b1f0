// Package signing implements the optional request-signing layer: a
// deterministic ECDSA-secp256k1 signature over the serialized request
// payload, with low-s canonicalization so a server can reject malleable
// signatures with an exact-match check.
package signing

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// halfN is N/2 for the secp256k1 curve order, the low-s threshold.
var halfN = new(big.Int).Rsh(secp256k1.S256().N, 1)

// Signer deterministically signs request payloads with one private key.
type Signer struct {
	key     *secp256k1.PrivateKey
	Address string
}

// NewSigner loads a signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex, address string) (*Signer, error) {
	keyBytes, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("signing: decode private key: %w", err)
	}
	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("signing: private key must be 32 bytes, got %d", len(keyBytes))
	}
	key := secp256k1.PrivKeyFromBytes(keyBytes)
	return &Signer{key: key, Address: address}, nil
}

// Sign signs payload||ascii(timestampNanos)||ascii(address) — the "new"
// signing mode described in spec §4.1.
func (s *Signer) Sign(payload []byte, timestampNanos int64, address string) (string, error) {
	buf := make([]byte, 0, len(payload)+32)
	buf = append(buf, payload...)
	buf = append(buf, []byte(strconv.FormatInt(timestampNanos, 10))...)
	buf = append(buf, []byte(address)...)
	return s.sign(buf)
}

// SignLegacy signs payload alone — the "old_sign" mode. Timestamp and
// address are still transmitted as headers but excluded from the signed
// bytes.
func (s *Signer) SignLegacy(payload []byte) (string, error) {
	return s.sign(payload)
}

// sign produces the raw 64-byte r||s signature over msg, with s forced into
// low-s form, base64-encoded.
func (s *Signer) sign(msg []byte) (string, error) {
	digest := sha256.Sum256(msg)

	// SignCompact yields a 65-byte [recovery-id||r||s] signature with a
	// deterministic (RFC6979) nonce.
	compact := ecdsa.SignCompact(s.key, digest[:], false)
	if len(compact) != 65 {
		return "", fmt.Errorf("signing: unexpected compact signature length %d", len(compact))
	}

	rBytes := compact[1:33]
	sBytes := compact[33:65]

	sInt := new(big.Int).SetBytes(sBytes)
	if sInt.Cmp(halfN) > 0 {
		sInt = new(big.Int).Sub(secp256k1.S256().N, sInt)
	}

	out := make([]byte, 64)
	copy(out[0:32], rBytes)
	lowS := sInt.Bytes()
	copy(out[64-len(lowS):64], lowS)

	return base64.StdEncoding.EncodeToString(out), nil
}
