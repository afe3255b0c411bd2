package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the session-key secret and applies the exchange's
// signature algorithms over exactly the bytes it is given. Field order
// and unit conversion are the codec's job, never the signer's.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex-encoded session key (with or without 0x
// prefix) and derives the signer address.
func NewSigner(privateKeyHex string) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, apperrors.NewSigning("session key is required", nil)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, apperrors.NewSigning("invalid session key", err)
	}

	publicKey, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, apperrors.NewSigning("error casting public key to ECDSA", nil)
	}

	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(*publicKey),
	}, nil
}

// Sign signs a 32-byte typed-data digest produced by the codec and
// returns the 65-byte signature as a 0x hex string.
func (s *Signer) Sign(digest []byte) (string, error) {
	if len(digest) != 32 {
		return "", apperrors.NewSigning(fmt.Sprintf("digest must be 32 bytes, got %d", len(digest)), nil)
	}

	signature, err := crypto.Sign(digest, s.key)
	if err != nil {
		return "", apperrors.NewSigning("ecdsa signing failed", err)
	}

	// crypto.Sign returns [R || S || V] with V in {0,1}; the exchange
	// verifies against the 27/28 convention.
	if signature[64] < 27 {
		signature[64] += 27
	}

	return "0x" + common.Bytes2Hex(signature), nil
}

// SignAuthChallenge signs the UTC millisecond timestamp string as an
// EIP-191 personal message for the REST auth headers.
func (s *Signer) SignAuthChallenge(timestampMs string) (string, error) {
	hash := accounts.TextHash([]byte(timestampMs))

	signature, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", apperrors.NewSigning("auth challenge signing failed", err)
	}
	if signature[64] < 27 {
		signature[64] += 27
	}

	return "0x" + common.Bytes2Hex(signature), nil
}

func (s *Signer) Address() common.Address {
	return s.address
}
