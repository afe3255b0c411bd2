package signer

import (
	"testing"

	"github.com/GoDerive/derivegate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *Signer {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hexutil.Encode(crypto.FromECDSA(key))

	s, err := NewSigner(keyHex)
	require.NoError(t, err)
	return s
}

func TestNewSigner_RejectsBadKeys(t *testing.T) {
	_, err := NewSigner("")
	assert.True(t, apperrors.IsType(err, apperrors.ErrSigning))

	_, err = NewSigner("0xnothex")
	assert.True(t, apperrors.IsType(err, apperrors.ErrSigning))
}

func TestSigner_Sign(t *testing.T) {
	s := newTestSigner(t)

	digest := crypto.Keccak256([]byte("payload"))
	sig, err := s.Sign(digest)
	require.NoError(t, err)
	assert.Equal(t, 132, len(sig)) // 0x + 65 bytes * 2

	// Recover and check the signer address
	sigBytes := hexutil.MustDecode(sig)
	sigBytes[64] -= 27
	pub, err := crypto.SigToPub(digest, sigBytes)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), crypto.PubkeyToAddress(*pub))
}

func TestSigner_SignRejectsWrongDigestLength(t *testing.T) {
	s := newTestSigner(t)

	_, err := s.Sign([]byte("short"))
	assert.True(t, apperrors.IsType(err, apperrors.ErrSigning))
}

func TestSigner_SignAuthChallenge(t *testing.T) {
	s := newTestSigner(t)

	sig, err := s.SignAuthChallenge("1735689600000")
	require.NoError(t, err)
	assert.Equal(t, 132, len(sig))

	// The signature must verify as a personal message over the
	// timestamp string.
	hash := accounts.TextHash([]byte("1735689600000"))
	sigBytes := hexutil.MustDecode(sig)
	sigBytes[64] -= 27
	pub, err := crypto.SigToPub(hash, sigBytes)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), crypto.PubkeyToAddress(*pub))
}
