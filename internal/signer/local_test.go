package signer

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestNewLocalSignerParsesHexKey(t *testing.T) {
	// A 32-byte scalar, with and without the 0x prefix, resolves to the
	// same account.
	prefixed := crypto.Keccak256Hash([]byte("seed")).Hex()

	s, err := NewLocalSigner(prefixed)
	require.NoError(t, err)
	require.NotZero(t, s.Address())

	s2, err := NewLocalSigner(prefixed[2:])
	require.NoError(t, err)
	require.Equal(t, s.Address(), s2.Address())

	_, err = NewLocalSigner("not-hex")
	require.Error(t, err)
}

func TestNewMnemonicSignerDeterministic(t *testing.T) {
	const mnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

	a, err := NewMnemonicSigner(mnemonic, "")
	require.NoError(t, err)
	b, err := NewMnemonicSigner(mnemonic, "")
	require.NoError(t, err)
	require.Equal(t, a.Address(), b.Address())

	// A passphrase shifts the derived key.
	c, err := NewMnemonicSigner(mnemonic, "trezor")
	require.NoError(t, err)
	require.NotEqual(t, a.Address(), c.Address())
}

func TestNewMnemonicSignerRejectsInvalidPhrase(t *testing.T) {
	_, err := NewMnemonicSigner("definitely not a bip39 phrase", "")
	require.Error(t, err)
}
