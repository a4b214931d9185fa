package backend

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/weiihann/sigbench/algorithm"
)

const (
	ecdsaPublicKeySize = 65
	ecdsaSignatureSize = 65

	// Scalars outside [1, n) are redrawn; more than a handful of rejections
	// means the entropy source is broken.
	maxScalarAttempts = 8
)

var errScalarExhausted = errors.New("no valid secp256k1 scalar from entropy source")

// ECDSA is the secp256k1 baseline, signing the Keccak-256 digest of the
// message the same way Ethereum transactions are signed.
type ECDSA struct{}

func (ECDSA) GenerateKeypair(rand io.Reader) (algorithm.Keypair, error) {
	var buf [32]byte

	for range maxScalarAttempts {
		if _, err := io.ReadFull(rand, buf[:]); err != nil {
			return algorithm.Keypair{}, fmt.Errorf("read scalar: %w", err)
		}

		key, err := crypto.ToECDSA(buf[:])
		if err != nil {
			continue
		}

		return algorithm.Keypair{
			PublicKey: crypto.FromECDSAPub(&key.PublicKey),
			SecretKey: crypto.FromECDSA(key),
		}, nil
	}

	return algorithm.Keypair{}, errScalarExhausted
}

// Sign returns a 65-byte [R || S || V] signature.
func (ECDSA) Sign(secretKey, message []byte) ([]byte, error) {
	key, err := crypto.ToECDSA(secretKey)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}

	sig, err := crypto.Sign(crypto.Keccak256(message), key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	return sig, nil
}

// Verify recovers the signer from the full signature, so the recovery byte
// is covered as well as R and S.
func (ECDSA) Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != ecdsaPublicKeySize || len(signature) != ecdsaSignatureSize {
		return false
	}

	recovered, err := crypto.Ecrecover(crypto.Keccak256(message), signature)
	if err != nil {
		return false
	}

	return bytes.Equal(recovered, publicKey)
}
