package backend

import (
	"fmt"
	"io"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"

	"github.com/weiihann/sigbench/algorithm"
)

// Ed25519 is a second classical baseline.
type Ed25519 struct{}

func (Ed25519) GenerateKeypair(rand io.Reader) (algorithm.Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand)
	if err != nil {
		return algorithm.Keypair{}, fmt.Errorf("generate key: %w", err)
	}

	return algorithm.Keypair{PublicKey: pub, SecretKey: priv}, nil
}

func (Ed25519) Sign(secretKey, message []byte) ([]byte, error) {
	if len(secretKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key is %d bytes, want %d",
			len(secretKey), ed25519.PrivateKeySize)
	}

	return ed25519.Sign(ed25519.PrivateKey(secretKey), message), nil
}

func (Ed25519) Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}
