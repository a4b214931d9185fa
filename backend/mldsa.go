package backend

import (
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign"

	"github.com/weiihann/sigbench/algorithm"
)

// MLDSA adapts a circl ML-DSA (Dilithium) scheme.
type MLDSA struct {
	scheme sign.Scheme
}

// NewMLDSA wraps scheme, e.g. mldsa65.Scheme().
func NewMLDSA(scheme sign.Scheme) MLDSA {
	return MLDSA{scheme: scheme}
}

// GenerateKeypair derives a keypair from a seed read from rand.
func (b MLDSA) GenerateKeypair(rand io.Reader) (algorithm.Keypair, error) {
	seed := make([]byte, b.scheme.SeedSize())
	if _, err := io.ReadFull(rand, seed); err != nil {
		return algorithm.Keypair{}, fmt.Errorf("read seed: %w", err)
	}

	pk, sk := b.scheme.DeriveKey(seed)

	pub, err := pk.MarshalBinary()
	if err != nil {
		return algorithm.Keypair{}, fmt.Errorf("encode public key: %w", err)
	}

	sec, err := sk.MarshalBinary()
	if err != nil {
		return algorithm.Keypair{}, fmt.Errorf("encode secret key: %w", err)
	}

	return algorithm.Keypair{PublicKey: pub, SecretKey: sec}, nil
}

func (b MLDSA) Sign(secretKey, message []byte) ([]byte, error) {
	sk, err := b.scheme.UnmarshalBinaryPrivateKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}

	return b.scheme.Sign(sk, message, nil), nil
}

func (b MLDSA) Verify(publicKey, message, signature []byte) bool {
	if len(signature) != b.scheme.SignatureSize() {
		return false
	}

	pk, err := b.scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return false
	}

	return b.scheme.Verify(pk, message, signature, nil)
}
