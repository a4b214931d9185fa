package backend

import (
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/slhdsa"

	"github.com/weiihann/sigbench/algorithm"
)

// SLHDSA adapts circl's SLH-DSA (SPHINCS+) for one parameter set.
type SLHDSA struct {
	ID slhdsa.ID
}

func (b SLHDSA) GenerateKeypair(rand io.Reader) (algorithm.Keypair, error) {
	pub, priv, err := slhdsa.GenerateKey(rand, b.ID)
	if err != nil {
		return algorithm.Keypair{}, fmt.Errorf("generate key: %w", err)
	}

	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return algorithm.Keypair{}, fmt.Errorf("encode public key: %w", err)
	}

	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return algorithm.Keypair{}, fmt.Errorf("encode secret key: %w", err)
	}

	return algorithm.Keypair{PublicKey: pubBytes, SecretKey: privBytes}, nil
}

// Sign uses the deterministic variant with an empty context.
func (b SLHDSA) Sign(secretKey, message []byte) ([]byte, error) {
	priv := slhdsa.PrivateKey{ID: b.ID}
	if err := priv.UnmarshalBinary(secretKey); err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}

	sig, err := slhdsa.SignDeterministic(&priv, slhdsa.NewMessage(message), nil)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	return sig, nil
}

func (b SLHDSA) Verify(publicKey, message, signature []byte) bool {
	pub := slhdsa.PublicKey{ID: b.ID}
	if err := pub.UnmarshalBinary(publicKey); err != nil {
		return false
	}

	return slhdsa.Verify(&pub, slhdsa.NewMessage(message), signature, nil)
}
