package backend

import (
	"fmt"
	"io"

	fndsa "github.com/pornin/go-fn-dsa"

	"github.com/weiihann/sigbench/algorithm"
)

// Falcon adapts FN-DSA (Falcon) at degree 2^LogN. Only the standard degrees
// 512 (LogN 9) and 1024 (LogN 10) are supported.
type Falcon struct {
	LogN uint
}

func (b Falcon) GenerateKeypair(rand io.Reader) (algorithm.Keypair, error) {
	skey, vkey, err := fndsa.KeyGen(b.LogN, rand)
	if err != nil {
		return algorithm.Keypair{}, fmt.Errorf("generate key: %w", err)
	}

	return algorithm.Keypair{PublicKey: vkey, SecretKey: skey}, nil
}

// Sign signs the raw message with the system RNG.
func (b Falcon) Sign(secretKey, message []byte) ([]byte, error) {
	if len(secretKey) != fndsa.SigningKeySize(b.LogN) {
		return nil, fmt.Errorf("secret key is %d bytes, want %d",
			len(secretKey), fndsa.SigningKeySize(b.LogN))
	}

	sig, err := fndsa.Sign(nil, secretKey, fndsa.DOMAIN_NONE, 0, message)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	return sig, nil
}

func (b Falcon) Verify(publicKey, message, signature []byte) bool {
	if len(publicKey) != fndsa.VerifyingKeySize(b.LogN) {
		return false
	}
	if len(signature) != fndsa.SignatureSize(b.LogN) {
		return false
	}

	return fndsa.Verify(publicKey, fndsa.DOMAIN_NONE, 0, message, signature)
}
