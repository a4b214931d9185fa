// Package backend provides the signing backends benchmarked by sigbench.
// Each backend wraps a third-party implementation behind algorithm.Backend;
// no cryptography is implemented here.
package backend

import (
	"fmt"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"
	"github.com/cloudflare/circl/sign/slhdsa"

	"github.com/weiihann/sigbench/algorithm"
)

// Specs returns the known algorithms in declaration order. The classical
// baselines come first so reports list them ahead of the PQC schemes.
func Specs() []algorithm.Spec {
	return []algorithm.Spec{
		{ID: "ecdsa", Family: algorithm.Classical, Backend: ECDSA{}},
		{ID: "ed25519", Family: algorithm.Classical, Backend: Ed25519{}},
		{
			ID: "dilithium2", Family: algorithm.Lattice, SecurityLevel: 2,
			Backend: NewMLDSA(mldsa44.Scheme()),
		},
		{
			ID: "dilithium3", Family: algorithm.Lattice, SecurityLevel: 3,
			Backend: NewMLDSA(mldsa65.Scheme()),
		},
		{
			ID: "dilithium5", Family: algorithm.Lattice, SecurityLevel: 5,
			Backend: NewMLDSA(mldsa87.Scheme()),
		},
		{
			ID: "sphincs128f", Family: algorithm.HashBased, SecurityLevel: 1,
			Backend: SLHDSA{ID: slhdsa.SHA2_128f},
		},
		{
			ID: "sphincs_fast", Family: algorithm.HashBased, SecurityLevel: 3,
			Backend: SLHDSA{ID: slhdsa.SHA2_192f},
		},
		{
			ID: "falcon512", Family: algorithm.NTRULattice, SecurityLevel: 1,
			Backend: Falcon{LogN: 9},
		},
		{
			ID: "falcon1024", Family: algorithm.NTRULattice, SecurityLevel: 5,
			Backend: Falcon{LogN: 10},
		},
	}
}

// Register adds every known algorithm to reg.
func Register(reg *algorithm.Registry) error {
	for _, spec := range Specs() {
		if err := reg.Register(spec); err != nil {
			return fmt.Errorf("register %s: %w", spec.ID, err)
		}
	}

	return nil
}

// NewRegistry returns a registry holding every known algorithm.
func NewRegistry() (*algorithm.Registry, error) {
	reg := algorithm.NewRegistry()
	if err := Register(reg); err != nil {
		return nil, err
	}

	return reg, nil
}
