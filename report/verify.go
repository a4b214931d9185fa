package report

import (
	"fmt"
	"io"

	"github.com/weiihann/sigbench/harness"
)

// GenerateVerification writes a markdown summary of an off-chain
// verification pass to w.
func GenerateVerification(w io.Writer, result *harness.VerifyResult) error {
	if result == nil {
		return fmt.Errorf("no verification to report")
	}

	fmt.Fprintln(w, "## Logged Signature Verification")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run `%s` at %s, from block %d\n",
		result.RunID,
		result.Timestamp.Format("2006-01-02 15:04:05 MST"),
		result.FromBlock,
	)
	fmt.Fprintln(w)

	if len(result.Verifications) == 0 {
		fmt.Fprintln(w, "No signature events found.")

		return nil
	}

	fmt.Fprintln(w, "| Block | Signer | Algorithm | Public Key | Signature | Valid | Verify |")
	fmt.Fprintln(w, "|-------|--------|-----------|------------|-----------|-------|--------|")

	for _, v := range result.Verifications {
		alg := v.Algorithm
		if alg == "" {
			alg = "-"
		}

		valid := "no"
		switch {
		case v.Skipped != "":
			valid = "skipped"
		case v.Valid:
			valid = "yes"
		}

		verify := "-"
		if v.Valid {
			verify = formatSeconds(v.Seconds)
		}

		fmt.Fprintf(w, "| %d | %s | %s | %s | %s | %s | %s |\n",
			v.Block,
			v.Signer,
			alg,
			formatBytes(uint64(v.PublicKeyBytes)),
			formatBytes(uint64(v.SignatureBytes)),
			valid,
			verify,
		)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Valid: %d, invalid: %d, skipped: %d. Verify time %s\n",
		result.Valid, result.Invalid, result.Skipped, formatSummary(result.Timing))

	return nil
}

// GenerateVerificationJSON writes result as JSON to w.
func GenerateVerificationJSON(w io.Writer, result *harness.VerifyResult) error {
	return encodeJSON(w, result)
}
