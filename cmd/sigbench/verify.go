package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weiihann/sigbench/backend"
	"github.com/weiihann/sigbench/chain"
	"github.com/weiihann/sigbench/gas"
	"github.com/weiihann/sigbench/harness"
	"github.com/weiihann/sigbench/report"
)

func newVerifyCmd(logger *slog.Logger, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify signatures logged on chain",
		Long: `Read the signatures logged to the key registry, look up the key each
signer had registered at the time, and verify every signature off-chain.
No account key is needed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd); err != nil {
				return err
			}

			return runVerify(cmd.Context(), logger, v, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.Uint64("from-block", 0,
		"First block to read signature events from")
	flags.String("algorithm", "",
		"Verify with this algorithm only (default: try every registered algorithm)")
	flags.String("rpc-url", chain.DefaultConfig().RPCURL,
		"JSON-RPC endpoint of the chain")
	flags.String("contract", "",
		"Address of the deployed key registry contract")
	flags.String("out", "",
		"Also save the verification document as JSON to this path")
	flags.Bool("json", false,
		"Print results as JSON instead of markdown")

	return cmd
}

func runVerify(ctx context.Context, logger *slog.Logger, v *viper.Viper, w io.Writer) error {
	contract := v.GetString("contract")
	if !common.IsHexAddress(contract) {
		return errMissingContract
	}

	reg, err := backend.NewRegistry()
	if err != nil {
		return fmt.Errorf("register backends: %w", err)
	}

	cfg := chain.DefaultConfig()
	cfg.RPCURL = v.GetString("rpc-url")

	client, err := chain.Dial(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	meter, err := gas.NewMeter(client, common.HexToAddress(contract), logger)
	if err != nil {
		return err
	}

	result, err := harness.NewRunner(reg, nil, logger).
		VerifyLogged(ctx, meter, v.GetUint64("from-block"), v.GetString("algorithm"))
	if result == nil {
		return fmt.Errorf("verify: %w", err)
	}

	if out := v.GetString("out"); out != "" {
		if err := saveDocument(out, result); err != nil {
			return err
		}
	}

	if v.GetBool("json") {
		if err := report.GenerateVerificationJSON(w, result); err != nil {
			return err
		}
	} else if err := report.GenerateVerification(w, result); err != nil {
		return err
	}

	if err != nil {
		return fmt.Errorf("verify interrupted: %w", err)
	}

	return nil
}
