package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/sigbench/gas"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)

	err := root.Execute()

	return out.String(), err
}

func TestAlgorithmsCommand(t *testing.T) {
	out, err := execute(t, "algorithms")
	require.NoError(t, err)
	require.Contains(t, out, "| dilithium3 | lattice | 3 |")
	require.Contains(t, out, "| falcon512 | ntru-lattice | 1 |")
	require.Contains(t, out, "| ecdsa | classical | - |")
	require.NotContains(t, out, "| 0 |")
}

func TestReportCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.json")
	metrics := filepath.Join(dir, "sigbench.prom")

	doc := `{
  "run_id": "r1",
  "config": {"algorithms": ["ed25519"], "iterations": 3},
  "algorithms": {
    "ed25519": {
      "algorithm": "ed25519",
      "family": "classical",
      "security_level": 1,
      "sizes": {"public_key": 32, "secret_key": 64, "signature": 64, "message": 150},
      "operations": {"sign": {"count": 3, "mean": 0.00005}}
    }
  },
  "gas_stage": {"enabled": false}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	out, err := execute(t, "report", path, "--metrics-file", metrics)
	require.NoError(t, err)
	require.Contains(t, out, "Run `r1`")
	require.Contains(t, out, "| ed25519 | classical | 1 |")

	_, err = os.Stat(metrics)
	require.NoError(t, err)
}

func TestReportCommandMissingFile(t *testing.T) {
	_, err := execute(t, "report", filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestRunRejectsUnknownAlgorithm(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.json")

	_, err := execute(t, "run", "--algorithms", "rsa", "--iterations", "1", "--out", out)
	require.Error(t, err)

	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr), "no result should be written on config errors")
}

func TestBatchCommandCommaSeparatedEnv(t *testing.T) {
	t.Setenv("SIGBENCH_ALGORITHMS", "ecdsa,ed25519")
	t.Setenv("SIGBENCH_BATCH_SIZES", "1,2")

	out := filepath.Join(t.TempDir(), "batch.json")

	_, err := execute(t, "batch", "--parallel", "1", "--seed", "5", "--out", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)

	var doc struct {
		Config struct {
			Algorithms []string `json:"algorithms"`
			BatchSizes []int    `json:"batch_sizes"`
		} `json:"config"`
		Batches map[string][]json.RawMessage `json:"batches"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))

	require.Equal(t, []string{"ecdsa", "ed25519"}, doc.Config.Algorithms)
	require.Equal(t, []int{1, 2}, doc.Config.BatchSizes)
	require.Len(t, doc.Batches["ed25519"], 2)
}

func TestListValues(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    []string
		wantInt []int
		intErr  bool
	}{
		{name: "comma separated", value: "4,8", want: []string{"4", "8"}, wantInt: []int{4, 8}},
		{name: "comma and space", value: "4, 8 ,16", want: []string{"4", "8", "16"}, wantInt: []int{4, 8, 16}},
		{name: "space separated", value: "4 8", want: []string{"4", "8"}, wantInt: []int{4, 8}},
		{name: "config list", value: []any{1, 2}, want: []string{"1", "2"}, wantInt: []int{1, 2}},
		{name: "unset", value: nil},
		{name: "not numbers", value: "ecdsa,falcon512", want: []string{"ecdsa", "falcon512"}, intErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			if tt.value != nil {
				v.Set("list", tt.value)
			}

			require.Equal(t, tt.want, stringList(v, "list"))

			got, err := intList(v, "list")
			if tt.intErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.wantInt, got)
		})
	}
}

func TestVerifyCommandRequiresContract(t *testing.T) {
	_, err := execute(t, "verify")
	require.ErrorIs(t, err, errMissingContract)
}

func TestVerifyCommandUnreachable(t *testing.T) {
	_, err := execute(t, "verify",
		"--contract", "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"--rpc-url", "http://127.0.0.1:1",
	)
	require.ErrorIs(t, err, gas.ErrChainUnavailable)
}

func TestVerifyCommandNoEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "eth_chainId":
			resp["result"] = "0x539"
		case "eth_getLogs":
			resp["result"] = []any{}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	saved := filepath.Join(t.TempDir(), "verify.json")

	out, err := execute(t, "verify",
		"--contract", "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"--rpc-url", srv.URL,
		"--from-block", "12",
		"--out", saved,
	)
	require.NoError(t, err)
	require.Contains(t, out, "from block 12")
	require.Contains(t, out, "No signature events found.")

	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	require.Contains(t, string(data), `"from_block": 12`)
}

func TestRunGasRequiresKey(t *testing.T) {
	t.Setenv("SIGBENCH_PRIVATE_KEY", "")

	_, err := execute(t, "run", "--gas", "--algorithms", "ecdsa", "--iterations", "1",
		"--contract", "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		"--out", filepath.Join(t.TempDir(), "r.json"),
	)
	require.ErrorIs(t, err, errMissingKey)
}
