package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/flowguard/internal/client"
	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/schema"
)

func newPredictCmd(a *app) *cobra.Command {
	var (
		data   string
		file   string
		remote string
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Classify one flow given as JSON",
		Long: `Classify one flow. The JSON object is read from --data, from --file,
or from stdin when neither is set. With --remote the flow is posted to a
running server instead of the local model.`,
		Example: `  flowguard predict --data '{"Protocol":"TCP","Flags":"SYN","Packet_Length":60}'
  flowguard predict --remote http://localhost:5001 < flow.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := readPayload(data, file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)

			var pred model.Prediction
			if remote != "" {
				pred, err = client.New(remote).Predict(ctx, payload)
			} else {
				pred, err = a.predictLocal(cmd, payload)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pred)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "flow as an inline JSON object")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file holding the flow JSON (- for stdin)")
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a flowguard server")
	cmd.MarkFlagsMutuallyExclusive("data", "file")
	return cmd
}

func (a *app) predictLocal(cmd *cobra.Command, payload map[string]any) (model.Prediction, error) {
	rec, err := schema.Build(payload)
	if err != nil {
		return model.Prediction{}, err
	}
	eng, err := a.requireEngine()
	if err != nil {
		return model.Prediction{}, err
	}
	defer eng.Close()
	return eng.PredictOne(commandContext(cmd), rec)
}

func readPayload(data, file string, stdin io.Reader) (map[string]any, error) {
	var raw []byte
	switch {
	case data != "":
		raw = []byte(data)
	case file != "" && file != "-":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("flow must be a JSON object: %w", err)
	}
	if payload == nil {
		return nil, errors.New("flow must be a JSON object")
	}
	return payload, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
