package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/flowguard/internal/config"
	"github.com/crimson-sun/flowguard/internal/dataset"
	"github.com/crimson-sun/flowguard/internal/engine/enginetest"
	"github.com/crimson-sun/flowguard/internal/model"
	"github.com/crimson-sun/flowguard/internal/output"
	"github.com/crimson-sun/flowguard/internal/schema"
)

// execute runs the root command against a data dir holding the reference
// dataset and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.Default().Engine.Dataset), []byte(enginetest.ReferenceCSV), 0o644))
	t.Setenv("FLOWGUARD_CONFIG", "")
	t.Setenv("FLOWGUARD_DATA_DIR", dir)
	t.Setenv("FLOWGUARD_MODEL", filepath.Join(dir, "missing.onnx"))
	t.Setenv("FLOWGUARD_FALLBACK_MODEL", filepath.Join(dir, "missing-too.onnx"))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMetadataCommand(t *testing.T) {
	out, err := execute(t, "metadata")
	require.NoError(t, err)

	var md dataset.Metadata
	require.NoError(t, json.Unmarshal([]byte(out), &md))
	assert.Equal(t, []string{"TCP", "UDP", "Other"}, md.Protocols)
	assert.Equal(t, []string{"ACK", "SYN", "PSH", "FIN"}, md.Flags)
}

func TestStatsCommand(t *testing.T) {
	out, err := execute(t, "stats")
	require.NoError(t, err)

	var cs dataset.ClassStats
	require.NoError(t, json.Unmarshal([]byte(out), &cs))
	assert.Equal(t, "Normal", cs.AttackType)
	assert.Equal(t, 3, cs.Rows)
	assert.Equal(t, "ACK", cs.TopFlags)
	assert.NotEmpty(t, cs.Means)
}

func TestStatsCommandUnknownClass(t *testing.T) {
	_, err := execute(t, "stats", "--attack-type", "Phishing")
	assert.ErrorContains(t, err, "no rows")
}

func TestPredictCommandRemote(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(model.Prediction{
			Class:         "DDoS",
			Confidence:    0.8,
			Probabilities: []float64{0.1, 0.8, 0.05, 0.05},
		})
	}))
	defer srv.Close()

	out, err := execute(t, "predict", "--remote", srv.URL, "--data", `{"Protocol":"UDP","Flags":"SYN","Packet_Length":200}`)
	require.NoError(t, err)
	assert.Equal(t, "UDP", got["Protocol"])

	var pred model.Prediction
	require.NoError(t, json.Unmarshal([]byte(out), &pred))
	assert.Equal(t, "DDoS", pred.Class)
}

func TestPredictCommandValidatesBeforeLoading(t *testing.T) {
	_, err := execute(t, "predict", "--data", `{"Protocol":"TCP"}`)
	var verr *schema.ValidationError
	assert.True(t, errors.As(err, &verr), "error = %v", err)
}

func TestPredictCommandModelMissing(t *testing.T) {
	_, err := execute(t, "predict", "--data", `{"Protocol":"TCP","Flags":"SYN"}`)
	assert.ErrorContains(t, err, "model")
}

func TestReadPayload(t *testing.T) {
	p, err := readPayload("", "", strings.NewReader(`{"Protocol":"TCP","Flags":"ACK"}`))
	require.NoError(t, err)
	assert.Equal(t, "ACK", p["Flags"])

	path := filepath.Join(t.TempDir(), "flow.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Protocol":"UDP"}`), 0o644))
	p, err = readPayload("", path, nil)
	require.NoError(t, err)
	assert.Equal(t, "UDP", p["Protocol"])

	for _, bad := range []string{"null", "[1,2]", "{"} {
		_, err := readPayload(bad, "", nil)
		assert.Error(t, err, bad)
	}
}

func TestBuildOutput(t *testing.T) {
	cfg := config.Default().Output

	out, err := buildOutput(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, output.Discard, out)

	cfg.Format = "carrier-pigeon"
	_, err = buildOutput(cfg, nil)
	assert.Error(t, err)

	cfg = config.Default().Output
	cfg.Verbosity = "loud"
	_, err = buildOutput(cfg, nil)
	assert.Error(t, err)
}

func TestBuildOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	cfg := config.Default().Output
	cfg.Format = "file"
	cfg.Path = path

	out, err := buildOutput(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, out.Write(context.Background(), model.Event{
		Source:     model.SourcePredict,
		Prediction: model.Prediction{Class: "Normal", Confidence: 0.9},
	}))
	require.NoError(t, out.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"class":"Normal"`)
}

func TestCaptureCommandNoBackend(t *testing.T) {
	_, err := execute(t, "capture", "--backend", "none")
	assert.ErrorContains(t, err, "unavailable")
}

func TestBuildOutputFanOut(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default().Output
	cfg.Format = "stdout, file"
	cfg.Path = filepath.Join(dir, "a.ndjson")
	cfg.Verbosity = "minimal"

	out, err := buildOutput(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, out.Write(context.Background(), model.Event{
		Source:     model.SourceMonitor,
		Prediction: model.Prediction{Class: "Brute Force", Confidence: 0.7, Note: "Analysis based on live packet capture."},
	}))
	require.NoError(t, out.Close())

	data, err := os.ReadFile(cfg.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"class":"Brute Force"`)
	assert.NotContains(t, string(data), "live packet capture")
}
