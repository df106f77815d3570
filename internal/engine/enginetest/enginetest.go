// Package enginetest provides a deterministic stand-in network and a small
// reference table for tests that need a loaded engine without the ONNX
// runtime.
package enginetest

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/crimson-sun/flowguard/internal/dataset"
	"github.com/crimson-sun/flowguard/internal/engine"
	"github.com/crimson-sun/flowguard/internal/engine/preprocess"
	"github.com/crimson-sun/flowguard/internal/model"
)

// ReferenceCSV is a minimal reference table with the full training layout.
const ReferenceCSV = `Timestamp,Source_IP,Destination_IP,Protocol,Packet_Length,Duration,Source_Port,Destination_Port,Bytes_Sent,Bytes_Received,Flags,Flow_Packets/s,Flow_Bytes/s,Avg_Packet_Size,Total_Fwd_Packets,Total_Bwd_Packets,Fwd_Header_Length,Bwd_Header_Length,Sub_Flow_Fwd_Bytes,Sub_Flow_Bwd_Bytes,Inbound,Attack_Type,Label
2024-01-01 00:00:00,10.0.0.1,10.0.0.2,TCP,1078,2.55,1766,1887,986,1056,ACK,24.3,1105,490,30,30,304,299,1107,976,0,Normal,0
2024-01-01 00:00:01,10.0.0.3,10.0.0.2,UDP,200,0.5,5353,53,100,0,SYN,400,9000,150,500,1,9000,20,50,0,1,DDoS,1
2024-01-01 00:00:02,10.0.0.4,10.0.0.2,TCP,1500,9.0,4444,445,90000,1200,PSH,3,10000,1400,60,10,1200,200,90000,1200,0,Ransomware,1
2024-01-01 00:00:03,10.0.0.5,10.0.0.2,TCP,80,0.2,51000,22,600,600,SYN,100,6000,60,10,10,200,200,600,600,1,Brute Force,1
2024-01-01 00:00:04,10.0.0.6,10.0.0.2,UDP,512,1.0,5000,53,512,512,ACK,2,1024,512,1,1,20,20,512,512,1,Normal,0
2024-01-01 00:00:05,10.0.0.7,10.0.0.2,Other,64,0.1,0,0,64,64,FIN,10,640,64,1,1,20,20,64,64,0,Normal,0
`

// Table parses ReferenceCSV.
func Table(tb testing.TB) *dataset.Table {
	tb.Helper()
	t, err := dataset.Read(strings.NewReader(ReferenceCSV))
	if err != nil {
		tb.Fatalf("enginetest: %v", err)
	}
	return t
}

// Preprocessor fits a preprocessor on ReferenceCSV.
func Preprocessor(tb testing.TB) *preprocess.Preprocessor {
	tb.Helper()
	p, err := preprocess.Fit(Table(tb))
	if err != nil {
		tb.Fatalf("enginetest: %v", err)
	}
	return p
}

// Engine returns a loaded engine over Preprocessor and net.
func Engine(tb testing.TB, net *Net) *engine.Engine {
	tb.Helper()
	return engine.New(Preprocessor(tb), net, nil)
}

// Net is a deterministic network: each class logit is a fixed weighted sum
// of the input row, passed through softmax.
type Net struct {
	Err    error
	calls  atomic.Int64
	closed atomic.Bool
}

// Calls returns how many Forward calls were made.
func (n *Net) Calls() int64 { return n.calls.Load() }

// Closed reports whether Close was called.
func (n *Net) Closed() bool { return n.closed.Load() }

// Forward implements network.Network.
func (n *Net) Forward(ctx context.Context, input []float32, batch, features int64) ([][]float32, error) {
	n.calls.Add(1)
	if n.Err != nil {
		return nil, n.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if int64(len(input)) != batch*features {
		return nil, errors.New("enginetest: input length mismatch")
	}
	out := make([][]float32, batch)
	for b := int64(0); b < batch; b++ {
		row := input[b*features : (b+1)*features]
		logits := make([]float64, model.NumClasses)
		for j, v := range row {
			logits[j%model.NumClasses] += float64(v) * float64(j%3+1) / 4
		}
		out[b] = softmax(logits)
	}
	return out, nil
}

// Close implements network.Network.
func (n *Net) Close() error {
	n.closed.Store(true)
	return nil
}

func softmax(logits []float64) []float32 {
	top := logits[0]
	for _, l := range logits {
		top = math.Max(top, l)
	}
	var sum float64
	exps := make([]float64, len(logits))
	for i, l := range logits {
		exps[i] = math.Exp(l - top)
		sum += exps[i]
	}
	out := make([]float32, len(logits))
	for i := range exps {
		out[i] = float32(exps[i] / sum)
	}
	return out
}
