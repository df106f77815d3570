// Package flowguard classifies network flow summaries as Normal, DDoS,
// Ransomware or Brute Force traffic.
//
// Quick start:
//
//	fg, err := flowguard.New(flowguard.WithDataDir("data/"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer fg.Close()
//
//	res, _ := fg.Classify(flowguard.Flow{Protocol: "TCP", Flags: "SYN", Duration: 0.2})
//	fmt.Println(res.Class, res.Confidence)
//
// New fits the feature preprocessor on the reference dataset and loads the
// ONNX model; both are read-only afterwards, so a FlowGuard is safe for
// concurrent use. Create once, reuse across requests.
package flowguard
