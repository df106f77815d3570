package capture

import (
	"net/netip"

	"github.com/crimson-sun/flowguard/internal/schema"
)

// Notes attached to live analysis results.
const (
	NoteLive     = "Analysis based on live packet capture."
	NoteFallback = "Analysis based on current connection (Root required for full packet capture)."
)

const (
	// minDuration keeps the rate features finite when all packets share a
	// timestamp.
	minDuration = 0.01

	// ipv4HeaderLen is the per-packet header size assumed for the header
	// length features.
	ipv4HeaderLen = 20

	// placeholderFlags is always reported for live captures.
	placeholderFlags = "SYN"
)

var fallbackPayload = map[string]any{
	"Protocol":           "TCP",
	"Packet_Length":      1078.0,
	"Duration":           2.55,
	"Source_Port":        1766,
	"Destination_Port":   1887,
	"Bytes_Sent":         986.0,
	"Bytes_Received":     1056.0,
	"Flags":              "ACK",
	"Flow_Packets_s":     24.3,
	"Flow_Bytes_s":       1105.0,
	"Avg_Packet_Size":    490.0,
	"Total_Fwd_Packets":  30,
	"Total_Bwd_Packets":  30,
	"Fwd_Header_Length":  304,
	"Bwd_Header_Length":  299,
	"Sub_Flow_Fwd_Bytes": 1107.0,
	"Sub_Flow_Bwd_Bytes": 976.0,
	"Inbound":            0,
}

var fallbackRecord = func() schema.Record {
	rec, err := schema.Build(fallbackPayload)
	if err != nil {
		panic("capture: invalid fallback record: " + err.Error())
	}
	return rec
}()

// Fallback returns the fixed record used when nothing could be captured.
func Fallback() schema.Record {
	return fallbackRecord
}

// Summary carries aggregate details that do not fit the record.
type Summary struct {
	Packets       int    `json:"packets"`
	IPv4Packets   int    `json:"ipv4_packets"`
	ObservedFlags string `json:"observed_flags,omitempty"` // most common TCP flag set
}

// Aggregate folds captured packets into one flow record. IPv4 packets whose
// source is local are counted as forward (sent) traffic, all other IPv4
// packets as backward (received). packets must be non-empty.
func Aggregate(packets []Packet, local netip.Addr) (schema.Record, Summary, error) {
	var (
		totalBytes, sentBytes, recvBytes float64
		fwdPkts, bwdPkts                 int
		ipv4                             int
		protocols                        []string
		flags                            []string
		srcPort, dstPort                 uint16
		havePorts                        bool
	)

	for _, p := range packets {
		if !p.IPv4 {
			continue
		}
		ipv4++
		n := float64(p.Length)
		totalBytes += n
		if local.IsValid() && p.Src == local {
			sentBytes += n
			fwdPkts++
		} else {
			recvBytes += n
			bwdPkts++
		}

		protocols = append(protocols, p.Transport)
		if p.Transport == ProtoTCP {
			flags = append(flags, p.TCPFlags)
		}
		if !havePorts && (p.Transport == ProtoTCP || p.Transport == ProtoUDP) {
			srcPort, dstPort = p.SrcPort, p.DstPort
			havePorts = true
		}
	}

	duration := minDuration
	if len(packets) > 0 {
		if d := packets[len(packets)-1].Timestamp.Sub(packets[0].Timestamp).Seconds(); d > minDuration {
			duration = d
		}
	}

	var pktLen, avgSize float64
	if ipv4 > 0 {
		pktLen = totalBytes / float64(ipv4)
	}
	if len(packets) > 0 {
		avgSize = totalBytes / float64(len(packets))
	}

	proto := mostCommon(protocols)
	if proto == "" {
		proto = ProtoTCP
	}
	inbound := 0
	if recvBytes > sentBytes {
		inbound = 1
	}

	rec, err := schema.Build(map[string]any{
		"Protocol":           proto,
		"Packet_Length":      pktLen,
		"Duration":           duration,
		"Source_Port":        int(srcPort),
		"Destination_Port":   int(dstPort),
		"Bytes_Sent":         sentBytes,
		"Bytes_Received":     recvBytes,
		"Flags":              placeholderFlags,
		"Flow_Packets_s":     float64(len(packets)) / duration,
		"Flow_Bytes_s":       totalBytes / duration,
		"Avg_Packet_Size":    avgSize,
		"Total_Fwd_Packets":  fwdPkts,
		"Total_Bwd_Packets":  bwdPkts,
		"Fwd_Header_Length":  fwdPkts * ipv4HeaderLen,
		"Bwd_Header_Length":  bwdPkts * ipv4HeaderLen,
		"Sub_Flow_Fwd_Bytes": sentBytes,
		"Sub_Flow_Bwd_Bytes": recvBytes,
		"Inbound":            inbound,
	})
	if err != nil {
		return schema.Record{}, Summary{}, err
	}
	return rec, Summary{Packets: len(packets), IPv4Packets: ipv4, ObservedFlags: mostCommon(flags)}, nil
}

// mostCommon returns the most frequent value. Ties go to the value seen
// first.
func mostCommon(values []string) string {
	counts := make(map[string]int, 4)
	best, bestN := "", 0
	for _, v := range values {
		counts[v]++
	}
	for _, v := range values {
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best
}
