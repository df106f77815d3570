package flowguard

import "github.com/crimson-sun/flowguard/internal/model"

// Flow is one aggregated traffic flow. Protocol and Flags are required;
// numeric fields left at zero are sent to the model as zero.
type Flow struct {
	Protocol          string  `json:"Protocol"`
	PacketLength      float64 `json:"Packet_Length"`
	Duration          float64 `json:"Duration"`
	SourcePort        int64   `json:"Source_Port"`
	DestinationPort   int64   `json:"Destination_Port"`
	BytesSent         float64 `json:"Bytes_Sent"`
	BytesReceived     float64 `json:"Bytes_Received"`
	Flags             string  `json:"Flags"`
	FlowPacketsPerSec float64 `json:"Flow_Packets_s"`
	FlowBytesPerSec   float64 `json:"Flow_Bytes_s"`
	AvgPacketSize     float64 `json:"Avg_Packet_Size"`
	TotalFwdPackets   int64   `json:"Total_Fwd_Packets"`
	TotalBwdPackets   int64   `json:"Total_Bwd_Packets"`
	FwdHeaderLength   int64   `json:"Fwd_Header_Length"`
	BwdHeaderLength   int64   `json:"Bwd_Header_Length"`
	SubFlowFwdBytes   float64 `json:"Sub_Flow_Fwd_Bytes"`
	SubFlowBwdBytes   float64 `json:"Sub_Flow_Bwd_Bytes"`
	Inbound           int64   `json:"Inbound"`
}

func (f Flow) payload() map[string]any {
	return map[string]any{
		"Protocol":           f.Protocol,
		"Packet_Length":      f.PacketLength,
		"Duration":           f.Duration,
		"Source_Port":        f.SourcePort,
		"Destination_Port":   f.DestinationPort,
		"Bytes_Sent":         f.BytesSent,
		"Bytes_Received":     f.BytesReceived,
		"Flags":              f.Flags,
		"Flow_Packets_s":     f.FlowPacketsPerSec,
		"Flow_Bytes_s":       f.FlowBytesPerSec,
		"Avg_Packet_Size":    f.AvgPacketSize,
		"Total_Fwd_Packets":  f.TotalFwdPackets,
		"Total_Bwd_Packets":  f.TotalBwdPackets,
		"Fwd_Header_Length":  f.FwdHeaderLength,
		"Bwd_Header_Length":  f.BwdHeaderLength,
		"Sub_Flow_Fwd_Bytes": f.SubFlowFwdBytes,
		"Sub_Flow_Bwd_Bytes": f.SubFlowBwdBytes,
		"Inbound":            f.Inbound,
	}
}

// Result is the classification of one flow.
// This is the stable public type; internal representations may change
// without breaking consumers.
type Result struct {
	Class         string    `json:"class"`         // Normal, DDoS, Ransomware or Brute Force
	Confidence    float64   `json:"confidence"`    // probability of Class
	Probabilities []float64 `json:"probabilities"` // one per entry of Classes
}

// Classes lists the labels in probability-vector order.
func Classes() []string {
	return append([]string(nil), model.Classes[:]...)
}
