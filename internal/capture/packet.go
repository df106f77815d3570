// Package capture samples live traffic from a network interface and
// aggregates it into a single flow record for classification.
package capture

import (
	"net/netip"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// Transport protocol names as they appear in the Protocol column.
const (
	ProtoTCP   = "TCP"
	ProtoUDP   = "UDP"
	ProtoOther = "Other"
)

// Packet is the subset of a captured frame the aggregator needs.
type Packet struct {
	Timestamp time.Time
	Length    int // full frame length on the wire
	IPv4      bool
	Src       netip.Addr
	Dst       netip.Addr
	Transport string // ProtoTCP, ProtoUDP or ProtoOther; empty for non-IPv4
	SrcPort   uint16
	DstPort   uint16
	TCPFlags  string
}

// Decode extracts a Packet from a decoded gopacket frame.
func Decode(pkt gopacket.Packet) Packet {
	md := pkt.Metadata()
	p := Packet{
		Timestamp: md.Timestamp,
		Length:    md.Length,
	}
	if p.Length == 0 {
		p.Length = len(pkt.Data())
	}

	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return p
	}
	p.IPv4 = true
	p.Src, _ = netip.AddrFromSlice(ip.SrcIP.To4())
	p.Dst, _ = netip.AddrFromSlice(ip.DstIP.To4())

	switch {
	case pkt.Layer(layers.LayerTypeTCP) != nil:
		tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		p.Transport = ProtoTCP
		p.SrcPort = uint16(tcp.SrcPort)
		p.DstPort = uint16(tcp.DstPort)
		p.TCPFlags = tcpFlags(tcp)
	case pkt.Layer(layers.LayerTypeUDP) != nil:
		udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		p.Transport = ProtoUDP
		p.SrcPort = uint16(udp.SrcPort)
		p.DstPort = uint16(udp.DstPort)
	default:
		p.Transport = ProtoOther
	}
	return p
}

// tcpFlags renders set flags as letters in FSRPAUECN order, e.g. "PA".
func tcpFlags(t *layers.TCP) string {
	bits := []struct {
		set    bool
		letter byte
	}{
		{t.FIN, 'F'}, {t.SYN, 'S'}, {t.RST, 'R'}, {t.PSH, 'P'}, {t.ACK, 'A'},
		{t.URG, 'U'}, {t.ECE, 'E'}, {t.CWR, 'C'}, {t.NS, 'N'},
	}
	out := make([]byte, 0, len(bits))
	for _, b := range bits {
		if b.set {
			out = append(out, b.letter)
		}
	}
	return string(out)
}
