// Package pcapsrc registers the libpcap capture backend under "pcap".
package pcapsrc

import (
	"errors"
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcap"

	"github.com/crimson-sun/flowguard/internal/capture"
)

func init() {
	capture.Register("pcap", Open)
}

type source struct {
	handle *pcap.Handle
}

// Open starts a live capture on cfg.Interface, or on the first non-loopback
// interface with an address when it is empty.
func Open(cfg capture.SourceConfig) (capture.Source, error) {
	iface := cfg.Interface
	if iface == "" {
		var err error
		if iface, err = defaultDevice(); err != nil {
			return nil, err
		}
	}

	handle, err := pcap.OpenLive(iface, int32(cfg.SnapLen), cfg.Promiscuous, cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("pcap: failed to open %s: %w", iface, err)
	}
	return &source{handle: handle}, nil
}

func defaultDevice() (string, error) {
	devs, err := pcap.FindAllDevs()
	if err != nil {
		return "", fmt.Errorf("pcap: failed to list devices: %w", err)
	}
	for _, d := range devs {
		if isLoopback(d) {
			continue
		}
		for _, a := range d.Addresses {
			if a.IP != nil && !a.IP.IsLoopback() && a.IP.To4() != nil {
				return d.Name, nil
			}
		}
	}
	for _, d := range devs {
		if len(d.Addresses) > 0 && !isLoopback(d) {
			return d.Name, nil
		}
	}
	return "", errors.New("pcap: no capture device found")
}

// pcapIfLoopback mirrors PCAP_IF_LOOPBACK.
const pcapIfLoopback = 0x1

func isLoopback(d pcap.Interface) bool {
	if d.Flags&pcapIfLoopback != 0 {
		return true
	}
	for _, a := range d.Addresses {
		if a.IP.Equal(net.IPv4(127, 0, 0, 1)) || a.IP.Equal(net.IPv6loopback) {
			return true
		}
	}
	return false
}

// ReadPacketData maps libpcap's read timeout to capture.ErrTimeout.
func (s *source) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.handle.ReadPacketData()
	if errors.Is(err, pcap.NextErrorTimeoutExpired) {
		return nil, ci, capture.ErrTimeout
	}
	return data, ci, err
}

func (s *source) LinkType() layers.LinkType { return s.handle.LinkType() }

func (s *source) Close() error {
	s.handle.Close()
	return nil
}
