//go:build linux

package afpacketsrc

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/afpacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/crimson-sun/flowguard/internal/capture"
)

func init() {
	capture.Register("afpacket", Open)
}

type source struct {
	tpacket *afpacket.TPacket
}

// Open creates a TPACKET_V3 ring on cfg.Interface, or on the first up,
// non-loopback interface when it is empty.
func Open(cfg capture.SourceConfig) (capture.Source, error) {
	iface := cfg.Interface
	if iface == "" {
		var err error
		if iface, err = defaultInterface(); err != nil {
			return nil, err
		}
	}

	snapLen := cfg.SnapLen
	if snapLen <= 0 {
		snapLen = 65535
	}
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}

	// A small ring: a capture window holds at most a few dozen packets.
	const blockSize = 1 << 20
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(iface),
		afpacket.OptFrameSize(frameSize(snapLen)),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(8),
		afpacket.OptBlockTimeout(timeout),
		afpacket.OptPollTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("afpacket: failed to create TPacket on %s: %w", iface, err)
	}
	return &source{tpacket: tp}, nil
}

// frameSize rounds snapLen up to a power of two so it divides the block size.
func frameSize(snapLen int) int {
	size := 2048
	for size < snapLen && size < 1<<20 {
		size <<= 1
	}
	return size
}

func defaultInterface() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("afpacket: failed to list interfaces: %w", err)
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp != 0 && ifc.Flags&net.FlagLoopback == 0 {
			return ifc.Name, nil
		}
	}
	return "", errors.New("afpacket: no capture interface found")
}

// ReadPacketData maps the ring's poll timeout to capture.ErrTimeout.
func (s *source) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.tpacket.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) {
		return nil, ci, capture.ErrTimeout
	}
	return data, ci, err
}

func (s *source) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (s *source) Close() error {
	s.tpacket.Close()
	return nil
}
