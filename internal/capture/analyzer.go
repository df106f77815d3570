package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/gopacket/gopacket"

	"github.com/crimson-sun/flowguard/internal/schema"
)

// ErrUnavailable is returned when no capture backend is configured.
var ErrUnavailable = errors.New("capture: live capture unavailable")

// BackendNone disables live capture.
const BackendNone = "none"

const (
	defaultMaxPackets  = 50
	defaultTimeout     = 3 * time.Second
	defaultSnapLen     = 65535
	defaultReadTimeout = 100 * time.Millisecond
)

// Config configures an Analyzer.
type Config struct {
	Backend     string
	Interface   string
	MaxPackets  int
	Timeout     time.Duration
	Promiscuous bool
	LocalIP     string // overrides hostname resolution when set
}

// Analyzer captures a short window of traffic and turns it into a record.
type Analyzer struct {
	open       Opener
	cfg        Config
	local      netip.Addr
	maxPackets int
	timeout    time.Duration
}

// Result is one live analysis.
type Result struct {
	Record   schema.Record
	Note     string
	Fallback bool
	Summary  Summary
	Err      error // capture error that forced the fallback, if any
}

// NewAnalyzer resolves the backend and the local address. An empty or "none"
// backend yields ErrUnavailable.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.Backend == "" || cfg.Backend == BackendNone {
		return nil, ErrUnavailable
	}
	open, err := Lookup(cfg.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return newAnalyzer(open, cfg)
}

func newAnalyzer(open Opener, cfg Config) (*Analyzer, error) {
	a := &Analyzer{
		open:       open,
		cfg:        cfg,
		maxPackets: cfg.MaxPackets,
		timeout:    cfg.Timeout,
	}
	if a.maxPackets <= 0 {
		a.maxPackets = defaultMaxPackets
	}
	if a.timeout <= 0 {
		a.timeout = defaultTimeout
	}

	if cfg.LocalIP != "" {
		addr, err := netip.ParseAddr(cfg.LocalIP)
		if err != nil {
			return nil, fmt.Errorf("capture: invalid local ip %q: %w", cfg.LocalIP, err)
		}
		a.local = addr.Unmap()
	} else {
		addr, err := LocalAddr()
		if err != nil {
			slog.Warn("could not resolve local address, all traffic counts as received", "error", err)
		}
		a.local = addr
	}
	return a, nil
}

// LocalAddr resolves the host name to its first IPv4 address.
func LocalAddr() (netip.Addr, error) {
	host, err := os.Hostname()
	if err != nil {
		return netip.Addr{}, err
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return netip.Addr{}, err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			addr, _ := netip.AddrFromSlice(v4)
			return addr, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("no IPv4 address for host %q", host)
}

// Local returns the address used to tell sent from received traffic.
func (a *Analyzer) Local() netip.Addr { return a.local }

// Capture reads until MaxPackets packets have arrived or Timeout elapses.
// Packets read before an error are returned along with it.
func (a *Analyzer) Capture(ctx context.Context) ([]Packet, error) {
	src, err := a.open(SourceConfig{
		Interface:   a.cfg.Interface,
		SnapLen:     defaultSnapLen,
		Promiscuous: a.cfg.Promiscuous,
		ReadTimeout: defaultReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: open: %w", err)
	}
	defer src.Close()

	wctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	decode := gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	packets := make([]Packet, 0, a.maxPackets)
	for len(packets) < a.maxPackets {
		if wctx.Err() != nil {
			break
		}
		data, ci, err := src.ReadPacketData()
		if errors.Is(err, ErrTimeout) {
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return packets, fmt.Errorf("capture: read: %w", err)
		}
		pkt := gopacket.NewPacket(data, src.LinkType(), decode)
		pkt.Metadata().CaptureInfo = ci
		packets = append(packets, Decode(pkt))
	}

	// The capture window closing is normal; the caller giving up is not.
	if err := ctx.Err(); err != nil {
		return packets, err
	}
	return packets, nil
}

// Analyze captures and aggregates traffic. A capture error or an empty
// capture yields the fallback record rather than an error; only
// cancellation of ctx is returned as an error.
func (a *Analyzer) Analyze(ctx context.Context) (Result, error) {
	if a == nil {
		return Result{}, ErrUnavailable
	}

	packets, err := a.Capture(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if err != nil || len(packets) == 0 {
		slog.Info("no packets captured, using fallback record", "error", err, "packets", len(packets))
		return Result{Record: Fallback(), Note: NoteFallback, Fallback: true, Err: err}, nil
	}

	rec, sum, err := Aggregate(packets, a.local)
	if err != nil {
		return Result{Record: Fallback(), Note: NoteFallback, Fallback: true, Err: err}, nil
	}
	slog.Debug("live capture aggregated", "packets", sum.Packets, "ipv4", sum.IPv4Packets, "protocol", rec.String(schema.ProtocolColumn))
	return Result{Record: rec, Note: NoteLive, Summary: sum}, nil
}
