// Package afpacketsrc registers the AF_PACKET (TPACKET_V3) capture backend
// under "afpacket". It needs no libpcap but does need CAP_NET_RAW, and is
// only built on Linux.
package afpacketsrc
