// Package udp mirrors telemetry to a UDP listener, one datagram per write.
package udp

import (
	"fmt"
	"net"
	"sync/atomic"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

type Broadcaster struct {
	dest string
	conn udpConn

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	})
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("udp: resolve %s: %w", dest, err)
	}
	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("udp: dial %s: %w", dest, err)
	}
	return &Broadcaster{dest: dest, conn: conn}, nil
}

func (b *Broadcaster) Dest() string { return b.dest }

// Send writes payload as one datagram.
func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if _, err := b.conn.Write(payload); err != nil {
		b.dropped.Add(1)
		return err
	}
	b.sent.Add(1)
	return nil
}

// Write sends p and always reports success; failed datagrams are only
// counted in Dropped.
func (b *Broadcaster) Write(p []byte) (int, error) {
	_ = b.Send(p)
	return len(p), nil
}

func (b *Broadcaster) Sent() uint64    { return b.sent.Load() }
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

func (b *Broadcaster) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}
