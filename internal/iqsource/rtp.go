package iqsource

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/pion/rtp"
	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// RTPSource receives an I/Q capture as an RTP/multicast stream: the payload
// of each packet is interleaved 16-bit big-endian I/Q samples, matching the
// wire format radiod-style front ends emit.
type RTPSource struct {
	conn  *net.UDPConn
	fs    float64
	ssrc  uint32 // 0 = accept any SSRC
	queue chan [2]float64
	mu    sync.Mutex
	err   error
	done  chan struct{}
}

// OpenRTP joins the multicast group at addr on iface (nil = system default
// route) and starts decoding RTP payloads into I/Q samples at fs Hz. ssrc,
// if non-zero, restricts consumption to packets from that stream.
func OpenRTP(addr *net.UDPAddr, iface *net.Interface, fs float64, ssrc uint32) (*RTPSource, error) {
	conn, err := setupMulticastSocket(addr, iface)
	if err != nil {
		return nil, err
	}
	s := &RTPSource{
		conn:  conn,
		fs:    fs,
		ssrc:  ssrc,
		queue: make(chan [2]float64, 1<<16),
		done:  make(chan struct{}),
	}
	go s.receiveLoop()
	return s, nil
}

// setupMulticastSocket mirrors the reuseport/reuseaddr + ipv4.JoinGroup
// dance used for the front end's own audio multicast socket.
func setupMulticastSocket(addr *net.UDPAddr, iface *net.Interface) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					sockErr = fmt.Errorf("setting SO_REUSEPORT: %w", err)
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					sockErr = fmt.Errorf("setting SO_REUSEADDR: %w", err)
					return
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := lc.ListenPacket(context.Background(), "udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("iqsource: listen: %w", err)
	}
	udpConn := conn.(*net.UDPConn)
	_ = udpConn.SetReadBuffer(4 << 20)

	p := ipv4.NewPacketConn(udpConn)
	if err := p.JoinGroup(iface, addr); err != nil {
		udpConn.Close()
		return nil, fmt.Errorf("iqsource: join multicast group %s: %w", addr, err)
	}
	return udpConn, nil
}

func (s *RTPSource) receiveLoop() {
	defer close(s.done)
	buf := make([]byte, 65536)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			close(s.queue)
			return
		}
		if n < 12 {
			continue
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		if s.ssrc != 0 && pkt.SSRC != s.ssrc {
			continue
		}
		s.enqueue(pkt.Payload)
	}
}

// enqueue decodes a big-endian interleaved I/Q payload and pushes each
// sample pair, dropping the tail end of the buffer.
func (s *RTPSource) enqueue(payload []byte) {
	n := len(payload) / 4
	for k := 0; k < n; k++ {
		iRaw := int16(uint16(payload[k*4])<<8 | uint16(payload[k*4+1]))
		qRaw := int16(uint16(payload[k*4+2])<<8 | uint16(payload[k*4+3]))
		sample := [2]float64{float64(iRaw) / 32768.0, float64(qRaw) / 32768.0}
		select {
		case s.queue <- sample:
		default:
			// Backpressure: drop the oldest sample rather than blocking
			// the UDP read loop.
			select {
			case <-s.queue:
			default:
			}
			s.queue <- sample
		}
	}
}

// SampleRate returns the configured I/Q sample rate in Hz.
func (s *RTPSource) SampleRate() float64 { return s.fs }

// Next returns the next decoded I/Q sample pair, blocking until one is
// available or the stream ends.
func (s *RTPSource) Next() (i, q float64, ok bool) {
	sample, ok := <-s.queue
	if !ok {
		return 0, 0, false
	}
	return sample[0], sample[1], true
}

// Close stops the receive loop and releases the socket.
func (s *RTPSource) Close() error {
	err := s.conn.Close()
	<-s.done
	return err
}
