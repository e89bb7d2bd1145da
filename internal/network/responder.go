package network

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/sourcequery/internal/protocol"
)

// InfoProvider returns the info advertised in the next response.
type InfoProvider func() protocol.InfoResult

// Responder answers A2S_INFO queries on a UDP port. Requests that do not
// parse as info requests are ignored, like a game server would.
//
// With RequireChallenge set, a request must echo the responder's current
// challenge; otherwise it is answered with S2C_CHALLENGE.
type Responder struct {
	addr     string
	provider InfoProvider
	logger   zerolog.Logger

	// RequireChallenge enables challenge negotiation.
	RequireChallenge bool

	// SplitSize is the largest datagram payload sent before splitting.
	SplitSize int

	// ChallengeTTL, when positive, rotates the challenge on that period.
	ChallengeTTL time.Duration

	mu        sync.Mutex
	conn      *net.UDPConn
	challenge uint32
	splitID   uint32
	ready     chan struct{}
}

// NewResponder creates a Responder that will listen on addr (host:port).
func NewResponder(addr string, provider InfoProvider) *Responder {
	return &Responder{
		addr:      addr,
		provider:  provider,
		logger:    log.With().Str("component", "responder").Logger(),
		SplitSize: protocol.MaxPacketSize,
		challenge: newChallenge(),
		ready:     make(chan struct{}),
	}
}

// Ready is closed once the socket is bound.
func (r *Responder) Ready() <-chan struct{} {
	return r.ready
}

// Addr returns the bound address, or nil before Ready.
func (r *Responder) Addr() *net.UDPAddr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Start binds the socket and serves queries until ctx is cancelled.
func (r *Responder) Start(ctx context.Context) error {
	lc := ReuseAddrListenConfig()
	pc, err := lc.ListenPacket(ctx, "udp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to start A2S responder on %s: %w", r.addr, err)
	}

	r.mu.Lock()
	r.conn = pc.(*net.UDPConn)
	r.mu.Unlock()
	close(r.ready)

	r.logger.Info().Str("addr", r.conn.LocalAddr().String()).Msg("A2S responder started")

	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	if r.RequireChallenge && r.ChallengeTTL > 0 {
		go r.rotateChallenges(ctx)
	}

	buf := make([]byte, DefaultBufferSize)
	for {
		n, remote, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				r.logger.Info().Msg("A2S responder stopping")
				return nil
			default:
				r.logger.Error().Err(err).Msg("UDP read error")
				continue
			}
		}

		for _, packet := range r.handle(buf[:n]) {
			if _, err := r.conn.WriteToUDP(packet, remote); err != nil {
				r.logger.Warn().
					Err(err).
					Str("remote", remote.String()).
					Msg("failed to send A2S response")
				break
			}
		}
	}
}

// handle builds the datagrams answering one request. It returns nil for
// anything that is not an info request.
func (r *Responder) handle(data []byte) [][]byte {
	if len(data) < 4 || binary.LittleEndian.Uint32(data[:4]) != protocol.HeaderSingle {
		return nil
	}

	challenge, err := protocol.DecodeInfoRequest(data[4:])
	if err != nil {
		r.logger.Trace().Err(err).Msg("ignoring packet")
		return nil
	}

	r.mu.Lock()
	expected := r.challenge
	r.mu.Unlock()

	if r.RequireChallenge && challenge != expected {
		reply := protocol.NewPacketBuilder().
			WriteUint8(protocol.TypeChallenge).
			WriteUint32(expected).
			BuildWithHeader()
		return [][]byte{reply}
	}

	info := r.provider()
	if info == nil {
		return nil
	}

	payload := protocol.NewPacketBuilder().
		WriteBytes(protocol.EncodeInfo(info)).
		BuildWithHeader()
	return r.split(payload)
}

// split cuts a full packet (single header included) into Source-style split
// datagrams when it exceeds SplitSize.
func (r *Responder) split(packet []byte) [][]byte {
	size := r.SplitSize
	if size <= 0 || len(packet) <= size {
		return [][]byte{packet}
	}

	total := (len(packet) + size - 1) / size
	if total > maxSplitPackets {
		r.logger.Warn().Int("bytes", len(packet)).Msg("response too large to split")
		return nil
	}

	r.mu.Lock()
	r.splitID = (r.splitID + 1) & 0x7FFFFFFF
	id := r.splitID
	r.mu.Unlock()

	packets := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		chunk := packet[i*size : min((i+1)*size, len(packet))]
		b := protocol.NewPacketBuilder().
			WriteUint32(protocol.HeaderSplit).
			WriteUint32(id).
			WriteUint8(byte(total)).
			WriteUint8(byte(i)).
			WriteUint16(uint16(size)).
			WriteBytes(chunk)
		packets = append(packets, b.Build())
	}
	return packets
}

// RotateChallenge replaces the current challenge and returns the new one.
func (r *Responder) RotateChallenge() uint32 {
	c := newChallenge()
	r.mu.Lock()
	r.challenge = c
	r.mu.Unlock()
	return c
}

func (r *Responder) rotateChallenges(ctx context.Context) {
	ticker := time.NewTicker(r.ChallengeTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RotateChallenge()
		}
	}
}

// SelfTest queries the responder over loopback and checks that it answers.
func (r *Responder) SelfTest(ctx context.Context) error {
	addr := r.Addr()
	if addr == nil {
		return fmt.Errorf("self-test: responder not started")
	}

	target := net.JoinHostPort("127.0.0.1", fmt.Sprint(addr.Port))
	client := NewClient(5*time.Second, DefaultRetries)
	info, err := client.Query(ctx, target)
	if err != nil {
		return fmt.Errorf("self-test query failed: %w", err)
	}

	r.logger.Debug().
		Str("target", target).
		Str("engine", string(info.Engine())).
		Dur("rtt", info.RTT()).
		Msg("A2S self-test passed")
	return nil
}

func newChallenge() uint32 {
	for {
		if c := rand.Uint32(); c != 0 {
			return c
		}
	}
}
