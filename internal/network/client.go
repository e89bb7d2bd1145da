package network

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/energizer-project/sourcequery/internal/protocol"
)

const (
	DefaultTimeout    = 3 * time.Second
	DefaultRetries    = 3
	DefaultBufferSize = 4096

	// splitHeaderSize covers id, total, number and size after the split header.
	splitHeaderSize = 4 + 1 + 1 + 2
	maxSplitPackets = 32
)

// Client sends A2S_INFO queries over UDP. It holds no per-query state and
// may be shared between goroutines; every Query uses its own socket.
type Client struct {
	// Timeout bounds the wait for each reply datagram.
	Timeout time.Duration

	// Retries is how many challenge replies are answered before giving up.
	Retries int

	// BufferSize is the receive buffer for a single datagram.
	BufferSize int
}

// NewClient creates a Client, filling zero values with defaults.
func NewClient(timeout time.Duration, retries int) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if retries <= 0 {
		retries = DefaultRetries
	}
	return &Client{
		Timeout:    timeout,
		Retries:    retries,
		BufferSize: DefaultBufferSize,
	}
}

// Query sends an info request to address (host:port) and decodes the reply.
// When the server answers with a challenge, the request is repeated with it.
// The returned result carries the round-trip time of the final attempt.
func (c *Client) Query(ctx context.Context, address string) (protocol.InfoResult, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	defer conn.Close()

	// Unblock a pending read as soon as the context is done.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	var challenge uint32
	for attempt := 0; ; attempt++ {
		packet := protocol.NewPacketBuilder().
			WriteBytes(protocol.EncodeInfoRequest(challenge)).
			BuildWithHeader()

		start := time.Now()
		payload, err := c.roundTrip(ctx, conn, packet)
		if err != nil {
			return nil, err
		}
		rtt := time.Since(start)

		if payload[0] != protocol.TypeChallenge {
			return protocol.DecodeInfo(payload, rtt)
		}

		if len(payload) < 5 {
			return nil, fmt.Errorf("%w: challenge of %d bytes", ErrShortResponse, len(payload))
		}
		if attempt >= c.Retries {
			return nil, ErrTooManyChallenges
		}
		challenge = binary.LittleEndian.Uint32(payload[1:5])
	}
}

// roundTrip writes one request and returns the reassembled reply payload,
// starting at the response type byte.
func (c *Client) roundTrip(ctx context.Context, conn net.Conn, packet []byte) ([]byte, error) {
	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	if _, err := conn.Write(packet); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	var splits *splitAssembler
	buf := make([]byte, c.bufferSize())
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("read response: %w", err)
		}

		data := buf[:n]
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: %d bytes", ErrShortResponse, len(data))
		}

		switch binary.LittleEndian.Uint32(data[:4]) {
		case protocol.HeaderSingle:
			if len(data) < 5 {
				return nil, fmt.Errorf("%w: header without payload", ErrShortResponse)
			}
			return append([]byte(nil), data[4:]...), nil

		case protocol.HeaderSplit:
			if splits == nil {
				splits = &splitAssembler{}
			}
			done, err := splits.add(data[4:])
			if err != nil {
				return nil, err
			}
			if done {
				return splits.payload()
			}

		default:
			return nil, fmt.Errorf("%w: 0x%08X", ErrUnknownHeader, binary.LittleEndian.Uint32(data[:4]))
		}
	}
}

func (c *Client) bufferSize() int {
	if c.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return c.BufferSize
}

// splitAssembler collects the pieces of one Source-style split response.
type splitAssembler struct {
	id     uint32
	total  int
	pieces map[int][]byte
}

// add stores one split packet (without the split header) and reports
// whether every piece has arrived.
func (s *splitAssembler) add(data []byte) (bool, error) {
	if len(data) < splitHeaderSize {
		return false, fmt.Errorf("%w: %d byte split packet", ErrShortResponse, len(data))
	}

	id := binary.LittleEndian.Uint32(data[0:4])
	total := int(data[4])
	number := int(data[5])

	if id&0x80000000 != 0 {
		return false, ErrCompressedSplit
	}
	if total == 0 || total > maxSplitPackets || number >= total {
		return false, fmt.Errorf("%w: packet %d of %d", ErrInvalidSplit, number, total)
	}

	if s.pieces == nil {
		s.id = id
		s.total = total
		s.pieces = make(map[int][]byte, total)
	} else if id != s.id || total != s.total {
		return false, fmt.Errorf("%w: mixed split ids", ErrInvalidSplit)
	}

	s.pieces[number] = append([]byte(nil), data[splitHeaderSize:]...)
	return len(s.pieces) == s.total, nil
}

// payload joins the pieces in order and strips the inner single header.
func (s *splitAssembler) payload() ([]byte, error) {
	var joined []byte
	for i := 0; i < s.total; i++ {
		joined = append(joined, s.pieces[i]...)
	}

	if len(joined) < 5 || binary.LittleEndian.Uint32(joined[:4]) != protocol.HeaderSingle {
		return nil, fmt.Errorf("%w: reassembled payload lacks header", ErrInvalidSplit)
	}
	return joined[4:], nil
}
