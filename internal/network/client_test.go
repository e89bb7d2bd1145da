package network

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/sourcequery/internal/protocol"
)

func testSourceInfo() *protocol.SourceInfo {
	port := uint16(27015)
	keywords := "secure,casual"
	return &protocol.SourceInfo{
		Protocol:   17,
		Name:       "Test Server",
		Map:        "de_inferno",
		Folder:     "csgo",
		Game:       "Counter-Strike",
		AppID:      730,
		Players:    3,
		MaxPlayers: 10,
		ServerType: 'd',
		Platform:   'l',
		VAC:        true,
		Version:    "1.0.0.0",
		Port:       &port,
		Keywords:   &keywords,
	}
}

// startResponder runs a Responder on loopback until the test ends.
func startResponder(t *testing.T, provider InfoProvider, configure func(*Responder)) (*Responder, string) {
	t.Helper()

	r := NewResponder("127.0.0.1:0", provider)
	if configure != nil {
		configure(r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	select {
	case <-r.Ready():
	case err := <-errCh:
		t.Fatalf("responder failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("responder did not start")
	}

	return r, r.Addr().String()
}

// fakeServer answers every datagram with the datagrams from reply.
func fakeServer(t *testing.T, reply func(req []byte) [][]byte) string {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, remote, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			for _, packet := range reply(append([]byte(nil), buf[:n]...)) {
				conn.WriteToUDP(packet, remote)
			}
		}
	}()

	return conn.LocalAddr().String()
}

func TestClient_QuerySource(t *testing.T) {
	want := testSourceInfo()
	_, addr := startResponder(t, func() protocol.InfoResult { return want }, nil)

	client := NewClient(2*time.Second, DefaultRetries)
	result, err := client.Query(context.Background(), addr)
	require.NoError(t, err)

	info, ok := result.(*protocol.SourceInfo)
	require.True(t, ok)
	assert.Equal(t, want.Name, info.Name)
	assert.Equal(t, want.Map, info.Map)
	assert.Equal(t, protocol.EDFPort|protocol.EDFKeywords, info.ExtraDataFlags)
	require.NotNil(t, info.Port)
	assert.Equal(t, uint16(27015), *info.Port)
	assert.Nil(t, info.SteamID)
	assert.Greater(t, info.RoundTripTime, time.Duration(0))
}

func TestClient_QueryGoldSrc(t *testing.T) {
	want := &protocol.GoldSrcInfo{
		Address:    "127.0.0.1:27015",
		Name:       "Old School",
		Map:        "crossfire",
		Folder:     "valve",
		Game:       "Half-Life",
		MaxPlayers: 16,
		Protocol:   47,
		ServerType: 'D',
		Platform:   'L',
	}
	_, addr := startResponder(t, func() protocol.InfoResult { return want }, nil)

	result, err := NewClient(2*time.Second, 0).Query(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, protocol.EngineGoldSrc, result.Engine())
	assert.Equal(t, "Old School", result.(*protocol.GoldSrcInfo).Name)
}

func TestClient_QueryWithChallenge(t *testing.T) {
	_, addr := startResponder(t, func() protocol.InfoResult { return testSourceInfo() }, func(r *Responder) {
		r.RequireChallenge = true
	})

	result, err := NewClient(2*time.Second, 1).Query(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, "Test Server", result.(*protocol.SourceInfo).Name)
}

func TestClient_QueryAfterChallengeRotation(t *testing.T) {
	r, addr := startResponder(t, func() protocol.InfoResult { return testSourceInfo() }, func(r *Responder) {
		r.RequireChallenge = true
	})

	client := NewClient(2*time.Second, 1)
	_, err := client.Query(context.Background(), addr)
	require.NoError(t, err)

	r.RotateChallenge()
	_, err = client.Query(context.Background(), addr)
	require.NoError(t, err)
}

func TestClient_QuerySplitResponse(t *testing.T) {
	info := testSourceInfo()
	info.Name = strings.Repeat("long server name ", 10)

	_, addr := startResponder(t, func() protocol.InfoResult { return info }, func(r *Responder) {
		r.SplitSize = 40
	})

	result, err := NewClient(2*time.Second, 0).Query(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, info.Name, result.(*protocol.SourceInfo).Name)
}

func TestClient_TooManyChallenges(t *testing.T) {
	addr := fakeServer(t, func([]byte) [][]byte {
		reply := protocol.NewPacketBuilder().
			WriteUint8(protocol.TypeChallenge).
			WriteUint32(newChallenge()).
			BuildWithHeader()
		return [][]byte{reply}
	})

	_, err := NewClient(2*time.Second, 2).Query(context.Background(), addr)
	assert.ErrorIs(t, err, ErrTooManyChallenges)
}

func TestClient_Timeout(t *testing.T) {
	addr := fakeServer(t, func([]byte) [][]byte { return nil })

	_, err := NewClient(100*time.Millisecond, 0).Query(context.Background(), addr)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClient_ContextCancelled(t *testing.T) {
	addr := fakeServer(t, func([]byte) [][]byte { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(5*time.Second, 0).Query(ctx, addr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_BadReplies(t *testing.T) {
	tt := map[string]struct {
		reply []byte
		want  error
	}{
		"unknown header": {[]byte{0x01, 0x02, 0x03, 0x04, 0x49}, ErrUnknownHeader},
		"too short":      {[]byte{0xFF, 0xFF}, ErrShortResponse},
		"unknown type":   {[]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x99, 0x00}, protocol.ErrMalformedResponse},
		"compressed split": {
			[]byte{0xFE, 0xFF, 0xFF, 0xFF, 0x01, 0x00, 0x00, 0x80, 0x02, 0x00, 0x10, 0x00, 0xFF},
			ErrCompressedSplit,
		},
	}

	for name, tc := range tt {
		t.Run(name, func(t *testing.T) {
			addr := fakeServer(t, func([]byte) [][]byte { return [][]byte{tc.reply} })

			_, err := NewClient(time.Second, 0).Query(context.Background(), addr)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestResponder_IgnoresOtherPackets(t *testing.T) {
	r := NewResponder("127.0.0.1:0", func() protocol.InfoResult { return testSourceInfo() })

	assert.Nil(t, r.handle([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x55, 0xFF, 0xFF, 0xFF, 0xFF}))
	assert.Nil(t, r.handle([]byte{0x00}))
	assert.Len(t, r.handle(protocol.NewPacketBuilder().
		WriteBytes(protocol.EncodeInfoRequest(0)).
		BuildWithHeader()), 1)
}

func TestResponder_SelfTest(t *testing.T) {
	r, _ := startResponder(t, func() protocol.InfoResult { return testSourceInfo() }, nil)
	assert.NoError(t, r.SelfTest(context.Background()))
}
