package server

import (
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-gameserver/metrics"
	"github.com/cyberinferno/go-gameserver/packet"
)

func datagram(id int32, body []byte) []byte {
	p := packet.New()
	p.WriteInt32(id)
	p.WriteBytes(body)
	return p.Bytes()
}

func movementFrame(v int32) []byte {
	p := packet.NewWithType(int32(packet.PlayerMovement))
	p.WriteInt32(v)
	p.InsertLength()
	return p.Bytes()
}

func TestHandleDatagram(t *testing.T) {
	received := make(chan int32, 4)
	handlers := noopHandlers()
	handlers[packet.PlayerMovement] = func(from int, p *packet.Packet) error {
		v, err := p.ReadInt32()
		if err != nil {
			return err
		}
		received <- v
		return nil
	}

	reg := prometheus.NewRegistry()
	srv := newTestServer(t, testConfig(), Options{
		Handlers: handlers,
		Metrics:  metrics.New(reg, 0),
	})
	startServer(t, srv)

	c := dial(t, srv)
	require.Equal(t, 1, c.welcome())

	owner := netip.MustParseAddrPort("127.0.0.1:40001")
	spoofer := netip.MustParseAddrPort("127.0.0.1:40002")
	mapped := netip.AddrPortFrom(netip.AddrFrom16(owner.Addr().As16()), owner.Port())

	assert.Equal(t, metrics.DropShort, srv.handleDatagram([]byte{1, 0, 0}, owner))
	assert.Equal(t, metrics.DropUnknown, srv.handleDatagram(datagram(0, nil), owner))
	assert.Equal(t, metrics.DropUnknown, srv.handleDatagram(datagram(99, nil), owner))
	assert.Equal(t, metrics.DropNoConn, srv.handleDatagram(datagram(2, nil), owner))

	// The first datagram binds the endpoint and carries nothing else.
	assert.Empty(t, srv.handleDatagram(datagram(1, movementFrame(7)), owner))
	sess, _ := srv.Session(1)
	assert.Equal(t, owner, sess.Endpoint())

	assert.Equal(t, metrics.DropSpoofed, srv.handleDatagram(datagram(1, movementFrame(8)), spoofer))
	assert.Equal(t, owner, sess.Endpoint())

	truncated := movementFrame(9)[:6]
	assert.Equal(t, metrics.DropMalformed, srv.handleDatagram(datagram(1, truncated), owner))

	assert.Empty(t, srv.handleDatagram(datagram(1, movementFrame(10)), owner))
	assert.Empty(t, srv.handleDatagram(datagram(1, movementFrame(11)), mapped))
	assert.Empty(t, srv.handleDatagram(datagram(1, nil), owner))

	for _, want := range []int32{10, 11} {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-time.After(waitFor):
			t.Fatalf("datagram frame %d not dispatched", want)
		}
	}

	const want = `
# HELP gameserver_datagrams_dropped_total Datagrams discarded before dispatch by reason
# TYPE gameserver_datagrams_dropped_total counter
gameserver_datagrams_dropped_total{reason="endpoint_mismatch"} 1
gameserver_datagrams_dropped_total{reason="malformed"} 1
gameserver_datagrams_dropped_total{reason="no_connection"} 1
gameserver_datagrams_dropped_total{reason="short"} 1
gameserver_datagrams_dropped_total{reason="unknown_id"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(want), "gameserver_datagrams_dropped_total"))
}

func TestDatagram_EndpointResetOnReconnect(t *testing.T) {
	srv := newTestServer(t, testConfig(), Options{})
	startServer(t, srv)

	first := netip.MustParseAddrPort("127.0.0.1:40001")
	second := netip.MustParseAddrPort("127.0.0.1:40002")

	a := dial(t, srv)
	require.Equal(t, 1, a.welcome())
	require.Empty(t, srv.handleDatagram(datagram(1, nil), first))

	require.NoError(t, a.conn.Close())
	sess, _ := srv.Session(1)
	require.Eventually(t, func() bool { return !sess.Connected() }, waitFor, 5*time.Millisecond)
	assert.False(t, sess.Endpoint().IsValid())

	assert.Equal(t, metrics.DropNoConn, srv.handleDatagram(datagram(1, nil), first))

	b := dial(t, srv)
	require.Equal(t, 1, b.welcome())
	assert.Empty(t, srv.handleDatagram(datagram(1, nil), second))
	assert.Equal(t, second, sess.Endpoint())
}

func TestDatagram_Loopback(t *testing.T) {
	received := make(chan int, 4)
	handlers := noopHandlers()
	handlers[packet.PlayerShoot] = func(from int, p *packet.Packet) error {
		if _, err := p.ReadVector3(); err != nil {
			return err
		}
		received <- from
		return nil
	}

	srv := newTestServer(t, testConfig(), Options{Handlers: handlers})
	startServer(t, srv)

	a := dial(t, srv)
	require.Equal(t, 1, a.welcome())
	a.bindDatagram(srv, 1)

	b := dial(t, srv)
	require.Equal(t, 2, b.welcome())
	b.bindDatagram(srv, 2)

	t.Run("inbound frame is dispatched", func(t *testing.T) {
		b.sendDatagram(2, packet.PlayerShoot, func(p *packet.Packet) {
			p.WriteVector3(packet.Vector3{Z: 1})
		})

		select {
		case from := <-received:
			assert.Equal(t, 2, from)
		case <-time.After(waitFor):
			t.Fatal("datagram frame not dispatched")
		}
	})

	t.Run("position reaches everyone", func(t *testing.T) {
		srv.PlayerPosition(1, packet.Vector3{X: 1, Y: 2, Z: 3})

		for _, c := range []*testClient{a, b} {
			p := c.expectDatagram(packet.PlayerPosition)
			id, err := p.ReadInt32()
			require.NoError(t, err)
			pos, err := p.ReadVector3()
			require.NoError(t, err)

			assert.Equal(t, int32(1), id)
			assert.Equal(t, packet.Vector3{X: 1, Y: 2, Z: 3}, pos)
		}
	})

	t.Run("rotation skips its owner", func(t *testing.T) {
		rot := packet.Quaternion{Y: 0.7071, W: 0.7071}
		srv.PlayerRotation(1, rot)

		p := b.expectDatagram(packet.PlayerRotation)
		id, err := p.ReadInt32()
		require.NoError(t, err)
		got, err := p.ReadQuaternion()
		require.NoError(t, err)
		assert.Equal(t, int32(1), id)
		assert.Equal(t, rot, got)

		require.NoError(t, a.udp.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
		_, err = a.udp.Read(make([]byte, 64))
		assert.Error(t, err)
	})
}

func TestDatagram_LargeFrame(t *testing.T) {
	received := make(chan int, 1)
	handlers := noopHandlers()
	handlers[packet.PlayerMovement] = func(from int, p *packet.Packet) error {
		received <- p.UnreadLen()
		return nil
	}

	cfg := testConfig()
	require.Greater(t, 5000, cfg.BufferSize)

	srv := newTestServer(t, cfg, Options{Handlers: handlers})
	startServer(t, srv)

	c := dial(t, srv)
	require.Equal(t, 1, c.welcome())
	c.bindDatagram(srv, 1)

	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i)
	}
	c.sendDatagram(1, packet.PlayerMovement, func(p *packet.Packet) {
		p.WriteBytes(payload)
	})

	select {
	case n := <-received:
		assert.Equal(t, len(payload), n)
	case <-time.After(waitFor):
		t.Fatal("large datagram frame not dispatched")
	}
}

func TestDatagramSize(t *testing.T) {
	tests := []struct {
		name         string
		maxFrameSize int
		bufferSize   int
		want         int
	}{
		{"frame plus id and length", 5000, 4096, 5008},
		{"capped at the udp limit", 1 << 20, 4096, maxDatagramSize},
		{"never below the buffer size", 16, 4096, 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxFrameSize = tt.maxFrameSize
			cfg.BufferSize = tt.bufferSize

			srv := newTestServer(t, cfg, Options{})
			assert.Equal(t, tt.want, srv.datagramSize())
		})
	}
}
