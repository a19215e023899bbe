package server

import (
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-gameserver/metrics"
	"github.com/cyberinferno/go-gameserver/packet"
)

func TestEncode_Welcome(t *testing.T) {
	data := encode(packet.Welcome, func(p *packet.Packet) {
		p.WriteString("hi")
		p.WriteInt32(1)
	})

	assert.Equal(t, []byte{
		14, 0, 0, 0,
		1, 0, 0, 0,
		2, 0, 0, 0, 'h', 'i',
		1, 0, 0, 0,
	}, data)
}

func TestBroadcast_StreamOrderAndExclusion(t *testing.T) {
	srv := newTestServer(t, testConfig(), Options{})
	startServer(t, srv)

	clients := make([]*testClient, 3)
	for i := range clients {
		clients[i] = dial(t, srv)
		require.Equal(t, i+1, clients[i].welcome())
	}

	srv.PlayerHealth(2, 50)
	srv.PlayerRespawned(2)

	for _, c := range clients {
		p := c.expect(packet.PlayerHealth)
		id, err := p.ReadInt32()
		require.NoError(t, err)
		health, err := p.ReadFloat32()
		require.NoError(t, err)
		assert.Equal(t, int32(2), id)
		assert.Equal(t, float32(50), health)

		id, err = c.expect(packet.PlayerRespawned).ReadInt32()
		require.NoError(t, err)
		assert.Equal(t, int32(2), id)
	}

	data := encode(packet.PlayerDisconnected, func(p *packet.Packet) { p.WriteInt32(9) })
	srv.broadcastStream(data, 2)

	clients[0].expect(packet.PlayerDisconnected)
	clients[2].expect(packet.PlayerDisconnected)
	clients[1].expectSilence(50 * time.Millisecond)
}

func TestSend_FreeSlotIsNoop(t *testing.T) {
	srv := newTestServer(t, testConfig(), Options{})

	assert.NotPanics(t, func() {
		srv.Welcome(1, "nobody")
		srv.SpawnPlayer(2, 1, "x", packet.Vector3{}, packet.IdentityQuaternion)
		srv.PlayerPosition(1, packet.Vector3{})
		srv.PlayerDisconnected(1)
		srv.Welcome(0, "out of range")
	})
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestBroadcast_StalledRecipient(t *testing.T) {
	cfg := testConfig()
	cfg.OutboxSize = 4

	reg := prometheus.NewRegistry()
	srv := newTestServer(t, cfg, Options{Metrics: metrics.New(reg, 0)})
	startServer(t, srv)

	reader := dial(t, srv)
	require.Equal(t, 1, reader.welcome())

	// A peer that never reads: once the socket buffers fill, its writer
	// blocks and its outbox overflows.
	stalled, err := net.DialTCP("tcp", nil, srv.StreamAddr().(*net.TCPAddr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = stalled.Close() })
	require.NoError(t, stalled.SetReadBuffer(1024))

	slow, _ := srv.Session(2)
	require.Eventually(t, slow.Connected, waitFor, 5*time.Millisecond)

	padding := make([]byte, 4096)
	const rounds = 200
	for i := 0; i < rounds; i++ {
		srv.broadcastStream(encode(packet.PlayerHealth, func(p *packet.Packet) {
			p.WriteInt32(int32(i))
			p.WriteFloat32(100)
			p.WriteBytes(padding)
		}), 0)

		id, err := reader.expect(packet.PlayerHealth).ReadInt32()
		require.NoError(t, err)
		require.Equal(t, int32(i), id)
	}

	assert.Greater(t, counterValue(t, reg, "gameserver_sends_dropped_total"), float64(0))
	assert.Zero(t, counterValue(t, reg, "gameserver_disconnects_total"))
	assert.True(t, slow.Connected())

	fast, _ := srv.Session(1)
	assert.True(t, fast.Connected())
}
