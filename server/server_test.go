package server

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-gameserver/packet"
)

type testEntity struct {
	pos packet.Vector3
}

func (e testEntity) Position() packet.Vector3    { return e.pos }
func (e testEntity) Rotation() packet.Quaternion { return packet.IdentityQuaternion }
func (e testEntity) Health() float32             { return 100 }

func entityAt(id int, _ string) Entity {
	return testEntity{pos: packet.Vector3{X: float32(id), Y: 25}}
}

func TestNew(t *testing.T) {
	t.Run("requires config", func(t *testing.T) {
		_, err := New(nil, Options{Handlers: noopHandlers()})
		assert.Error(t, err)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxPlayers = 0
		_, err := New(cfg, Options{Handlers: noopHandlers()})
		assert.ErrorContains(t, err, "max_players")
	})

	t.Run("allocates one slot per player", func(t *testing.T) {
		srv := newTestServer(t, testConfig(), Options{})
		assert.Equal(t, 4, srv.MaxPlayers())

		for id := 1; id <= 4; id++ {
			sess, ok := srv.Session(id)
			require.True(t, ok)
			assert.Equal(t, id, sess.ID())
			assert.False(t, sess.Connected())
		}

		_, ok := srv.Session(0)
		assert.False(t, ok)
		_, ok = srv.Session(5)
		assert.False(t, ok)
	})
}

func TestStart(t *testing.T) {
	t.Run("twice fails", func(t *testing.T) {
		srv := newTestServer(t, testConfig(), Options{})
		require.NoError(t, srv.Start())
		defer srv.Stop()

		assert.True(t, srv.Running())
		assert.Error(t, srv.Start())
	})

	t.Run("port in use fails", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer ln.Close()

		cfg := testConfig()
		cfg.Port = ln.Addr().(*net.TCPAddr).Port

		srv := newTestServer(t, cfg, Options{})
		assert.ErrorContains(t, srv.Start(), "failed to listen on tcp")
		assert.False(t, srv.Running())
	})

	t.Run("run after stop returns immediately", func(t *testing.T) {
		srv := newTestServer(t, testConfig(), Options{})
		srv.Stop()
		assert.NoError(t, srv.Run(context.Background()))
	})
}

func TestHandshake_SpawnsPlayers(t *testing.T) {
	destroyed := make(chan int, 4)
	srv := newTestServer(t, testConfig(), Options{
		NewEntity:     entityAt,
		DestroyEntity: func(id int, _ Entity) { destroyed <- id },
	})
	startServer(t, srv)

	alice := dial(t, srv)
	require.Equal(t, 1, alice.welcome())
	alice.join(1, "alice")

	id, name, pos, rot := readSpawn(t, alice.expect(packet.SpawnPlayer))
	assert.Equal(t, 1, id)
	assert.Equal(t, "alice", name)
	assert.Equal(t, packet.Vector3{X: 1, Y: 25}, pos)
	assert.Equal(t, packet.IdentityQuaternion, rot)

	bob := dial(t, srv)
	require.Equal(t, 2, bob.welcome())
	bob.join(2, "bob")

	// Bob first sees everyone already in game, then himself.
	id, name, _, _ = readSpawn(t, bob.expect(packet.SpawnPlayer))
	assert.Equal(t, 1, id)
	assert.Equal(t, "alice", name)
	id, name, pos, _ = readSpawn(t, bob.expect(packet.SpawnPlayer))
	assert.Equal(t, 2, id)
	assert.Equal(t, "bob", name)
	assert.Equal(t, packet.Vector3{X: 2, Y: 25}, pos)

	id, name, _, _ = readSpawn(t, alice.expect(packet.SpawnPlayer))
	assert.Equal(t, 2, id)
	assert.Equal(t, "bob", name)

	require.NoError(t, bob.conn.Close())

	gone, err := alice.expect(packet.PlayerDisconnected).ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(2), gone)

	select {
	case id := <-destroyed:
		assert.Equal(t, 2, id)
	case <-time.After(waitFor):
		t.Fatal("entity was not destroyed")
	}
}

func TestHandshake_WrongIDAndRepeat(t *testing.T) {
	srv := newTestServer(t, testConfig(), Options{NewEntity: entityAt})
	startServer(t, srv)

	c := dial(t, srv)
	require.Equal(t, 1, c.welcome())

	// A mismatched echo is logged but the sender's own slot enters the game.
	c.join(3, "eve")
	id, name, _, _ := readSpawn(t, c.expect(packet.SpawnPlayer))
	assert.Equal(t, 1, id)
	assert.Equal(t, "eve", name)

	c.join(1, "eve")
	c.expectSilence(100 * time.Millisecond)
}

func TestStream_FragmentedAndCoalescedFrames(t *testing.T) {
	received := make(chan int32, 8)
	handlers := noopHandlers()
	handlers[packet.PlayerMovement] = func(from int, p *packet.Packet) error {
		v, err := p.ReadInt32()
		if err != nil {
			return err
		}
		received <- v
		return nil
	}

	srv := newTestServer(t, testConfig(), Options{Handlers: handlers})
	startServer(t, srv)

	c := dial(t, srv)
	c.welcome()

	movement := func(v int32) []byte {
		p := packet.NewWithType(int32(packet.PlayerMovement))
		p.WriteInt32(v)
		p.InsertLength()
		return p.Bytes()
	}

	for _, b := range movement(1) {
		_, err := c.conn.Write([]byte{b})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	_, err := c.conn.Write(append(movement(2), movement(3)...))
	require.NoError(t, err)

	for _, want := range []int32{1, 2, 3} {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-time.After(waitFor):
			t.Fatalf("frame %d not dispatched", want)
		}
	}
}

func TestStream_SlotExhaustionAndReuse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPlayers = 2
	srv := newTestServer(t, cfg, Options{})
	startServer(t, srv)

	a := dial(t, srv)
	require.Equal(t, 1, a.welcome())
	b := dial(t, srv)
	require.Equal(t, 2, b.welcome())

	rejected := dial(t, srv)
	rejected.expectClosed()

	require.NoError(t, a.conn.Close())
	gone, err := b.expect(packet.PlayerDisconnected).ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(1), gone)

	d := dial(t, srv)
	assert.Equal(t, 1, d.welcome())

	first, _ := srv.Session(1)
	assert.True(t, first.Connected())
}

func TestStream_CorruptLengthDisconnects(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFrameSize = 16

	tests := []struct {
		name   string
		length int32
	}{
		{"negative", -1},
		{"zero", 0},
		{"over limit", 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, cfg, Options{})
			startServer(t, srv)

			c := dial(t, srv)
			require.Equal(t, 1, c.welcome())

			p := packet.New()
			p.WriteInt32(tt.length)
			_, err := c.conn.Write(p.Bytes())
			require.NoError(t, err)

			c.expectClosed()

			sess, _ := srv.Session(1)
			assert.Eventually(t, func() bool { return !sess.Connected() }, waitFor, 5*time.Millisecond)
		})
	}
}

func TestDisconnect_IsIdempotent(t *testing.T) {
	destroyed := make(chan int, 4)
	srv := newTestServer(t, testConfig(), Options{
		DestroyEntity: func(id int, _ Entity) { destroyed <- id },
	})
	startServer(t, srv)

	c := dial(t, srv)
	require.Equal(t, 1, c.welcome())
	c.join(1, "alice")
	c.expect(packet.SpawnPlayer)

	sess, _ := srv.Session(1)
	gen := sess.Generation()
	require.NotZero(t, gen)

	srv.Defer(func() {
		srv.disconnect(1, gen+1, ReasonKicked)
		srv.disconnect(1, gen, ReasonKicked)
		srv.disconnect(1, gen, ReasonKicked)
		srv.disconnect(1, 0, ReasonKicked)
	})

	c.expectClosed()
	select {
	case id := <-destroyed:
		assert.Equal(t, 1, id)
	case <-time.After(waitFor):
		t.Fatal("entity was not destroyed")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, destroyed)
	assert.False(t, sess.Connected())
}

func TestDisconnect_Kick(t *testing.T) {
	srv := newTestServer(t, testConfig(), Options{})
	startServer(t, srv)

	a := dial(t, srv)
	require.Equal(t, 1, a.welcome())
	b := dial(t, srv)
	require.Equal(t, 2, b.welcome())

	srv.Disconnect(1)

	a.expectClosed()
	gone, err := b.expect(packet.PlayerDisconnected).ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(1), gone)
}

func TestDisconnect_KickDoesNotReachNextOccupant(t *testing.T) {
	srv := newTestServer(t, testConfig(), Options{})
	startServer(t, srv)

	a := dial(t, srv)
	require.Equal(t, 1, a.welcome())

	// Hold the tick goroutine so the order of queued actions is fixed.
	hold, held := make(chan struct{}), make(chan struct{})
	srv.Defer(func() {
		close(held)
		<-hold
	})
	<-held

	require.NoError(t, a.conn.Close())
	require.Eventually(t, func() bool { return srv.queue.Len() == 1 }, waitFor, 5*time.Millisecond)

	nextJoined := make(chan struct{})
	srv.Defer(func() { <-nextJoined })
	srv.Disconnect(1)

	close(hold)
	sess, _ := srv.Session(1)
	require.Eventually(t, func() bool { return !sess.Connected() }, waitFor, 5*time.Millisecond)

	b := dial(t, srv)
	require.Equal(t, 1, b.welcome())
	close(nextJoined)

	b.expectSilence(100 * time.Millisecond)
	assert.True(t, sess.Connected())
}

func TestDisconnect_KickFreeSlot(t *testing.T) {
	srv := newTestServer(t, testConfig(), Options{})

	srv.Disconnect(1)
	srv.Disconnect(0)
	srv.Disconnect(99)
	assert.Zero(t, srv.queue.Len())
}

func TestIdleTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond
	srv := newTestServer(t, cfg, Options{})
	startServer(t, srv)

	c := dial(t, srv)
	require.Equal(t, 1, c.welcome())

	c.expectClosed()
}

func TestSessions(t *testing.T) {
	srv := newTestServer(t, testConfig(), Options{NewEntity: entityAt})
	startServer(t, srv)

	a := dial(t, srv)
	require.Equal(t, 1, a.welcome())
	a.join(1, "alice")
	a.expect(packet.SpawnPlayer)

	b := dial(t, srv)
	require.Equal(t, 2, b.welcome())

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	infos, err := srv.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	assert.Equal(t, 1, infos[0].ID)
	assert.Equal(t, "alice", infos[0].Username)
	assert.True(t, infos[0].InGame)
	require.NotNil(t, infos[0].Position)
	assert.Equal(t, float32(1), infos[0].Position.X)
	assert.Equal(t, a.conn.LocalAddr().String(), infos[0].Remote)

	assert.Equal(t, 2, infos[1].ID)
	assert.False(t, infos[1].InGame)
	assert.Nil(t, infos[1].Position)
	assert.True(t, strings.HasPrefix(infos[1].Remote, "127.0.0.1:"))
}

func TestSessions_ContextEnds(t *testing.T) {
	srv := newTestServer(t, testConfig(), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := srv.Sessions(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
