package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-gameserver/config"
	"github.com/cyberinferno/go-gameserver/packet"
)

const waitFor = 2 * time.Second

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.MaxPlayers = 4
	cfg.TickInterval = 5 * time.Millisecond
	cfg.IdleTimeout = 0
	return cfg
}

func noopHandlers() map[packet.ClientPacket]Handler {
	return map[packet.ClientPacket]Handler{
		packet.PlayerMovement: func(int, *packet.Packet) error { return nil },
		packet.PlayerShoot:    func(int, *packet.Packet) error { return nil },
	}
}

func newTestServer(t *testing.T, cfg *config.Config, opts Options) *Server {
	t.Helper()

	if opts.Handlers == nil {
		opts.Handlers = noopHandlers()
	}

	srv, err := New(cfg, opts)
	require.NoError(t, err)
	return srv
}

// startServer binds srv and runs it until the test ends.
func startServer(t *testing.T, srv *Server) {
	t.Helper()

	require.NoError(t, srv.Start())

	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background()) }()

	t.Cleanup(func() {
		srv.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("server did not stop")
		}
	})
}

type testClient struct {
	t      *testing.T
	conn   net.Conn
	frames chan []byte
	udp    *net.UDPConn
}

func dial(t *testing.T, srv *Server) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", srv.StreamAddr().String())
	require.NoError(t, err)

	c := &testClient{t: t, conn: conn, frames: make(chan []byte, 64)}
	go c.read()

	t.Cleanup(func() {
		_ = conn.Close()
		if c.udp != nil {
			_ = c.udp.Close()
		}
	})

	return c
}

func (c *testClient) read() {
	defer close(c.frames)

	framer := packet.NewFramer(0)
	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return
		}

		frames, err := framer.Feed(buf[:n])
		if err != nil {
			return
		}

		for _, f := range frames {
			c.frames <- f
		}
	}
}

func (c *testClient) expect(kind packet.ServerPacket) *packet.Packet {
	c.t.Helper()

	select {
	case f, ok := <-c.frames:
		require.True(c.t, ok, "connection closed while waiting for %s", kind)

		p := packet.FromBytes(f)
		typ, err := p.ReadInt32()
		require.NoError(c.t, err)
		require.Equal(c.t, kind, packet.ServerPacket(typ))
		return p
	case <-time.After(waitFor):
		c.t.Fatalf("timed out waiting for %s", kind)
		return nil
	}
}

func (c *testClient) expectClosed() {
	c.t.Helper()

	deadline := time.After(waitFor)
	for {
		select {
		case _, ok := <-c.frames:
			if !ok {
				return
			}
		case <-deadline:
			c.t.Fatal("connection was not closed by the server")
		}
	}
}

func (c *testClient) expectSilence(d time.Duration) {
	c.t.Helper()

	select {
	case f, ok := <-c.frames:
		if ok {
			c.t.Fatalf("unexpected frame % x", f)
		}
	case <-time.After(d):
	}
}

// welcome reads the Welcome packet and returns the assigned slot id.
func (c *testClient) welcome() int {
	c.t.Helper()

	p := c.expect(packet.Welcome)
	msg, err := p.ReadString()
	require.NoError(c.t, err)
	require.Equal(c.t, "Welcome to the server!", msg)

	id, err := p.ReadInt32()
	require.NoError(c.t, err)
	return int(id)
}

func (c *testClient) send(kind packet.ClientPacket, write func(p *packet.Packet)) {
	c.t.Helper()

	p := packet.NewWithType(int32(kind))
	write(p)
	p.InsertLength()

	_, err := c.conn.Write(p.Bytes())
	require.NoError(c.t, err)
}

func (c *testClient) join(id int, username string) {
	c.send(packet.WelcomeReceived, func(p *packet.Packet) {
		p.WriteInt32(int32(id))
		p.WriteString(username)
	})
}

// bindDatagram opens a UDP socket and performs the id-only handshake.
func (c *testClient) bindDatagram(srv *Server, id int) {
	c.t.Helper()

	udp, err := net.DialUDP("udp", nil, srv.DatagramAddr().(*net.UDPAddr))
	require.NoError(c.t, err)
	c.udp = udp

	p := packet.New()
	p.WriteInt32(int32(id))
	_, err = udp.Write(p.Bytes())
	require.NoError(c.t, err)

	sess, _ := srv.Session(id)
	require.Eventually(c.t, func() bool { return sess.Endpoint().IsValid() }, waitFor, 5*time.Millisecond)
}

func (c *testClient) sendDatagram(id int, kind packet.ClientPacket, write func(p *packet.Packet)) {
	c.t.Helper()

	p := packet.NewWithType(int32(kind))
	write(p)
	p.InsertLength()

	out := packet.New()
	out.WriteInt32(int32(id))
	out.WriteBytes(p.Bytes())

	_, err := c.udp.Write(out.Bytes())
	require.NoError(c.t, err)
}

func (c *testClient) expectDatagram(kind packet.ServerPacket) *packet.Packet {
	c.t.Helper()

	require.NoError(c.t, c.udp.SetReadDeadline(time.Now().Add(waitFor)))
	buf := make([]byte, 4096)
	n, err := c.udp.Read(buf)
	require.NoError(c.t, err)

	body, err := packet.Frame(packet.FromBytes(buf[:n]))
	require.NoError(c.t, err)

	p := packet.FromBytes(body)
	typ, err := p.ReadInt32()
	require.NoError(c.t, err)
	require.Equal(c.t, kind, packet.ServerPacket(typ))
	return p
}

func readSpawn(t *testing.T, p *packet.Packet) (int, string, packet.Vector3, packet.Quaternion) {
	t.Helper()

	id, err := p.ReadInt32()
	require.NoError(t, err)
	username, err := p.ReadString()
	require.NoError(t, err)
	pos, err := p.ReadVector3()
	require.NoError(t, err)
	rot, err := p.ReadQuaternion()
	require.NoError(t, err)

	return int(id), username, pos, rot
}
