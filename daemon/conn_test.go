package daemon_test

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g15tools/g15keys/daemon"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startFakeDaemon runs a loopback daemon that sends the given greeting,
// consumes the 4-byte screen tag and then hands the connection to handle.
func startFakeDaemon(t *testing.T, greeting string, handle func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				if _, err := c.Write([]byte(greeting)); err != nil {
					return
				}
				tag := make([]byte, 4)
				if _, err := io.ReadFull(c, tag); err != nil {
					return
				}
				if handle != nil {
					handle(c)
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func newConn(addr string) *daemon.Conn {
	cfg := &daemon.Config{Addr: addr, DialTimeout: 2 * time.Second, RetryInterval: 20 * time.Millisecond}
	return daemon.New(cfg, daemon.ScreenG15R, discardLogger(), nil)
}

func TestDialHandshake(t *testing.T) {
	tags := make(chan net.Conn, 1)
	addr := startFakeDaemon(t, daemon.Greeting, func(c net.Conn) {
		tags <- c
		// keep the connection open until the test ends
		buf := make([]byte, 1)
		_, _ = c.Read(buf)
	})

	c := newConn(addr)
	require.NoError(t, c.Dial(context.Background()))
	defer c.Close()

	select {
	case <-tags:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon never completed the handshake")
	}
}

func TestDialBadGreeting(t *testing.T) {
	addr := startFakeDaemon(t, "NOTG15 daemonBYE", nil)

	c := newConn(addr)
	err := c.Dial(context.Background())
	assert.ErrorIs(t, err, daemon.ErrBadGreeting)
}

func TestCmdEncoding(t *testing.T) {
	got := make(chan byte, 8)
	addr := startFakeDaemon(t, daemon.Greeting, func(c net.Conn) {
		buf := make([]byte, 1)
		for {
			if _, err := io.ReadFull(c, buf); err != nil {
				return
			}
			got <- buf[0]
		}
	})

	c := newConn(addr)
	require.NoError(t, c.Dial(context.Background()))
	defer c.Close()

	cases := []struct {
		op     daemon.Opcode
		val    uint8
		packet byte
	}{
		{daemon.OpMKeyLEDs, 2, 0x22},
		{daemon.OpKeyHandler, 0, 0x10},
		{daemon.OpContrast, 1, 0x41},
		{daemon.OpBacklight, 2, 0x82},
	}
	for _, tc := range cases {
		_, err := c.Cmd(tc.op, tc.val)
		require.NoError(t, err)
		select {
		case b := <-got:
			assert.Equal(t, tc.packet, b)
		case <-time.After(2 * time.Second):
			t.Fatalf("packet for opcode %#02x never arrived", byte(tc.op))
		}
	}
}

func TestCmdValueRange(t *testing.T) {
	c := newConn("127.0.0.1:1")
	_, err := c.Cmd(daemon.OpMKeyLEDs, 9)
	assert.Error(t, err)
	_, err = c.Cmd(daemon.OpContrast, 5)
	assert.Error(t, err)
}

func TestCmdQueryResponses(t *testing.T) {
	addr := startFakeDaemon(t, daemon.Greeting, func(c net.Conn) {
		buf := make([]byte, 1)
		for {
			if _, err := io.ReadFull(c, buf); err != nil {
				return
			}
			switch daemon.Opcode(buf[0]) {
			case daemon.OpGetKeystate:
				var resp [4]byte
				binary.LittleEndian.PutUint32(resp[:], 0x00240001)
				_, _ = c.Write(resp[:])
			case daemon.OpIsForeground:
				var resp [2]byte
				binary.LittleEndian.PutUint16(resp[:], 49) // '1'
				_, _ = c.Write(resp[:])
			case daemon.OpIsUserSelected:
				var resp [2]byte
				binary.LittleEndian.PutUint16(resp[:], 48) // '0'
				_, _ = c.Write(resp[:])
			}
		}
	})

	c := newConn(addr)
	require.NoError(t, c.Dial(context.Background()))
	defer c.Close()

	keys, err := c.Cmd(daemon.OpGetKeystate, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x00240001), keys)

	fg, err := c.Cmd(daemon.OpIsForeground, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), fg)

	sel, err := c.Cmd(daemon.OpIsUserSelected, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), sel)
}

func TestWaitKey(t *testing.T) {
	addr := startFakeDaemon(t, daemon.Greeting, func(c net.Conn) {
		var resp [4]byte
		binary.LittleEndian.PutUint32(resp[:], 1<<21)
		_, _ = c.Write(resp[:])
		// then drop the connection
	})

	c := newConn(addr)
	require.NoError(t, c.Dial(context.Background()))
	defer c.Close()

	keys, err := c.WaitKey()
	require.NoError(t, err)
	assert.Equal(t, uint32(1<<21), keys)

	_, err = c.WaitKey()
	assert.ErrorIs(t, err, daemon.ErrDisconnected)
}

func TestCloseUnblocksRead(t *testing.T) {
	addr := startFakeDaemon(t, daemon.Greeting, func(c net.Conn) {
		buf := make([]byte, 1)
		_, _ = c.Read(buf)
	})

	c := newConn(addr)
	require.NoError(t, c.Dial(context.Background()))

	errs := make(chan error, 1)
	go func() {
		_, err := c.WaitKey()
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond) // let WaitKey block
	require.NoError(t, c.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, daemon.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitKey did not unblock after Close")
	}
}

func TestConnectRetriesUntilDaemonAppears(t *testing.T) {
	// reserve an address, then free it so the first attempts fail
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	go func() {
		time.Sleep(60 * time.Millisecond)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte(daemon.Greeting))
		tag := make([]byte, 4)
		_, _ = io.ReadFull(conn, tag)
	}()

	c := newConn(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()
}

func TestConnectAbortsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := newConn(addr)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = c.Connect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
