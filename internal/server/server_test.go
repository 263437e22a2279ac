package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/rserved/internal/eval"
	"github.com/marmos91/rserved/internal/wire/qap1"
)

func startServer(t *testing.T) (*Server, context.CancelFunc) {
	t.Helper()
	cfg := Config{
		BindAddress:     "127.0.0.1",
		Port:            0,
		Workdir:         t.TempDir(),
		ShutdownTimeout: time.Second,
		LocalOnly:       true,
	}
	srv, err := New(cfg, eval.New(), nil, nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Fatal("server did not shut down in time")
		}
	})
	return srv, cancel
}

func TestAcceptAndBannerOverRealSocket(t *testing.T) {
	srv, _ := startServer(t)
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, qap1.BannerSize)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "Rsrv0100QAP1", string(buf[:12]))
}

func TestActiveConnectionsTracked(t *testing.T) {
	srv, _ := startServer(t)
	addr := srv.Addr()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, qap1.BannerSize)
	_, err = conn.Read(buf)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return srv.ActiveConnections() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestGracefulShutdownClosesListener(t *testing.T) {
	cfg := Config{BindAddress: "127.0.0.1", Port: 0, Workdir: t.TempDir(), ShutdownTimeout: time.Second}
	srv, err := New(cfg, eval.New(), nil, nil, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()
	addr := srv.Addr()
	require.NotEmpty(t, addr)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after shutdown")
	}

	_, dialErr := net.Dial("tcp", addr)
	assert.Error(t, dialErr, "listener should be closed after shutdown")
}
