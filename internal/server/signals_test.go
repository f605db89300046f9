package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalHandler_ShutdownOnContextDone(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(listener) }()

	var order []string
	handler := NewSignalHandler(srv, time.Second, testLogger())
	handler.OnShutdown(func() { order = append(order, "scheduler") })
	handler.OnShutdown(func() { order = append(order, "lock") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, handler.WaitForShutdown(ctx))
	assert.Equal(t, []string{"scheduler", "lock"}, order)

	select {
	case err := <-served:
		assert.True(t, errors.Is(err, http.ErrServerClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHandleSignals_ListenFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	// Address already in use
	srv := &http.Server{Addr: listener.Addr().String()}

	hookRan := false
	err = HandleSignals(srv, time.Second, testLogger(), func() { hookRan = true })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server failed to start")
	assert.True(t, hookRan)
}
