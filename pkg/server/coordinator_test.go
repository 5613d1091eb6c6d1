package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/miniserver/pkg/lifecycle"
)

func TestCoordinatorDrivesServer(t *testing.T) {
	srv := New(Config{})
	coord := lifecycle.New(srv, lifecycle.WithSignals(), lifecycle.WithSignalEcho(nil))
	srv.SetHandler(NewRouter(RouterConfig{Lifecycle: coord, TestRoutes: true}))

	host, port := "127.0.0.1", 0
	require.NoError(t, coord.Start(context.Background(), lifecycle.BindOptions{Hostname: &host, Port: &port}))

	base := "http://" + coord.Addr().String()

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	assert.Equal(t, "running", body.Data.(map[string]any)["phase"])

	assert.Equal(t, "Hello, world!", get(t, http.DefaultClient, base+"/test/hello/world"))

	require.NoError(t, coord.Shutdown())
	assert.Equal(t, lifecycle.PhaseShutDown, coord.Phase())
	require.NoError(t, coord.AwaitCompletion(context.Background()))
	require.NoError(t, coord.Release())

	_, err = http.Get(base + "/health")
	assert.Error(t, err)
}

func TestCoordinatorUnixSocket(t *testing.T) {
	path := socketPath(t)
	srv := New(Config{})
	coord := lifecycle.New(srv, lifecycle.WithSignals(), lifecycle.WithSignalEcho(nil))
	srv.SetHandler(NewRouter(RouterConfig{Lifecycle: coord, TestRoutes: true}))

	require.NoError(t, coord.Start(context.Background(), lifecycle.BindOptions{UnixSocket: &path}))
	assert.Equal(t, "Hello, sock!", get(t, unixClient(path), "http://unix/test/hello/sock"))

	require.NoError(t, coord.Shutdown())
	require.NoError(t, coord.Release())
}
