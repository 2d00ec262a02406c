package observability

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointServesMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.RingBuffer.RecordOverrun("test-ring", 12)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	endpoint, err := NewEndpoint(listener.Addr().String(), m)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- endpoint.Serve(ctx, listener) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `fragring_buffer_overruns_total{buffer="test-ring"} 1`)

	cancel()
	require.NoError(t, <-done)
}

func TestNewEndpointRequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := NewEndpoint("", nil)
	require.Error(t, err)
}
