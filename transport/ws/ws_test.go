package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hostOrigin  = "https://host.example.com"
	frameOrigin = "https://frame.example.com"
)

// wsServer upgrades a single connection and hands it to the test.
func wsServer(t *testing.T, allowed func(string) bool, conns chan<- *Conn) *httptest.Server {
	t.Helper()
	upgrader := Upgrader(allowed)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- NewConn(raw, origin, nil)
	}))
}

func TestConn_RoundTrip(t *testing.T) {
	serverConns := make(chan *Conn, 1)
	srv := wsServer(t, func(string) bool { return true }, serverConns)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(context.Background(), url, frameOrigin, hostOrigin, nil)
	require.NoError(t, err)
	defer client.Close()

	server := <-serverConns
	defer server.Close()

	received := make(chan string, 1)
	origins := make(chan string, 1)
	server.SetListener(func(data []byte, origin string) {
		received <- string(data)
		origins <- origin
	})

	require.NoError(t, client.Send([]byte("hello"), "*"))

	select {
	case got := <-received:
		assert.Equal(t, "hello", got)
		assert.Equal(t, frameOrigin, <-origins,
			"server attributes deliveries to the handshake origin")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestConn_TargetOriginFilter(t *testing.T) {
	serverConns := make(chan *Conn, 1)
	srv := wsServer(t, func(string) bool { return true }, serverConns)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(context.Background(), url, frameOrigin, hostOrigin, nil)
	require.NoError(t, err)
	defer client.Close()

	server := <-serverConns
	defer server.Close()

	received := make(chan string, 1)
	server.SetListener(func(data []byte, _ string) { received <- string(data) })

	// Mismatched filter: silently discarded
	require.NoError(t, client.Send([]byte("dropped"), "https://elsewhere.example.com"))
	// Matching filter: delivered
	require.NoError(t, client.Send([]byte("kept"), hostOrigin))

	select {
	case got := <-received:
		assert.Equal(t, "kept", got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestUpgrader_RejectsDisallowedOrigin(t *testing.T) {
	serverConns := make(chan *Conn, 1)
	srv := wsServer(t, func(origin string) bool { return origin == frameOrigin }, serverConns)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, err := Dial(context.Background(), url, "https://evil.com", hostOrigin, nil)
	require.Error(t, err, "handshake from a disallowed origin must fail")

	client, err := Dial(context.Background(), url, frameOrigin, hostOrigin, nil)
	require.NoError(t, err)
	client.Close()
}

func TestConn_SendAfterClose(t *testing.T) {
	serverConns := make(chan *Conn, 1)
	srv := wsServer(t, func(string) bool { return true }, serverConns)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := Dial(context.Background(), url, frameOrigin, hostOrigin, nil)
	require.NoError(t, err)

	(<-serverConns).Close()

	require.NoError(t, client.Close())
	assert.False(t, client.Connected())
	assert.Error(t, client.Send([]byte("x"), "*"))
}
