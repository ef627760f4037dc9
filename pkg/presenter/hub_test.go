package presenter

import (
	"bytes"
	"context"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vncconn/pkg/auth"
)

type calls struct {
	mu   sync.Mutex
	seen []string
}

func (c *calls) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, s)
}

func (c *calls) ShowMessage(text string) { c.add("message:" + text) }
func (c *calls) ShowConnectionErrorDialog(text string) { c.add("error:" + text) }
func (c *calls) ClearMessage() { c.add("clear") }
func (c *calls) ConnectionFailed() { c.add("failed") }
func (c *calls) SuccessfulConnection(conn net.Conn) {
	c.add("connected")
	_ = conn.Close()
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHubRejectsMissingToken(t *testing.T) {
	hub := NewHub(nil, auth.NewSigner("k"))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	err = Watch(context.Background(), wsURL(srv), "bogus", func(Event) {})
	assert.Error(t, err)
	assert.Zero(t, hub.Subscribers())
}

func TestHubBroadcastsToSubscribers(t *testing.T) {
	signer := auth.NewSigner("k")
	next := &calls{}
	hub := NewHub(next, signer)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	tok, err := signer.Generate("test", time.Minute)
	require.NoError(t, err)

	events := make(chan Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, wsURL(srv), tok, func(ev Event) { events <- ev })
	}()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	hub.ShowMessage("Connecting to host h:5900")
	hub.ShowConnectionErrorDialog("Unknown host: 'h'")
	hub.ClearMessage()
	hub.ConnectionFailed()

	var got []Event
	for len(got) < 4 {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d events", len(got))
		}
	}
	assert.Equal(t, EventMessage, got[0].Type)
	assert.Equal(t, "Connecting to host h:5900", got[0].Text)
	assert.Equal(t, EventError, got[1].Type)
	assert.Equal(t, EventClear, got[2].Type)
	assert.Equal(t, EventFailed, got[3].Type)
	assert.False(t, got[0].Time.IsZero())

	assert.Equal(t, []string{"message:Connecting to host h:5900", "error:Unknown host: 'h'", "clear", "failed"}, next.seen)

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestHubReplaysLatestEvent(t *testing.T) {
	signer := auth.NewSigner("k")
	hub := NewHub(nil, signer)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	hub.ShowMessage("old")
	hub.ShowMessage("Trying to connect to h:1")

	tok, err := signer.Generate("late", time.Minute)
	require.NoError(t, err)
	c, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"/?token="+tok, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev Event
	require.NoError(t, c.ReadJSON(&ev))
	assert.Equal(t, "Trying to connect to h:1", ev.Text)
}

func TestHubSuccessfulConnectionHandsOff(t *testing.T) {
	next := &calls{}
	hub := NewHub(next, nil)
	client, server := net.Pipe()
	defer server.Close()

	hub.SuccessfulConnection(client)
	assert.Equal(t, []string{"connected"}, next.seen)

	orphan, peer := net.Pipe()
	defer peer.Close()
	NewHub(nil, nil).SuccessfulConnection(orphan)
	_, err := peer.Write([]byte("x"))
	assert.Error(t, err)
}

func TestLogPresenter(t *testing.T) {
	var buf bytes.Buffer
	var handed net.Conn
	failed := 0
	l := &Log{
		Logger:      log.New(&buf, "", 0),
		OnConnected: func(c net.Conn) { handed = c },
		OnFailed:    func() { failed++ },
	}
	l.ShowMessage("Connecting to host h:1")
	l.ShowConnectionErrorDialog("Couldn't connect to 'h:1':\nconnection refused")
	l.ConnectionFailed()

	out := buf.String()
	assert.Contains(t, out, "status: Connecting to host h:1\n")
	assert.Contains(t, out, "error: Couldn't connect to 'h:1': connection refused\n")
	assert.Equal(t, 1, failed)

	c, s := net.Pipe()
	defer s.Close()
	defer c.Close()
	l.SuccessfulConnection(c)
	assert.Same(t, c, handed)
}
