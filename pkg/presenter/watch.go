package presenter

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// Watch subscribes to a Hub at url and calls fn for every event until ctx is
// done or the hub goes away.
func Watch(ctx context.Context, url, token string, fn func(Event)) error {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return fmt.Errorf("hub dial %s failed (status=%d): %w", url, status, err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("hub read: %w", err)
		}
		fn(ev)
	}
}
