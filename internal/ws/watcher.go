package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gipsh/safe-approver-go/internal/types"
)

// OnEventFunc is called for each notification received.
type OnEventFunc func(types.Event)

// Watcher keeps a websocket subscription to an approver's event stream,
// reconnecting whenever it drops.
type Watcher struct {
	url            string
	onEvent        OnEventFunc
	reconnectDelay time.Duration
	lastSeq        uint64
}

// NewWatcher creates a Watcher for the ws:// or wss:// url.
func NewWatcher(url string, onEvent OnEventFunc) *Watcher {
	return &Watcher{url: url, onEvent: onEvent, reconnectDelay: reconnectDelay}
}

// Run listens until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		err := w.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[ws/watch] disconnected: %v; reconnecting in %s", err, w.reconnectDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.reconnectDelay):
		}
	}
}

func (w *Watcher) listen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	log.Printf("[ws/watch] connected to %s", w.url)

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
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev types.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			log.Printf("[ws/watch] bad event: %v", err)
			continue
		}
		if w.lastSeq != 0 && ev.Seq > w.lastSeq+1 {
			log.Printf("[ws/watch] missed events %d..%d", w.lastSeq+1, ev.Seq-1)
		}
		w.lastSeq = ev.Seq
		if w.onEvent != nil {
			w.onEvent(ev)
		}
	}
}
