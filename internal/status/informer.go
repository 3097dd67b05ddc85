package status

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ytget/musicdl/internal/model"
)

// snapshotCommand asks the server to re-send the status of every task it
// currently tracks.
const snapshotCommand = "all"

// dialTimeout bounds the websocket handshake so an unreachable server cannot
// leave the informer connecting forever.
const dialTimeout = 15 * time.Second

// Listener receives one decoded task status per inbound frame, in wire order.
type Listener func(model.TaskStatus)

// Session is the part of the HTTP client the informer needs: a bearer token
// and the socket endpoint.
type Session interface {
	Token(ctx context.Context) (string, error)
	SocketURL() string
}

// Informer holds the single persistent subscription to the server's status
// push channel. The connection attempt starts at construction. Once the
// informer terminates, for whatever reason, it stays dead; collaborators
// check Running and build a fresh instance instead of reusing a stale one.
type Informer struct {
	session Session

	// mu guards exactly the pair (conn, requestOnOpen). The open transition
	// flushes the deferred snapshot request and publishes the connection
	// under this one lock, so a RequestAll racing the handshake can neither
	// lose its request nor send it twice.
	mu            sync.Mutex
	conn          *websocket.Conn
	requestOnOpen bool

	listenersMu sync.Mutex
	listeners   []Listener

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates the informer and immediately starts connecting in the
// background. Listeners registered here are invoked in order for every
// decoded status frame.
func New(session Session, listeners ...Listener) *Informer {
	ctx, cancel := context.WithCancel(context.Background())
	inf := &Informer{
		session:   session,
		listeners: append([]Listener(nil), listeners...),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go inf.run(ctx)
	return inf
}

// AddListener registers an additional listener. Frames already dispatched are
// not replayed; call RequestAll to get the current snapshot.
func (i *Informer) AddListener(l Listener) {
	i.listenersMu.Lock()
	defer i.listenersMu.Unlock()
	i.listeners = append(i.listeners, l)
}

// Running reports whether the channel is open. False while still connecting
// and permanently false after termination.
func (i *Informer) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.conn != nil
}

// RequestAll asks the server to re-send the full status snapshot. If the
// channel is open the command goes out immediately; if the handshake has not
// finished yet the request is recorded and flushed exactly once when the
// connection opens.
func (i *Informer) RequestAll(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.conn == nil {
		i.requestOnOpen = true
		return nil
	}
	return i.conn.Write(ctx, websocket.MessageText, []byte(snapshotCommand))
}

// EnsureRunning returns current when its channel is still open, otherwise
// builds a fresh informer for the session. A dead informer is never revived;
// this is the only sanctioned way to recover from a torn-down channel.
func EnsureRunning(current *Informer, session Session, listeners ...Listener) *Informer {
	if current != nil && current.Running() {
		return current
	}
	return New(session, listeners...)
}

// Stop cancels the channel's background work. Idempotent, never blocks.
func (i *Informer) Stop() {
	i.cancel()
}

// Join blocks until the background work has fully terminated. After Join
// returns no listener is invoked again for this instance.
func (i *Informer) Join() {
	<-i.done
}

func (i *Informer) run(ctx context.Context) {
	defer close(i.done)
	defer func() {
		// clear the open marker unconditionally so Running reports false
		i.mu.Lock()
		i.conn = nil
		i.mu.Unlock()
	}()

	token, err := i.session.Token(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("status channel: token")
		}
		return
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, dialTimeout)
	conn, resp, err := websocket.Dial(dialCtx, i.session.SocketURL(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Bearer " + token}},
	})
	dialCancel()
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Str("url", i.session.SocketURL()).Msg("status channel: dial")
		}
		return
	}
	defer conn.CloseNow()

	i.mu.Lock()
	if i.requestOnOpen {
		i.requestOnOpen = false
		if err := conn.Write(ctx, websocket.MessageText, []byte(snapshotCommand)); err != nil {
			log.Error().Err(err).Msg("status channel: deferred snapshot request")
		}
	}
	i.conn = conn
	i.mu.Unlock()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch {
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
				// graceful remote close
			case ctx.Err() != nil:
				conn.Close(websocket.StatusNormalClosure, "client stop")
			default:
				log.Error().Err(err).Msg("status channel: read")
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		i.handleFrame(data)
	}
}

// handleFrame decodes one status record and dispatches it. A malformed frame
// is logged and dropped; it never terminates the channel.
func (i *Informer) handleFrame(data []byte) {
	var status model.TaskStatus
	if err := json.Unmarshal(data, &status); err != nil {
		log.Warn().Err(err).Str("frame", string(data)).Msg("status channel: undecodable frame")
		return
	}

	i.listenersMu.Lock()
	listeners := append([]Listener(nil), i.listeners...)
	i.listenersMu.Unlock()

	for _, l := range listeners {
		dispatch(l, status)
	}
}

// dispatch isolates listeners from each other: one panicking listener must
// not keep the rest from seeing the event.
func dispatch(l Listener, status model.TaskStatus) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("status channel: listener panic")
		}
	}()
	l(status)
}
