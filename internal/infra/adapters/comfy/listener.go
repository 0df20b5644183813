package comfy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"comfy-gateway/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Websocket event types pushed by the backend.
const (
	EventStatus               = "status"
	EventExecutionStart       = "execution_start"
	EventExecutionCached      = "execution_cached"
	EventExecuting            = "executing"
	EventProgress             = "progress"
	EventExecuted             = "executed"
	EventExecutionError       = "execution_error"
	EventExecutionInterrupted = "execution_interrupted"
)

// Event is one text frame from /ws. Binary preview frames are skipped.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventData is the union of the payload fields the CLI cares about.
type EventData struct {
	PromptID         string      `json:"prompt_id"`
	Node             *string     `json:"node"`
	Value            int         `json:"value"`
	Max              int         `json:"max"`
	Status           *QueueState `json:"status"`
	ExceptionMessage string      `json:"exception_message"`
}

type QueueState struct {
	ExecInfo struct {
		QueueRemaining int `json:"queue_remaining"`
	} `json:"exec_info"`
}

func (e Event) Decode() (EventData, error) {
	var d EventData
	if len(e.Data) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return d, fmt.Errorf("%w: %s event: %v", domain.ErrParse, e.Type, err)
	}
	return d, nil
}

// Done reports whether e marks the end of promptID's execution: an
// "executing" event with a null node, an error or an interruption.
func (e Event) Done(promptID string) bool {
	switch e.Type {
	case EventExecuting, EventExecutionError, EventExecutionInterrupted:
	default:
		return false
	}
	d, err := e.Decode()
	if err != nil || d.PromptID != promptID {
		return false
	}
	return e.Type != EventExecuting || d.Node == nil
}

// ErrStopListening can be returned by a handler to end Listen cleanly.
var ErrStopListening = errors.New("stop listening")

// Listener follows the backend's /ws event stream for one client id.
type Listener struct {
	base   *url.URL
	dialer *websocket.Dialer
	log    *zerolog.Logger
}

func NewListener(serverURL string, logger *zerolog.Logger) (*Listener, error) {
	base, err := ParseServerURL(serverURL)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "ComfyListener").Logger()
	return &Listener{base: base, dialer: websocket.DefaultDialer, log: &l}, nil
}

func (l *Listener) URL(clientID string) string {
	u := *l.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = l.base.Path + "/ws"
	u.RawQuery = url.Values{"clientId": {clientID}}.Encode()
	return u.String()
}

// Listen reads events until ctx is cancelled, the connection drops or fn
// returns an error. ErrStopListening from fn ends Listen with a nil error.
func (l *Listener) Listen(ctx context.Context, clientID string, fn func(Event) error) error {
	conn, _, err := l.dialer.DialContext(ctx, l.URL(clientID), nil)
	if err != nil {
		return fmt.Errorf("%w: dial websocket: %v", domain.ErrBackendUnavailable, err)
	}
	defer conn.Close()

	// unblock ReadMessage on cancellation
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("%w: websocket read: %v", domain.ErrBackendUnavailable, err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			l.log.Warn().Err(err).Msg("skipping undecodable websocket frame")
			continue
		}
		if err := fn(ev); err != nil {
			if errors.Is(err, ErrStopListening) {
				return nil
			}
			return err
		}
	}
}
