package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/rs/zerolog/log"

	"github.com/pradyumna-smpx/gqutils/pkg/subscription"
)

// wsProtocol is the graphql-ws websocket subprotocol.
const wsProtocol = "graphql-ws"

// graphql-ws message types.
const (
	msgConnectionInit      = "connection_init"
	msgConnectionAck       = "connection_ack"
	msgConnectionError     = "connection_error"
	msgConnectionKeepAlive = "ka"
	msgConnectionTerminate = "connection_terminate"
	msgStart               = "start"
	msgStop                = "stop"
	msgData                = "data"
	msgError               = "error"
	msgComplete            = "complete"
)

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsConn is one graphql-ws connection.
type wsConn struct {
	server *Server
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	params map[string]interface{}
	ops    map[string]context.CancelFunc // operation id -> cancel
}

// serveWebsocket upgrades the request and runs the graphql-ws protocol until
// the client disconnects.
func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	if conn.Subprotocol() != wsProtocol {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseProtocolError, "unsupported subprotocol"))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{
		server: s,
		conn:   conn,
		ops:    make(map[string]context.CancelFunc),
	}
	c.run(ctx)
}

func (c *wsConn) run(ctx context.Context) {
	initialized := false

	go c.keepAlive(ctx)

	for {
		var msg wsMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("websocket read failed")
			}
			return
		}

		switch msg.Type {
		case msgConnectionInit:
			var params map[string]interface{}
			if len(msg.Payload) > 0 {
				if err := json.Unmarshal(msg.Payload, &params); err != nil {
					c.send(wsMessage{Type: msgConnectionError, Payload: errorPayload(err)})
					return
				}
			}
			c.mu.Lock()
			c.params = params
			c.mu.Unlock()

			initialized = true
			c.send(wsMessage{Type: msgConnectionAck})
			c.send(wsMessage{Type: msgConnectionKeepAlive})

		case msgStart:
			if !initialized {
				c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload(errors.New("connection not initialized"))})
				continue
			}
			c.start(ctx, msg)

		case msgStop:
			c.stop(msg.ID)

		case msgConnectionTerminate:
			return

		default:
			c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload(errors.New("unknown message type " + msg.Type))})
		}
	}
}

func (c *wsConn) start(ctx context.Context, msg wsMessage) {
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues("websocket").Observe(time.Since(start).Seconds())
	}()

	var req request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload(err)})
		return
	}
	if errMsg, code := c.server.resolvePersisted(ctx, &req); errMsg != "" {
		fe := gqlerrors.FormattedError{Message: errMsg}
		if code != "" {
			fe.Extensions = map[string]interface{}{"code": code}
		}
		c.sendResult(msg.ID, &graphql.Result{Errors: []gqlerrors.FormattedError{fe}})
		c.send(wsMessage{ID: msg.ID, Type: msgComplete})
		return
	}

	c.mu.Lock()
	values := c.params
	_, exists := c.ops[msg.ID]
	c.mu.Unlock()
	if exists {
		c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload(errors.New("operation id already in use"))})
		return
	}

	opCtx, cancel := context.WithCancel(ctx)
	manager := c.server.engine.Current().Subscriptions
	_, results, err := manager.Subscribe(opCtx, subscription.Request{
		Query:         req.Query,
		Variables:     req.Variables,
		OperationName: req.OperationName,
		Values:        values,
	})

	var reqErr *subscription.RequestError
	switch {
	case errors.Is(err, subscription.ErrNotSubscription):
		// Queries and mutations run once over the socket.
		defer cancel()
		result, opType := c.server.execute(opCtx, req, true)
		requestsTotal.WithLabelValues("websocket", opType, resultStatus(result)).Inc()
		c.sendResult(msg.ID, result)
		c.send(wsMessage{ID: msg.ID, Type: msgComplete})
		return
	case errors.As(err, &reqErr):
		cancel()
		requestsTotal.WithLabelValues("websocket", "subscription", "error").Inc()
		c.sendResult(msg.ID, &graphql.Result{Errors: reqErr.Errors})
		c.send(wsMessage{ID: msg.ID, Type: msgComplete})
		return
	case err != nil:
		cancel()
		requestsTotal.WithLabelValues("websocket", "subscription", "error").Inc()
		c.send(wsMessage{ID: msg.ID, Type: msgError, Payload: errorPayload(err)})
		return
	}
	requestsTotal.WithLabelValues("websocket", "subscription", "success").Inc()

	c.mu.Lock()
	c.ops[msg.ID] = cancel
	c.mu.Unlock()

	go func() {
		for result := range results {
			c.sendResult(msg.ID, result)
		}

		c.mu.Lock()
		delete(c.ops, msg.ID)
		c.mu.Unlock()

		// The client sent stop, or the connection is closing.
		if ctx.Err() == nil {
			c.send(wsMessage{ID: msg.ID, Type: msgComplete})
		}
	}()
}

func (c *wsConn) stop(id string) {
	c.mu.Lock()
	cancel, ok := c.ops[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

func (c *wsConn) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.send(wsMessage{Type: msgConnectionKeepAlive})
		}
	}
}

func (c *wsConn) sendResult(id string, result *graphql.Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		c.send(wsMessage{ID: id, Type: msgError, Payload: errorPayload(err)})
		return
	}
	c.send(wsMessage{ID: id, Type: msgData, Payload: payload})
}

func (c *wsConn) send(msg wsMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteJSON(msg); err != nil {
		log.Debug().Err(err).Str("type", msg.Type).Msg("websocket write failed")
	}
}

func errorPayload(err error) json.RawMessage {
	payload, _ := json.Marshal(gqlerrors.FormattedError{Message: err.Error()})
	return payload
}

func resultStatus(result *graphql.Result) string {
	if len(result.Errors) > 0 {
		return "error"
	}
	return "success"
}
