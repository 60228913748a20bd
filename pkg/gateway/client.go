package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"nhooyr.io/websocket"

	"github.com/dmitrymomot/forge/pkg/ferrors"
	"github.com/dmitrymomot/forge/pkg/id"
)

const (
	readLimitBytes = 32 * 1024
	pingInterval   = 30 * time.Second
	maxUUIDLen     = 36
)

// conn pairs a session with the WebSocket connection serving it,
// running the read/write pumps the same way the agenterm hub example
// splits a connection into two single-purpose goroutines.
type conn struct {
	hub  *Hub
	sess *Session
	ws   *websocket.Conn
}

// serve drives one connection until the client disconnects or ctx is
// canceled, then tears the session down.
func (c *conn) serve(ctx context.Context) {
	go c.writePump(ctx)

	c.hub.send(c.sess, connectedMessage())
	c.readPump(ctx)

	c.ws.Close(websocket.StatusNormalClosure, "")
	c.hub.disconnect(context.Background(), c.sess)
}

func (c *conn) readPump(ctx context.Context) {
	c.ws.SetReadLimit(readLimitBytes)

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.hub.send(c.sess, errorMessage("", CodeInvalidMessage, "invalid message format"))
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ws.Ping(ctx); err != nil {
				return
			}
		case msg, ok := <-c.sess.send:
			if !ok {
				return
			}
			if err := c.ws.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		}
	}
}

func (c *conn) handle(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case msgPing:
		c.hub.send(c.sess, pongMessage())
	case msgAuth:
		// Token validation is an external collaborator's concern
		// (spec.md §1 puts auth middleware out of core scope); accepted
		// unconditionally here.
	case msgSubscribe:
		c.subscribe(ctx, msg)
	case msgUnsubscribe:
		c.unsubscribe(msg.ID)
	case msgSubscribeJob:
		c.subscribeJob(ctx, msg)
	case msgUnsubscribeJob:
		c.unsubscribe(msg.ID)
	case msgSubscribeWorkflow:
		c.subscribeWorkflow(ctx, msg)
	case msgUnsubscribeWorkflow:
		c.unsubscribe(msg.ID)
	default:
		c.hub.send(c.sess, errorMessage(msg.ID, CodeInvalidMessage, "unknown message type"))
	}
}

func (c *conn) subscribe(ctx context.Context, msg ClientMessage) {
	sub, err := c.hub.reactor.Subscribe(c.sess.ID, msg.Function, msg.Args)
	if err != nil {
		c.hub.send(c.sess, errorMessage(msg.ID, CodeUnknownFunction, "unknown function"))
		return
	}
	c.sess.trackQuery(msg.ID, sub.ID)

	c.hub.queriesMu.RLock()
	fn, ok := c.hub.queries[msg.Function]
	c.hub.queriesMu.RUnlock()
	if !ok {
		c.hub.send(c.sess, errorMessage(msg.ID, CodeUnknownFunction, "unknown function"))
		return
	}

	data, err := fn(ctx, msg.Args)
	if err != nil {
		c.hub.log.ErrorContext(ctx, "gateway: initial query execution failed", slog.String("function", msg.Function), slog.Any("error", err))
		c.hub.send(c.sess, errorMessage(msg.ID, CodeQueryFailed, "query failed"))
		return
	}
	c.hub.send(c.sess, dataMessage(msg.ID, data))
}

func (c *conn) subscribeJob(ctx context.Context, msg ClientMessage) {
	jobID, err := validateUUID(msg.JobID, "job_id")
	if err != nil {
		c.hub.send(c.sess, errorMessage(msg.ID, CodeInvalidUUID, err.Error()))
		return
	}
	sub := c.hub.reactor.SubscribeJob(c.sess.ID, jobID)
	c.sess.trackJob(msg.ID, sub.ID)
	c.hub.pushJob(ctx, c.sess, msg.ID, jobID)
}

func (c *conn) subscribeWorkflow(ctx context.Context, msg ClientMessage) {
	runID, err := validateUUID(msg.WorkflowID, "workflow_id")
	if err != nil {
		c.hub.send(c.sess, errorMessage(msg.ID, CodeInvalidUUID, err.Error()))
		return
	}
	sub := c.hub.reactor.SubscribeWorkflow(c.sess.ID, runID)
	c.sess.trackWorkflow(msg.ID, sub.ID)
	c.hub.pushWorkflow(ctx, c.sess, msg.ID, runID)
}

func (c *conn) unsubscribe(clientID string) {
	subID, ok := c.sess.untrack(clientID)
	if !ok {
		return
	}
	c.hub.reactor.Unsubscribe(subID)
}

func validateUUID(s, field string) (string, error) {
	if len(s) > maxUUIDLen {
		return "", ferrors.Validation("invalid %s: too long", field)
	}
	norm, err := id.Parse(s)
	if err != nil {
		return "", ferrors.Validation("invalid %s: must be a valid UUID", field)
	}
	return norm, nil
}
