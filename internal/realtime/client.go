package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"AquaWallet/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// ReadMarker is the part of the notification service a client may drive.
type ReadMarker interface {
	MarkRead(ctx context.Context, notificationID, userID string) (*model.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
}

// Client is one websocket connection of an authenticated user.
type Client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	logger *zap.Logger
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// sendEvent queues a frame for this connection only.
func (c *Client) sendEvent(name model.EventName, data any) {
	payload, err := json.Marshal(model.NewEvent(name, data))
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c.userID][c]; !ok {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("send buffer full", zap.String("user_id", c.userID))
	}
}

func (c *Client) sendError(message string) {
	c.sendEvent(model.EventError, map[string]string{"message": message})
}

func (c *Client) readPump(ctx context.Context, marker ReadMarker) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.sendError("invalid message format")
			continue
		}
		c.handle(ctx, marker, frame)
	}
}

func (c *Client) handle(ctx context.Context, marker ReadMarker, frame inboundFrame) {
	switch frame.Event {
	case "mark_read":
		id, err := notificationIDFrom(frame.Data)
		if err != nil {
			c.sendError("notification id is required")
			return
		}
		// The service broadcasts notification_read to every session of the
		// user, this one included.
		if _, err := marker.MarkRead(ctx, id, c.userID); err != nil {
			c.logger.Info("mark_read rejected",
				zap.String("user_id", c.userID),
				zap.String("notification_id", id),
				zap.Error(err))
			c.sendError(markReadMessage(err))
		}
	case "mark_all_read":
		if _, err := marker.MarkAllRead(ctx, c.userID); err != nil {
			c.logger.Error("mark_all_read failed", zap.String("user_id", c.userID), zap.Error(err))
			c.sendError("failed to mark notifications as read")
		}
	default:
		c.sendError("unknown event")
	}
}

// notificationIDFrom accepts either "<id>" or {"notificationId":"<id>"}.
func notificationIDFrom(raw json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil && id != "" {
		return id, nil
	}
	var obj struct {
		NotificationID string `json:"notificationId"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.NotificationID != "" {
		return obj.NotificationID, nil
	}
	return "", model.ErrInvalidNotification
}

func markReadMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrNotificationNotFound):
		return "notification not found"
	case errors.Is(err, model.ErrForbidden):
		return "notification belongs to another user"
	default:
		return "failed to mark notification as read"
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
