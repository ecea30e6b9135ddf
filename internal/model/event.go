package model

import "time"

// EventName identifies a server to client realtime frame.
type EventName string

const (
	EventConnected            EventName = "connected"
	EventNotification         EventName = "notification"
	EventNotificationRead     EventName = "notification_read"
	EventAllNotificationsRead EventName = "all_notifications_read"
	EventError                EventName = "error"
)

type Event struct {
	Name      EventName `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

func NewEvent(name EventName, data any) Event {
	return Event{Name: name, Data: data, Timestamp: time.Now().Unix()}
}
