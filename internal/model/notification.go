package model

import (
	"errors"
	"time"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrForbidden            = errors.New("forbidden")
	ErrUnknownTemplate      = errors.New("unknown notification template")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidNotification  = errors.New("invalid notification")
)

type NotificationType string

const (
	NotificationOrderPlaced         NotificationType = "order_placed"
	NotificationOrderConfirmed      NotificationType = "order_confirmed"
	NotificationOrderOutForDelivery NotificationType = "order_out_for_delivery"
	NotificationOrderDelivered      NotificationType = "order_delivered"
	NotificationOrderCancelled      NotificationType = "order_cancelled"
	NotificationWalletLowBalance    NotificationType = "wallet_low_balance"
	NotificationWalletRecharged     NotificationType = "wallet_recharged"
	NotificationCashbackCredited    NotificationType = "cashback_credited"
	NotificationScheduledReminder   NotificationType = "scheduled_reminder"
	NotificationVendorNearby        NotificationType = "vendor_nearby"
	NotificationComplaintResolved   NotificationType = "complaint_resolved"
	NotificationPromotional         NotificationType = "promotional"
	NotificationSystem              NotificationType = "system"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationOrderPlaced, NotificationOrderConfirmed, NotificationOrderOutForDelivery,
		NotificationOrderDelivered, NotificationOrderCancelled, NotificationWalletLowBalance,
		NotificationWalletRecharged, NotificationCashbackCredited, NotificationScheduledReminder,
		NotificationVendorNearby, NotificationComplaintResolved, NotificationPromotional, NotificationSystem:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Notification struct {
	ID                 string           `json:"id"`
	UserID             string           `json:"userId"`
	Type               NotificationType `json:"type"`
	Title              string           `json:"title"`
	Message            string           `json:"message"`
	Icon               string           `json:"icon"`
	Priority           Priority         `json:"priority"`
	RelatedOrder       string           `json:"relatedOrder,omitempty"`
	RelatedTransaction string           `json:"relatedTransaction,omitempty"`
	ActionURL          string           `json:"actionUrl,omitempty"`
	ActionLabel        string           `json:"actionLabel,omitempty"`
	IsRead             bool             `json:"isRead"`
	ReadAt             *time.Time       `json:"readAt"`
	Metadata           map[string]any   `json:"metadata"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

type NotificationFilter struct {
	Page
	UnreadOnly bool
}

type NotificationList struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
	Pagination    Pagination     `json:"pagination"`
}
