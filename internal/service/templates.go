package service

import (
	"fmt"

	"AquaWallet/internal/model"

	"github.com/shopspring/decimal"
)

// TemplateData carries the event fields a notification template may render.
type TemplateData struct {
	OrderID       string
	TransactionID string
	Quantity      int
	TotalAmount   decimal.Decimal
	Amount        decimal.Decimal
	Bonus         decimal.Decimal
	Balance       decimal.Decimal
	VendorName    string
	Title         string
	Message       string
	Metadata      map[string]any
}

// Rendered holds the display fields produced by a template.
type Rendered struct {
	Title       string
	Message     string
	Icon        string
	Priority    model.Priority
	ActionURL   string
	ActionLabel string
}

// Render is a pure function of the template kind and its data.
func Render(kind model.NotificationType, d TemplateData) (Rendered, error) {
	switch kind {
	case model.NotificationOrderPlaced:
		return Rendered{
			Title:       "🎉 Order Placed Successfully!",
			Message:     fmt.Sprintf("Your order for %d bottles has been placed. Total: %s", d.Quantity, rupees(d.TotalAmount)),
			Icon:        "🛒",
			Priority:    model.PriorityMedium,
			ActionURL:   "/dashboard",
			ActionLabel: "View Orders",
		}, nil
	case model.NotificationOrderConfirmed:
		return Rendered{
			Title:       "✅ Order Confirmed!",
			Message:     fmt.Sprintf("Your order #%s has been confirmed by the vendor.", shortRef(d.OrderID)),
			Icon:        "✅",
			Priority:    model.PriorityHigh,
			ActionURL:   "/dashboard",
			ActionLabel: "Track Order",
		}, nil
	case model.NotificationOrderOutForDelivery:
		return Rendered{
			Title:       "🚚 Out for Delivery!",
			Message:     fmt.Sprintf("Your %d bottles are on the way! Expected soon.", d.Quantity),
			Icon:        "🚚",
			Priority:    model.PriorityHigh,
			ActionURL:   "/dashboard",
			ActionLabel: "Track Order",
		}, nil
	case model.NotificationOrderDelivered:
		return Rendered{
			Title:       "🎊 Order Delivered!",
			Message:     fmt.Sprintf("Your order of %d bottles has been delivered successfully!", d.Quantity),
			Icon:        "🎊",
			Priority:    model.PriorityMedium,
			ActionURL:   "/dashboard",
			ActionLabel: "View Order",
		}, nil
	case model.NotificationOrderCancelled:
		return Rendered{
			Title:       "❌ Order Cancelled",
			Message:     fmt.Sprintf("Your order #%s has been cancelled.", shortRef(d.OrderID)),
			Icon:        "❌",
			Priority:    model.PriorityMedium,
			ActionURL:   "/dashboard",
			ActionLabel: "View Details",
		}, nil
	case model.NotificationWalletLowBalance:
		return Rendered{
			Title:       "⚠️ Low Wallet Balance",
			Message:     fmt.Sprintf("Your wallet balance is %s. Recharge now to continue enjoying instant orders!", rupees(d.Balance)),
			Icon:        "💳",
			Priority:    model.PriorityHigh,
			ActionURL:   "/wallet",
			ActionLabel: "Recharge Wallet",
		}, nil
	case model.NotificationWalletRecharged:
		msg := fmt.Sprintf("%s added to your wallet!", rupees(d.Amount))
		if d.Bonus.IsPositive() {
			msg = fmt.Sprintf("%s added to your wallet + %s bonus!", rupees(d.Amount), rupees(d.Bonus))
		}
		return Rendered{
			Title:       "💰 Wallet Recharged!",
			Message:     msg,
			Icon:        "💰",
			Priority:    model.PriorityMedium,
			ActionURL:   "/wallet",
			ActionLabel: "View Wallet",
		}, nil
	case model.NotificationCashbackCredited:
		return Rendered{
			Title:       "🎁 Cashback Credited!",
			Message:     fmt.Sprintf("Congratulations! %s cashback has been added to your wallet!", rupees(d.Amount)),
			Icon:        "🎁",
			Priority:    model.PriorityMedium,
			ActionURL:   "/wallet",
			ActionLabel: "View Wallet",
		}, nil
	case model.NotificationScheduledReminder:
		return Rendered{
			Title:       "📅 Scheduled Order Reminder",
			Message:     fmt.Sprintf("Your scheduled order for %d bottles is tomorrow!", d.Quantity),
			Icon:        "📅",
			Priority:    model.PriorityMedium,
			ActionURL:   "/dashboard",
			ActionLabel: "View Schedule",
		}, nil
	case model.NotificationVendorNearby:
		vendor := d.VendorName
		if vendor == "" {
			vendor = "Your vendor"
		}
		return Rendered{
			Title:       "📍 Vendor Nearby",
			Message:     fmt.Sprintf("%s is delivering in your society right now.", vendor),
			Icon:        "📍",
			Priority:    model.PriorityLow,
			ActionURL:   "/dashboard",
			ActionLabel: "Order Now",
		}, nil
	case model.NotificationComplaintResolved:
		return Rendered{
			Title:       "✅ Complaint Resolved",
			Message:     "Your complaint has been resolved. Thank you for your patience!",
			Icon:        "✅",
			Priority:    model.PriorityHigh,
			ActionURL:   "/dashboard",
			ActionLabel: "View Details",
		}, nil
	case model.NotificationPromotional:
		if d.Title == "" || d.Message == "" {
			return Rendered{}, fmt.Errorf("%w: promotional notification needs a title and message", model.ErrInvalidNotification)
		}
		return Rendered{
			Title:    d.Title,
			Message:  d.Message,
			Icon:     "🎉",
			Priority: model.PriorityLow,
		}, nil
	case model.NotificationSystem:
		if d.Message == "" {
			return Rendered{}, fmt.Errorf("%w: system notification needs a message", model.ErrInvalidNotification)
		}
		title := d.Title
		if title == "" {
			title = "System Update"
		}
		return Rendered{
			Title:    title,
			Message:  d.Message,
			Icon:     "🔔",
			Priority: model.PriorityMedium,
		}, nil
	}
	return Rendered{}, fmt.Errorf("%w: %q", model.ErrUnknownTemplate, kind)
}

func rupees(d decimal.Decimal) string {
	if d.IsInteger() {
		return "₹" + d.StringFixed(0)
	}
	return "₹" + d.StringFixed(2)
}

// shortRef is the last six characters of an order id, as shown to residents.
func shortRef(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[len(id)-6:]
}
