package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"AquaWallet/internal/metrics"
	"AquaWallet/internal/model"
	"AquaWallet/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrMalformedEvent = errors.New("malformed event")
)

const (
	PaymentConfirmed    = "payment.confirmed"
	OrderPlaced         = "order.placed"
	OrderConfirmed      = "order.confirmed"
	OrderOutForDelivery = "order.out_for_delivery"
	OrderDelivered      = "order.delivered"
	OrderCancelled      = "order.cancelled"
	SubscriptionCharged = "subscription.charged"
	ComplaintResolved   = "complaint.resolved"
	ScheduledReminder   = "scheduled.reminder"
	VendorNearby        = "vendor.nearby"
	Promotional         = "promotional"
	SystemAnnouncement  = "system"
)

// Types lists every event the processor accepts, in binding order.
var Types = []string{
	PaymentConfirmed, OrderPlaced, OrderConfirmed, OrderOutForDelivery, OrderDelivered, OrderCancelled,
	SubscriptionCharged, ComplaintResolved, ScheduledReminder, VendorNearby, Promotional, SystemAnnouncement,
}

// Envelope is the body accepted by the internal HTTP endpoint. AMQP messages
// carry the type as routing key and the payload as body.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Payload is the union of fields the order, payment and subscription
// services publish.
type Payload struct {
	UserID           string          `json:"userId"`
	UserIDs          []string        `json:"userIds"`
	OrderID          string          `json:"orderId"`
	SubscriptionID   string          `json:"subscriptionId"`
	Quantity         int             `json:"quantity"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	Amount           decimal.Decimal `json:"amount"`
	Bonus            decimal.Decimal `json:"bonus"`
	RefundAmount     decimal.Decimal `json:"refundAmount"`
	PaymentMethod    string          `json:"paymentMethod"`
	GatewayOrderID   string          `json:"gatewayOrderId"`
	GatewayPaymentID string          `json:"gatewayPaymentId"`
	VendorName       string          `json:"vendorName"`
	Title            string          `json:"title"`
	Message          string          `json:"message"`
	Description      string          `json:"description"`
	Metadata         map[string]any  `json:"metadata"`
}

func (p Payload) templateData() service.TemplateData {
	return service.TemplateData{
		OrderID:     p.OrderID,
		Quantity:    p.Quantity,
		TotalAmount: p.TotalAmount,
		Amount:      p.Amount,
		Bonus:       p.Bonus,
		VendorName:  p.VendorName,
		Title:       p.Title,
		Message:     p.Message,
		Metadata:    p.Metadata,
	}
}

// Processor turns domain events into wallet mutations and notifications.
type Processor struct {
	flows    *service.PaymentFlows
	notifier service.NotificationService
	logger   *zap.Logger
}

func NewProcessor(flows *service.PaymentFlows, notifier service.NotificationService, logger *zap.Logger) *Processor {
	return &Processor{flows: flows, notifier: notifier, logger: logger.Named("events")}
}

// Handle processes one event. A nil error or a permanent error means the
// event must not be redelivered; see Retryable. Events whose ledger entry is
// already committed are reported as processed.
func (p *Processor) Handle(ctx context.Context, eventType string, body []byte) error {
	err := p.handle(ctx, eventType, body)

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, model.ErrAlreadyApplied):
		// A redelivery of an event whose wallet entry already committed.
		outcome = "duplicate"
		p.logger.Info("event already applied", zap.String("event", eventType), zap.Error(err))
		err = nil
	case Retryable(err):
		outcome = "failed"
		p.logger.Error("event processing failed", zap.String("event", eventType), zap.Error(err))
	default:
		outcome = "rejected"
		p.logger.Warn("event rejected", zap.String("event", eventType), zap.Error(err))
	}
	metrics.EventsProcessed.WithLabelValues(metricLabel(eventType), outcome).Inc()
	return err
}

func (p *Processor) handle(ctx context.Context, eventType string, body []byte) error {
	var in Payload
	if err := json.Unmarshal(body, &in); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if in.UserID == "" && eventType != Promotional && eventType != SystemAnnouncement {
		return fmt.Errorf("%w: userId is required", ErrMalformedEvent)
	}

	switch eventType {
	case PaymentConfirmed:
		_, err := p.flows.Recharge(ctx, service.Recharge{
			UserID: in.UserID,
			Amount: in.Amount,
			Bonus:  in.Bonus,
			Payment: model.PaymentDetails{
				Method:           in.PaymentMethod,
				GatewayOrderID:   in.GatewayOrderID,
				GatewayPaymentID: in.GatewayPaymentID,
			},
			Description: in.Description,
		})
		return err

	case OrderPlaced:
		if in.PaymentMethod == "wallet" {
			_, err := p.flows.PayOrderFromWallet(ctx, service.OrderPayment{
				UserID:   in.UserID,
				OrderID:  in.OrderID,
				Quantity: in.Quantity,
				Total:    in.TotalAmount,
			})
			return err
		}
		return p.notify(ctx, in, model.NotificationOrderPlaced)

	case OrderCancelled:
		_, err := p.flows.RefundOrder(ctx, service.Refund{
			UserID:  in.UserID,
			OrderID: in.OrderID,
			Amount:  in.RefundAmount,
		})
		return err

	case SubscriptionCharged:
		_, err := p.flows.ChargeSubscription(ctx, service.SubscriptionCharge{
			UserID:         in.UserID,
			SubscriptionID: in.SubscriptionID,
			Amount:         in.Amount,
			Description:    in.Description,
		})
		return err

	case OrderConfirmed:
		return p.notify(ctx, in, model.NotificationOrderConfirmed)
	case OrderOutForDelivery:
		return p.notify(ctx, in, model.NotificationOrderOutForDelivery)
	case OrderDelivered:
		return p.notify(ctx, in, model.NotificationOrderDelivered)
	case ComplaintResolved:
		return p.notify(ctx, in, model.NotificationComplaintResolved)
	case ScheduledReminder:
		return p.notify(ctx, in, model.NotificationScheduledReminder)
	case VendorNearby:
		return p.notify(ctx, in, model.NotificationVendorNearby)

	case Promotional, SystemAnnouncement:
		kind := model.NotificationPromotional
		if eventType == SystemAnnouncement {
			kind = model.NotificationSystem
		}
		users := in.UserIDs
		if len(users) == 0 && in.UserID != "" {
			users = []string{in.UserID}
		}
		if len(users) == 0 {
			return fmt.Errorf("%w: no recipients", ErrMalformedEvent)
		}
		return p.fanOut(ctx, users, kind, in.templateData())
	}

	return fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
}

func (p *Processor) notify(ctx context.Context, in Payload, kind model.NotificationType) error {
	_, err := p.notifier.Notify(ctx, in.UserID, kind, in.templateData())
	return err
}

// fanOut only fails when every recipient failed. Redelivering a partially
// delivered broadcast would duplicate it for the users who already have it.
func (p *Processor) fanOut(ctx context.Context, users []string, kind model.NotificationType, data service.TemplateData) error {
	outcomes := p.notifier.NotifyMany(ctx, users, kind, data)
	var failed int
	var last error
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			last = o.Err
		}
	}
	if failed > 0 && failed < len(outcomes) {
		p.logger.Warn("broadcast partially delivered",
			zap.String("type", string(kind)),
			zap.Int("failed", failed),
			zap.Int("total", len(outcomes)))
		return nil
	}
	return last
}

// Retryable reports whether err came from infrastructure rather than from the
// event itself. Business rejections never succeed on redelivery.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	for _, permanent := range []error{
		ErrUnknownEvent,
		ErrMalformedEvent,
		model.ErrInsufficientBalance,
		model.ErrAlreadyApplied,
		model.ErrInvalidAmount,
		model.ErrInvalidKind,
		model.ErrInvalidDirection,
		model.ErrMissingUser,
		model.ErrInvalidNotification,
		model.ErrUnknownTemplate,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}

func metricLabel(eventType string) string {
	for _, t := range Types {
		if t == eventType {
			return t
		}
	}
	return "unknown"
}
