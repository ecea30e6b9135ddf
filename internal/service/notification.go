package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"AquaWallet/internal/metrics"
	"AquaWallet/internal/model"
	"AquaWallet/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultLowBalanceThreshold = 100
	DefaultPushTimeout         = 5 * time.Second
	DefaultDeliveryQueueSize   = 10000
)

// Pusher delivers an event to the live sessions of a user. It reports false
// when no session took the event; that is a normal outcome, not an error.
type Pusher interface {
	Push(ctx context.Context, userID string, event model.Event) bool
}

type NotificationService interface {
	Notify(ctx context.Context, userID string, kind model.NotificationType, data TemplateData) (*model.Notification, error)
	NotifyLiteral(ctx context.Context, userID string, n model.Notification) (*model.Notification, error)
	NotifyMany(ctx context.Context, userIDs []string, kind model.NotificationType, data TemplateData) []NotifyOutcome
	// CheckLowBalance emits a low balance alert when 0 <= balance < threshold.
	// It returns nil without error when no alert is due.
	CheckLowBalance(ctx context.Context, userID string, balance decimal.Decimal) (*model.Notification, error)
	MarkRead(ctx context.Context, notificationID, userID string) (*model.Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int, error)
	List(ctx context.Context, userID string, filter model.NotificationFilter) (*model.NotificationList, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, notificationID, userID string) error
	Shutdown()
}

type NotifyOutcome struct {
	UserID       string
	Notification *model.Notification
	Err          error
}

type NotificationOptions struct {
	Workers             int
	LowBalanceThreshold decimal.Decimal
	// PushTimeout bounds one live push so a stuck session cannot stall its
	// delivery shard.
	PushTimeout time.Duration
	// QueueSize is the buffer of each delivery shard. A full shard drops the
	// live push; the stored notification is still listed.
	QueueSize int
}

type notificationService struct {
	repo      repository.NotificationRepository
	pusher    Pusher
	threshold decimal.Decimal
	timeout   time.Duration
	logger    *zap.Logger

	mu      sync.RWMutex
	closed  bool
	queues  []chan deliveryRequest
	workers int
	wg      sync.WaitGroup
}

type deliveryRequest struct {
	userID string
	event  model.Event
}

// NewNotificationService starts opts.Workers delivery goroutines. Events for
// one user always land on the same worker, so they are pushed in the order
// they were created. pusher may be nil when live delivery is disabled.
func NewNotificationService(repo repository.NotificationRepository, pusher Pusher, opts NotificationOptions, logger *zap.Logger) NotificationService {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if !opts.LowBalanceThreshold.IsPositive() {
		opts.LowBalanceThreshold = decimal.NewFromInt(DefaultLowBalanceThreshold)
	}
	if opts.PushTimeout <= 0 {
		opts.PushTimeout = DefaultPushTimeout
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = DefaultDeliveryQueueSize
	}

	queues := make([]chan deliveryRequest, opts.Workers)
	for i := range queues {
		queues[i] = make(chan deliveryRequest, opts.QueueSize)
	}

	s := &notificationService{
		repo:      repo,
		pusher:    pusher,
		threshold: opts.LowBalanceThreshold,
		timeout:   opts.PushTimeout,
		logger:    logger.Named("notification"),
		queues:    queues,
		workers:   opts.Workers,
	}

	for i := 0; i < opts.Workers; i++ {
		s.wg.Add(1)
		go s.deliver(i)
	}

	return s
}

func (s *notificationService) getShard(userID string) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32() % uint32(s.workers))
}

func (s *notificationService) Notify(ctx context.Context, userID string, kind model.NotificationType, data TemplateData) (*model.Notification, error) {
	r, err := Render(kind, data)
	if err != nil {
		return nil, err
	}
	return s.NotifyLiteral(ctx, userID, model.Notification{
		Type:               kind,
		Title:              r.Title,
		Message:            r.Message,
		Icon:               r.Icon,
		Priority:           r.Priority,
		RelatedOrder:       data.OrderID,
		RelatedTransaction: data.TransactionID,
		ActionURL:          r.ActionURL,
		ActionLabel:        r.ActionLabel,
		Metadata:           data.Metadata,
	})
}

func (s *notificationService) NotifyLiteral(ctx context.Context, userID string, n model.Notification) (*model.Notification, error) {
	if userID == "" {
		return nil, model.ErrMissingUser
	}
	if err := normalizeLiteral(&n); err != nil {
		return nil, err
	}
	n.UserID = userID
	n.IsRead = false
	n.ReadAt = nil

	if err := s.repo.CreateNotification(ctx, &n); err != nil {
		s.logger.Error("failed to persist notification",
			zap.String("user_id", userID),
			zap.String("type", string(n.Type)),
			zap.Error(err))
		return nil, err
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()

	s.enqueue(userID, model.NewEvent(model.EventNotification, n))
	return &n, nil
}

func normalizeLiteral(n *model.Notification) error {
	if !n.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", model.ErrInvalidNotification, n.Type)
	}
	if n.Title == "" || n.Message == "" {
		return fmt.Errorf("%w: title and message are required", model.ErrInvalidNotification)
	}
	if n.Priority == "" {
		n.Priority = model.PriorityMedium
	}
	if !n.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", model.ErrInvalidNotification, n.Priority)
	}
	if n.Icon == "" {
		n.Icon = "🔔"
	}
	return nil
}

func (s *notificationService) NotifyMany(ctx context.Context, userIDs []string, kind model.NotificationType, data TemplateData) []NotifyOutcome {
	outcomes := make([]NotifyOutcome, len(userIDs))
	var wg sync.WaitGroup
	for i, userID := range userIDs {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			n, err := s.Notify(ctx, userID, kind, data)
			if err != nil {
				s.logger.Warn("bulk notification failed for user",
					zap.String("user_id", userID),
					zap.String("type", string(kind)),
					zap.Error(err))
			}
			outcomes[i] = NotifyOutcome{UserID: userID, Notification: n, Err: err}
		}(i, userID)
	}
	wg.Wait()
	return outcomes
}

func (s *notificationService) CheckLowBalance(ctx context.Context, userID string, balance decimal.Decimal) (*model.Notification, error) {
	if balance.IsNegative() || !balance.LessThan(s.threshold) {
		return nil, nil
	}
	return s.Notify(ctx, userID, model.NotificationWalletLowBalance, TemplateData{
		Balance:  balance,
		Metadata: map[string]any{"threshold": s.threshold.String()},
	})
}

// ownedNotification loads a notification and checks it belongs to userID.
func (s *notificationService) ownedNotification(ctx context.Context, notificationID, userID string) (*model.Notification, error) {
	n, err := s.repo.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, model.ErrForbidden
	}
	return n, nil
}

func (s *notificationService) MarkRead(ctx context.Context, notificationID, userID string) (*model.Notification, error) {
	n, err := s.ownedNotification(ctx, notificationID, userID)
	if err != nil {
		return nil, err
	}

	if !n.IsRead {
		// A concurrent reader may win the update; either way the stored row
		// now carries read_at.
		if _, err := s.repo.MarkRead(ctx, notificationID, time.Now().UTC()); err != nil {
			return nil, err
		}
		if n, err = s.repo.GetNotification(ctx, notificationID); err != nil {
			return nil, err
		}
	}

	s.enqueue(userID, model.NewEvent(model.EventNotificationRead, map[string]string{"notificationId": notificationID}))
	return n, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.MarkAllRead(ctx, userID, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	s.enqueue(userID, model.NewEvent(model.EventAllNotificationsRead, map[string]int{"count": count}))
	return count, nil
}

func (s *notificationService) List(ctx context.Context, userID string, filter model.NotificationFilter) (*model.NotificationList, error) {
	filter.Page = filter.Page.Normalize()
	items, total, err := s.repo.ListNotifications(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.NotificationList{
		Notifications: items,
		UnreadCount:   unread,
		Pagination:    model.NewPagination(filter.Page, total),
	}, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *notificationService) Delete(ctx context.Context, notificationID, userID string) error {
	if _, err := s.ownedNotification(ctx, notificationID, userID); err != nil {
		return err
	}
	return s.repo.DeleteNotification(ctx, notificationID)
}

func (s *notificationService) enqueue(userID string, event model.Event) {
	if s.pusher == nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("delivery stopped, event kept for pull only",
			zap.String("user_id", userID),
			zap.String("event", string(event.Name)))
		return
	}
	select {
	case s.queues[s.getShard(userID)] <- deliveryRequest{userID: userID, event: event}:
	default:
		s.logger.Warn("delivery queue full, event kept for pull only",
			zap.String("user_id", userID),
			zap.String("event", string(event.Name)))
		metrics.PushAttempts.WithLabelValues(string(event.Name), "dropped").Inc()
	}
}

func (s *notificationService) deliver(shardIndex int) {
	defer s.wg.Done()
	for req := range s.queues[shardIndex] {
		result := "delivered"
		if !s.push(req) {
			result = "no_session"
			s.logger.Debug("no live session, notification left for pull",
				zap.String("user_id", req.userID),
				zap.String("event", string(req.event.Name)))
		}
		metrics.PushAttempts.WithLabelValues(string(req.event.Name), result).Inc()
	}
}

func (s *notificationService) push(req deliveryRequest) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.pusher.Push(ctx, req.userID, req.event)
}

// Shutdown stops accepting pushes and drains the delivery queues.
func (s *notificationService) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for i := range s.queues {
		close(s.queues[i])
	}
	s.mu.Unlock()
	s.wg.Wait()
}
