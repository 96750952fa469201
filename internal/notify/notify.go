package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scuola-service/internal/models"
	"scuola-service/pkg/sl"
)

type Store interface {
	InsertNotifications(ctx context.Context, notifications []*models.Notification) error
	ListUsernames(ctx context.Context, role models.Role) ([]string, error)
	DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) error
	ListNotifications(ctx context.Context, username string) ([]*models.Notification, error)
}

// Notifier persists notifications off the request path. Delivery is
// best effort: a failed insert is logged and dropped, it never fails
// the operation that triggered it.
type Notifier struct {
	log       *slog.Logger
	store     Store
	retention time.Duration
	timeout   time.Duration
	wg        sync.WaitGroup
}

func New(log *slog.Logger, store Store, retention time.Duration) *Notifier {
	return &Notifier{
		log:       log,
		store:     store,
		retention: retention,
		timeout:   5 * time.Second,
	}
}

// Notify sends one message to the named users.
func (n *Notifier) Notify(heading, message string, usernames ...string) {
	notifications := make([]*models.Notification, 0, len(usernames))
	for _, username := range usernames {
		notifications = append(notifications, &models.Notification{
			Username: username,
			Heading:  heading,
			Message:  message,
		})
	}

	n.dispatch(notifications)
}

// NotifyRole fans one message out to every account with the given role.
func (n *Notifier) NotifyRole(role models.Role, heading, message string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		usernames, err := n.store.ListUsernames(ctx, role)
		if err != nil {
			n.log.Warn("Notification fan-out failed", sl.Err(err))
			return
		}

		notifications := make([]*models.Notification, 0, len(usernames))
		for _, username := range usernames {
			notifications = append(notifications, &models.Notification{
				Username: username,
				Heading:  heading,
				Message:  message,
			})
		}

		if err := n.store.InsertNotifications(ctx, notifications); err != nil {
			n.log.Warn("Notification insert failed", sl.Err(err))
		}
	}()
}

func (n *Notifier) dispatch(notifications []*models.Notification) {
	if len(notifications) == 0 {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.store.InsertNotifications(ctx, notifications); err != nil {
			n.log.Warn("Notification insert failed", sl.Err(err))
		}
	}()
}

// List sweeps expired rows, then returns the user's notifications,
// newest first. The sweep is opportunistic and idempotent; a failure
// only delays retention.
func (n *Notifier) List(ctx context.Context, username string) ([]*models.Notification, error) {
	cutoff := time.Now().Add(-n.retention)
	if err := n.store.DeleteNotificationsBefore(ctx, cutoff); err != nil {
		n.log.Warn("Notification retention sweep failed", sl.Err(err))
	}

	return n.store.ListNotifications(ctx, username)
}

// Wait blocks until in-flight deliveries finish. Used at shutdown and
// in tests.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
