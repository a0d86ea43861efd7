package notifications

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"recap/internal/config"
	"recap/internal/logging"
	"recap/internal/queue"
	"recap/internal/stage"
)

// Publisher backend names.
const (
	BackendNtfy  = "ntfy"
	BackendNotes = "notes"
	BackendEmail = "email"
)

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, *queue.Job) error { return nil }

// Register adds the ntfy, notes and email publishers to reg. An ntfy backend
// without a topic, or an email backend without an SMTP host, resolves to a
// no-op so the default publish list stays valid.
func Register(reg *stage.Registry, cfg *config.Config, logger *zap.Logger) error {
	if reg == nil || cfg == nil {
		return errors.New("notifications: registry and config are required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := reg.RegisterPublisher(BackendNtfy, func() (stage.Publisher, error) {
		ntfy := NewNtfy(cfg.Notifications)
		if ntfy == nil {
			logger.Debug("ntfy topic not configured; notifications disabled",
				logging.String(logging.FieldComponent, "notifications"))
			return noopPublisher{}, nil
		}
		return ntfy, nil
	}); err != nil {
		return err
	}
	if err := reg.RegisterPublisher(BackendNotes, func() (stage.Publisher, error) {
		return NewNotes(cfg.Notes)
	}); err != nil {
		return err
	}
	return reg.RegisterPublisher(BackendEmail, func() (stage.Publisher, error) {
		email := NewEmail(cfg.Email)
		if email == nil {
			logger.Debug("smtp host not configured; email publishing disabled",
				logging.String(logging.FieldComponent, "notifications"))
			return noopPublisher{}, nil
		}
		return email, nil
	})
}
