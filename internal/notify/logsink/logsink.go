// Package logsink delivers fired reminders into the structured log. It is
// the fallback when no chat backend is configured.
package logsink

import (
	"context"

	"remindd/internal/notify"
	logx "remindd/pkg/logx"
)

type Deliverer struct {
	log logx.Logger
}

func New(log logx.Logger) *Deliverer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Deliverer{log: log.With(logx.String("comp", "logsink"))}
}

func (d *Deliverer) Name() string { return "log" }

func (d *Deliverer) Permission(context.Context) (notify.Permission, error) {
	return notify.PermissionGranted, nil
}

func (d *Deliverer) Deliver(_ context.Context, m notify.Message) error {
	fields := []logx.Field{
		logx.String("id", m.ReminderID),
		logx.String("handle", m.Handle),
		logx.String("title", m.Title),
		logx.String("priority", string(m.Priority)),
		logx.Time("fire_at", m.FireAt),
	}
	if m.Body != "" {
		fields = append(fields, logx.String("body", m.Body))
	}
	d.log.Info("reminder due", fields...)
	return nil
}
