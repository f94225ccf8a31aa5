// Package telegram delivers fired reminders to a Telegram chat and turns
// inline button presses into interactions.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"remindd/internal/notify"
	"remindd/internal/reminder"
	rtsup "remindd/internal/runtime/supervisor"
	logx "remindd/pkg/logx"
)

const callbackPrefix = "rem"

// Config configures the bot.
type Config struct {
	Token       string
	ChatID      int64
	ThreadID    int
	LogChatID   int64 // 0 means ChatID
	PollTimeout time.Duration
	// Offline skips the getMe handshake; used by tests.
	Offline bool
}

// Deliverer implements notify.Deliverer and logx.Sender.
type Deliverer struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	hmu     sync.RWMutex
	handler func(notify.Interaction)

	runMu sync.Mutex
	sup   *rtsup.Supervisor
}

var _ notify.Deliverer = (*Deliverer)(nil)

func New(cfg Config, log logx.Logger) (*Deliverer, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Poller:  &tele.LongPoller{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	d := &Deliverer{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b}
	b.Handle(tele.OnCallback, d.onCallback)
	return d, nil
}

func (d *Deliverer) Name() string { return "telegram" }

// Permission is granted once a destination chat is configured.
func (d *Deliverer) Permission(ctx context.Context) (notify.Permission, error) {
	_ = ctx
	if d.cfg.ChatID == 0 {
		return notify.PermissionDenied, nil
	}
	return notify.PermissionGranted, nil
}

func (d *Deliverer) SetInteractionHandler(fn func(notify.Interaction)) {
	d.hmu.Lock()
	d.handler = fn
	d.hmu.Unlock()
}

// Start runs the long-poll loop until ctx ends or Stop is called.
func (d *Deliverer) Start(ctx context.Context) {
	d.runMu.Lock()
	defer d.runMu.Unlock()
	if d.sup != nil {
		return
	}
	d.sup = rtsup.New(ctx, rtsup.WithLogger(d.log))
	d.sup.GoRestart0("telegram.poll", func(c context.Context) {
		stopped := make(chan struct{})
		go func() {
			select {
			case <-c.Done():
				d.bot.Stop()
			case <-stopped:
			}
		}()
		d.log.Info("polling started")
		d.bot.Start() // blocks until Stop
		close(stopped)
	})
}

// Stop ends polling. A hanging getUpdates call is abandoned after a short grace.
func (d *Deliverer) Stop(ctx context.Context) error {
	d.runMu.Lock()
	sup := d.sup
	d.sup = nil
	d.runMu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()

	grace, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(grace); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	d.log.Info("polling stopped")
	return nil
}

func (d *Deliverer) Deliver(ctx context.Context, m notify.Message) error {
	_ = ctx
	if d.cfg.ChatID == 0 {
		return notify.ErrNoDestination
	}
	opt := &tele.SendOptions{ThreadID: d.cfg.ThreadID, DisableWebPagePreview: true}
	if m.Actions {
		opt.ReplyMarkup = keyboard(m.ReminderID)
	}
	_, err := d.bot.Send(&tele.Chat{ID: d.cfg.ChatID}, Render(m), opt)
	return err
}

// SendLog forwards a formatted log line to the log chat.
func (d *Deliverer) SendLog(ctx context.Context, text string) error {
	_ = ctx
	chat := d.cfg.LogChatID
	if chat == 0 {
		chat = d.cfg.ChatID
	}
	if chat == 0 {
		return notify.ErrNoDestination
	}
	_, err := d.bot.Send(&tele.Chat{ID: chat}, text, &tele.SendOptions{ThreadID: d.cfg.ThreadID, DisableWebPagePreview: true})
	return err
}

func (d *Deliverer) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	in, ok := ParseCallbackData(cb.Data)
	if !ok {
		return c.Respond(&tele.CallbackResponse{Text: "Unknown action"})
	}

	d.hmu.RLock()
	fn := d.handler
	d.hmu.RUnlock()
	if fn == nil {
		return c.Respond(&tele.CallbackResponse{Text: "Not ready"})
	}
	fn(in)
	return c.Respond(&tele.CallbackResponse{Text: ackText(in.Action)})
}

// CallbackData encodes an action button payload as "rem|<action>|<id>".
func CallbackData(a notify.Action, reminderID string) string {
	return callbackPrefix + "|" + string(a) + "|" + reminderID
}

// ParseCallbackData decodes a button payload produced by CallbackData.
func ParseCallbackData(data string) (notify.Interaction, bool) {
	parts := strings.SplitN(strings.TrimSpace(data), "|", 3)
	if len(parts) != 3 || parts[0] != callbackPrefix || parts[2] == "" {
		return notify.Interaction{}, false
	}
	a, ok := notify.ParseAction(parts[1])
	if !ok {
		return notify.Interaction{}, false
	}
	return notify.Interaction{ReminderID: parts[2], Action: a}, true
}

func keyboard(id string) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{{
		{Text: "Open", Data: CallbackData(notify.ActionOpen, id)},
		{Text: "Snooze 10m", Data: CallbackData(notify.ActionSnooze, id)},
		{Text: "Done", Data: CallbackData(notify.ActionDone, id)},
	}}}
}

func ackText(a notify.Action) string {
	switch a {
	case notify.ActionSnooze:
		return "Snoozed for 10 minutes"
	case notify.ActionDone:
		return "Marked done"
	default:
		return "Opened"
	}
}

// Render formats a message as plain text.
func Render(m notify.Message) string {
	var b strings.Builder
	switch m.Priority {
	case reminder.PriorityHigh:
		b.WriteString("‼️ ")
	case reminder.PriorityLow:
		b.WriteString("· ")
	default:
		b.WriteString("⏰ ")
	}
	b.WriteString(m.Title)
	if body := strings.TrimSpace(m.Body); body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	if ref := targetRef(m.Target); ref != "" {
		b.WriteString("\n\n")
		b.WriteString(ref)
	}
	return b.String()
}

func targetRef(t reminder.Target) string {
	switch t.Type {
	case reminder.TargetPath:
		if t.Path != "" {
			return "📄 " + t.Path
		}
	case reminder.TargetQuery:
		if t.Query != "" {
			return "🔎 " + t.Query
		}
	case reminder.TargetNote:
		if t.NoteID != "" {
			return fmt.Sprintf("📝 note %s", t.NoteID)
		}
	}
	return ""
}
