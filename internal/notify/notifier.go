package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const mailTimeout = 30 * time.Second

// Mailer delivers a single email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, body string) error {
	zap.L().Info("Email sent",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_length", len(body)))
	return nil
}

// Notifier fans out user-facing side effects. Every call returns immediately
// and failures are logged, never returned. A nil Notifier drops everything.
type Notifier struct {
	mailer    Mailer
	publisher Publisher
	wg        sync.WaitGroup
}

func NewNotifier(mailer Mailer, publisher Publisher) *Notifier {
	return &Notifier{mailer: mailer, publisher: publisher}
}

// Mail sends an email in the background.
func (n *Notifier) Mail(to, subject, body string) {
	if n == nil || n.mailer == nil || to == "" {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("Mailer panicked", zap.Any("panic", r), zap.String("to", to))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()

		if err := n.mailer.Send(ctx, to, subject, body); err != nil {
			zap.L().Warn("Failed to send email",
				zap.String("to", to),
				zap.String("subject", subject),
				zap.Error(err))
		}
	}()
}

// Publish pushes an event to connected clients.
func (n *Notifier) Publish(ev Event) {
	if n == nil || n.publisher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Publisher panicked", zap.Any("panic", r), zap.String("type", ev.Type))
		}
	}()
	n.publisher.Publish(ev)
}

// Wait blocks until in-flight emails finish.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
