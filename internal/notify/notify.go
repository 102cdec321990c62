// Package notify delivers user-visible notifications for recoverable build
// failures: a desktop notification when available, the log otherwise.
package notify

import (
	"context"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/conneroisu/sitepipe/internal/logging"
)

// Notifier shows a titled message to the user.
type Notifier interface {
	Notify(title, message string) error
}

// Desktop sends notifications through the platform notification service.
type Desktop struct {
	// AppName prefixes every title.
	AppName string
}

// Notify implements Notifier.
func (d Desktop) Notify(title, message string) error {
	if d.AppName != "" {
		title = d.AppName + ": " + title
	}
	return beeep.Notify(title, message, "")
}

// Log writes notifications to a logger.
type Log struct {
	Logger logging.Logger
}

// Notify implements Notifier.
func (l Log) Notify(title, message string) error {
	l.Logger.Warn(context.Background(), nil, message, "notification", title)
	return nil
}

// Fallback tries each notifier in order and stops at the first success.
type Fallback []Notifier

// Notify implements Notifier.
func (f Fallback) Notify(title, message string) error {
	var err error
	for _, n := range f {
		if err = n.Notify(title, message); err == nil {
			return nil
		}
	}
	return err
}

// New returns the notifier for the given settings. Desktop notifications
// always fall back to the log so a headless machine still surfaces errors.
func New(desktop bool, logger logging.Logger) Notifier {
	logNotifier := Log{Logger: logger.WithComponent("notify")}
	if !desktop {
		return logNotifier
	}
	return Fallback{Desktop{AppName: "sitepipe"}, logNotifier}
}

// Notification is one recorded message.
type Notification struct {
	Title   string
	Message string
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier.
func (r *Recorder) Notify(title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Title: title, Message: message})
	return nil
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}
