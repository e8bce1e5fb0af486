package authpipe

import (
	"context"

	"github.com/sirupsen/logrus"
)

// NoticeKind identifies a user-facing condition.
type NoticeKind int

const (
	// NoticeForbidden is raised for every 403 response.
	NoticeForbidden NoticeKind = iota
	// NoticeSessionCleared is raised when the pipeline or a failed refresh signs the session out.
	NoticeSessionCleared
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeForbidden:
		return "forbidden"
	case NoticeSessionCleared:
		return "session_cleared"
	default:
		return "unknown"
	}
}

// Notice is what a UI layer renders as a toast or banner.
type Notice struct {
	Kind       NoticeKind
	Message    string
	RequestID  string
	StatusCode int
	Err        error
}

// Notifier receives user-facing notices. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, notice Notice)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, notice Notice) {
	f(ctx, notice)
}

// LogNotifier writes notices to a logrus logger. It is the default notifier.
type LogNotifier struct {
	Logger logrus.FieldLogger
}

// Notify logs notice at warn level.
func (n LogNotifier) Notify(_ context.Context, notice Notice) {
	logger := n.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fields := logrus.Fields{
		"notice": notice.Kind.String(),
	}
	if notice.RequestID != "" {
		fields["request_id"] = notice.RequestID
	}
	if notice.StatusCode != 0 {
		fields["status"] = notice.StatusCode
	}
	entry := logger.WithFields(fields)
	if notice.Err != nil {
		entry = entry.WithError(notice.Err)
	}
	entry.Warn(notice.Message)
}
