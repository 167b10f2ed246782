package mail

import (
	"context"
	"log/slog"
	"sync"
)

// Sent is one message captured by [Outbox].
type Sent struct {
	To      string
	Subject string
	HTML    string
}

// Outbox keeps every message in memory. Err, when set, is returned from Send
// after the message is recorded.
type Outbox struct {
	mu   sync.Mutex
	sent []Sent
	Err  error
}

func (o *Outbox) Send(_ context.Context, to, subject, htmlBody string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, Sent{To: to, Subject: subject, HTML: htmlBody})
	return o.Err
}

// Messages returns a copy of everything sent so far.
func (o *Outbox) Messages() []Sent {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Sent, len(o.sent))
	copy(out, o.sent)
	return out
}

// Last returns the most recent message sent to to.
func (o *Outbox) Last(to string) (Sent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].To == to {
			return o.sent[i], true
		}
	}
	return Sent{}, false
}

// LogSender writes messages to a slog.Logger instead of delivering them.
// IncludeBody logs the rendered HTML, which carries live links and codes;
// enable it only for local development.
type LogSender struct {
	Logger      *slog.Logger
	IncludeBody bool
}

func (s *LogSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []slog.Attr{slog.String("to", to), slog.String("subject", subject)}
	if s.IncludeBody {
		attrs = append(attrs, slog.String("html", htmlBody))
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "mail not delivered (log sender)", attrs...)
	return nil
}
