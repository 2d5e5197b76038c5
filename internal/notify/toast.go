package notify

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the severity of a toast.
type Kind string

const (
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// ParseKind maps a server-provided type to a Kind. Unknown values are info.
func ParseKind(s string) Kind {
	switch k := Kind(s); k {
	case KindSuccess, KindInfo, KindWarning, KindError:
		return k
	}
	return KindInfo
}

// DefaultDuration is how long a toast stays visible unless overridden.
const DefaultDuration = 4 * time.Second

// Action is an optional toast button.
type Action struct {
	Label   string
	OnClick func()
}

// Toast is one notification.
type Toast struct {
	ID        string
	Kind      Kind
	Title     string
	Message   string
	Icon      string
	Duration  time.Duration // 0 keeps the toast until dismissed
	Action    *Action
	CreatedAt time.Time
}

// ExpiresAt returns when the toast auto-dismisses, zero when it never does.
func (t Toast) ExpiresAt() time.Time {
	if t.Duration <= 0 {
		return time.Time{}
	}
	return t.CreatedAt.Add(t.Duration)
}

// Expired reports whether the toast has auto-dismissed at now.
func (t Toast) Expired(now time.Time) bool {
	exp := t.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// Option customizes a toast.
type Option func(*Toast)

// WithTitle sets a title shown above the message.
func WithTitle(title string) Option {
	return func(t *Toast) { t.Title = title }
}

// WithIcon sets the toast icon.
func WithIcon(icon string) Option {
	return func(t *Toast) { t.Icon = icon }
}

// WithDuration overrides DefaultDuration. Zero keeps the toast until dismissed.
func WithDuration(d time.Duration) Option {
	return func(t *Toast) { t.Duration = d }
}

// WithAction adds a button.
func WithAction(label string, onClick func()) Option {
	return func(t *Toast) { t.Action = &Action{Label: label, OnClick: onClick} }
}

// WithID sets a stable ID so a later toast replaces this one.
func WithID(id string) Option {
	return func(t *Toast) { t.ID = id }
}

func withCreatedAt(at time.Time) Option {
	return func(t *Toast) { t.CreatedAt = at }
}

// New builds a toast. IDs default to a random UUID.
func New(kind Kind, message string, opts ...Option) Toast {
	t := Toast{
		Kind:      kind,
		Message:   message,
		Duration:  DefaultDuration,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&t)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return t
}
