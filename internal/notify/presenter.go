package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Presenter displays toasts.
type Presenter interface {
	// Show displays a toast and returns it.
	Show(kind Kind, message string, opts ...Option) Toast

	// Dismiss hides a toast before it expires.
	Dismiss(id string)
}

// LogPresenter writes toasts to a structured logger.
type LogPresenter struct {
	logger *slog.Logger
}

// NewLogPresenter creates a presenter that logs every toast.
func NewLogPresenter(logger *slog.Logger) *LogPresenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPresenter{logger: logger}
}

// Show logs the toast at a level matching its kind.
func (p *LogPresenter) Show(kind Kind, message string, opts ...Option) Toast {
	t := New(kind, message, opts...)

	attrs := []any{"kind", string(t.Kind), "id", t.ID}
	if t.Title != "" {
		attrs = append(attrs, "title", t.Title)
	}
	if t.Icon != "" {
		attrs = append(attrs, "icon", t.Icon)
	}
	if t.Action != nil {
		attrs = append(attrs, "action", t.Action.Label)
	}

	p.logger.Log(context.Background(), level(t.Kind), t.Message, attrs...)
	return t
}

// Dismiss is a no-op for logs.
func (p *LogPresenter) Dismiss(id string) {}

func level(k Kind) slog.Level {
	switch k {
	case KindError:
		return slog.LevelError
	case KindWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// DefaultMaxVisible is how many toasts a Stack keeps.
const DefaultMaxVisible = 3

// Stack keeps the visible toasts, newest last. It is safe for concurrent use.
type Stack struct {
	mu     sync.Mutex
	toasts []Toast
	max    int
	now    func() time.Time

	onChange func([]Toast)
}

// NewStack creates a stack that keeps at most max toasts (DefaultMaxVisible when < 1).
func NewStack(max int) *Stack {
	if max < 1 {
		max = DefaultMaxVisible
	}
	return &Stack{max: max, now: time.Now}
}

// OnChange registers a callback that receives the visible toasts after each change.
func (s *Stack) OnChange(fn func([]Toast)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Show adds a toast. A toast with the same ID is replaced and moves to the top.
func (s *Stack) Show(kind Kind, message string, opts ...Option) Toast {
	t := New(kind, message, append([]Option{withCreatedAt(s.now())}, opts...)...)

	s.mu.Lock()
	s.pruneLocked()
	s.removeLocked(t.ID)
	s.toasts = append(s.toasts, t)
	if len(s.toasts) > s.max {
		s.toasts = s.toasts[len(s.toasts)-s.max:]
	}
	visible, fn := s.visibleLocked(), s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(visible)
	}
	return t
}

// Dismiss removes a toast.
func (s *Stack) Dismiss(id string) {
	s.mu.Lock()
	removed := s.removeLocked(id)
	visible, fn := s.visibleLocked(), s.onChange
	s.mu.Unlock()

	if removed && fn != nil {
		fn(visible)
	}
}

// Click runs the action of a visible toast and dismisses it. It reports
// whether an action ran.
func (s *Stack) Click(id string) bool {
	s.mu.Lock()
	s.pruneLocked()
	var action *Action
	for _, t := range s.toasts {
		if t.ID == id {
			action = t.Action
			break
		}
	}
	s.mu.Unlock()

	if action == nil {
		return false
	}
	s.Dismiss(id)
	if action.OnClick != nil {
		action.OnClick()
	}
	return true
}

// Visible returns the unexpired toasts, newest last.
func (s *Stack) Visible() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	return s.visibleLocked()
}

// Current returns the most recent visible toast.
func (s *Stack) Current() (Toast, bool) {
	v := s.Visible()
	if len(v) == 0 {
		return Toast{}, false
	}
	return v[len(v)-1], true
}

func (s *Stack) pruneLocked() {
	now := s.now()
	kept := s.toasts[:0]
	for _, t := range s.toasts {
		if !t.Expired(now) {
			kept = append(kept, t)
		}
	}
	s.toasts = kept
}

func (s *Stack) removeLocked(id string) bool {
	for i, t := range s.toasts {
		if t.ID == id {
			s.toasts = append(s.toasts[:i], s.toasts[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Stack) visibleLocked() []Toast {
	out := make([]Toast, len(s.toasts))
	copy(out, s.toasts)
	return out
}

// Fanout shows each toast on several presenters with the same ID.
type Fanout []Presenter

// Show presents the toast everywhere and returns it.
func (f Fanout) Show(kind Kind, message string, opts ...Option) Toast {
	t := New(kind, message, opts...)
	shared := append(append([]Option(nil), opts...), WithID(t.ID), withCreatedAt(t.CreatedAt))
	for _, p := range f {
		p.Show(kind, message, shared...)
	}
	return t
}

// Dismiss dismisses the toast everywhere.
func (f Fanout) Dismiss(id string) {
	for _, p := range f {
		p.Dismiss(id)
	}
}
