package engine

import (
	"context"

	"civickit/core"
)

// Session owns the per-user presentation state for one client session.
// It exists so level-up visibility lives in an object with a defined
// lifecycle instead of ambient globals: created at session start, closed
// at session end.
type Session struct {
	svc      *RewardService
	user     core.UserID
	notifier *Notifier
}

func NewSession(svc *RewardService, user core.UserID, show ShowFunc) (*Session, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return nil, err
	}
	n, err := NewNotifier(svc, normalized, show)
	if err != nil {
		return nil, err
	}
	return &Session{svc: svc, user: normalized, notifier: n}, nil
}

func (s *Session) User() core.UserID   { return s.user }
func (s *Session) Notifier() *Notifier { return s.notifier }

// Resume re-evaluates the stored profile and re-surfaces an
// unacknowledged level-up from a previous session.
func (s *Session) Resume(ctx context.Context) error {
	ev, ok, err := s.svc.PendingLevelUp(ctx, s.user)
	if err != nil {
		return err
	}
	if ok {
		s.notifier.handle(ev)
	}
	return nil
}

// Close drops pending presentation state and detaches from the bus. The
// persisted marker is untouched; an unacknowledged level-up re-fires on
// the next Resume.
func (s *Session) Close() {
	s.notifier.Reset()
	s.notifier.Close()
}
