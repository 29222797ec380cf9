package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/edulab/lectura/core"
)

// ErrUnknownAccount is reported by a ProjectionSource (and propagated by
// Refresh) when the session's account no longer exists in storage.
var ErrUnknownAccount = errors.New("account no longer exists")

// ProjectionSource assembles the current account snapshot for a user id.
type ProjectionSource interface {
	Projection(ctx context.Context, userID string) (Projection, error)
}

// Manager owns all session state transitions. No other component writes to
// the store directly.
type Manager struct {
	store Store
	src   ProjectionSource
}

func NewManager(store Store, src ProjectionSource) *Manager {
	return &Manager{store: store, src: src}
}

// New returns an unsaved anonymous session with a fresh identifier.
func (m *Manager) New() *Session {
	return &Session{ID: uuid.NewString()}
}

func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// TTL returns the cookie/store max-age for the session: long-lived when the
// user asked to be remembered, short inactivity-based expiry otherwise.
func (m *Manager) TTL(sess *Session) time.Duration {
	if sess.Authenticated() && sess.Remember {
		return core.Conf.Session.RememberTimeout
	}
	return core.Conf.Session.Timeout
}

// Save persists the session and re-arms its TTL (rolling expiry).
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	return m.store.Save(ctx, sess, m.TTL(sess))
}

// Regenerate destroys prev (if any) and returns an unsaved session with a
// fresh identifier, decoupled from any pre-auth session. A store failure here
// aborts authentication: the caller must fail closed, not open.
func (m *Manager) Regenerate(ctx context.Context, prev *Session) (*Session, error) {
	if prev != nil {
		if err := m.store.Delete(ctx, prev.ID); err != nil {
			return nil, pkgerrors.Wrap(err, "destroying pre-auth session")
		}
	}
	return m.New(), nil
}

// Login sequences the fixation defense: the identifier is regenerated first,
// and session data is written only after regeneration succeeded.
func (m *Manager) Login(ctx context.Context, prev *Session, proj Projection, remember bool) (*Session, error) {
	sess, err := m.Regenerate(ctx, prev)
	if err != nil {
		return nil, err
	}
	sess.User = &proj
	sess.Remember = remember
	if err := m.Save(ctx, sess); err != nil {
		return nil, pkgerrors.Wrap(err, "saving authenticated session")
	}
	return sess, nil
}

// Destroy invalidates the server-side record; the caller clears the cookie.
func (m *Manager) Destroy(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	return m.store.Delete(ctx, sess.ID)
}

// Refresh overwrites the session projection with the account's current
// display/role/avatar/XP fields, so role changes and profile edits take
// effect without re-login. If the account vanished the session is destroyed
// and ErrUnknownAccount returned.
func (m *Manager) Refresh(ctx context.Context, sess *Session) error {
	if !sess.Authenticated() {
		return nil
	}
	proj, err := m.src.Projection(ctx, sess.User.UserID)
	if err != nil {
		if errors.Is(err, ErrUnknownAccount) {
			if derr := m.Destroy(ctx, sess); derr != nil {
				return pkgerrors.Wrap(derr, "destroying orphaned session")
			}
			return ErrUnknownAccount
		}
		return pkgerrors.Wrap(err, "refreshing session projection")
	}
	sess.User = &proj
	return m.Save(ctx, sess)
}

// PopFlash consumes the one-shot messages: the cleared state is persisted
// before the messages are handed to the caller, so they cannot reappear.
func (m *Manager) PopFlash(ctx context.Context, sess *Session) (errMsg, successMsg string, err error) {
	if sess == nil || !sess.HasFlash() {
		return "", "", nil
	}
	errMsg, successMsg = sess.ErrorMessage, sess.SuccessMessage
	sess.ErrorMessage, sess.SuccessMessage = "", ""
	if err = m.Save(ctx, sess); err != nil {
		return "", "", pkgerrors.Wrap(err, "clearing flash messages")
	}
	return errMsg, successMsg, nil
}

// FlashError writes a one-shot error message. The store write completes
// before this returns, so the message survives the following redirect.
func (m *Manager) FlashError(ctx context.Context, sess *Session, msg string) error {
	sess.ErrorMessage = msg
	return m.Save(ctx, sess)
}

// FlashSuccess is the success-side counterpart of FlashError.
func (m *Manager) FlashSuccess(ctx context.Context, sess *Session, msg string) error {
	sess.SuccessMessage = msg
	return m.Save(ctx, sess)
}
