package session

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulab/lectura/core"
)

type fakeStore struct {
	sessions map[string]Session
	saveErr  error
	delErr   error
}

var _ Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]Session)}
}

func (s *fakeStore) Get(_ context.Context, id string) (*Session, error) {
	if sess, ok := s.sessions[id]; ok {
		return &sess, nil
	}
	return nil, ErrNotFound
}

func (s *fakeStore) Save(_ context.Context, sess *Session, _ time.Duration) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	if s.delErr != nil {
		return s.delErr
	}
	delete(s.sessions, id)
	return nil
}

type fakeSource struct {
	projections map[string]Projection
}

func (src *fakeSource) Projection(_ context.Context, userID string) (Projection, error) {
	if proj, ok := src.projections[userID]; ok {
		return proj, nil
	}
	return Projection{}, ErrUnknownAccount
}

func anaProjection() Projection {
	return Projection{UserID: "u1", Name: "Ana", Role: "estudiante", XP: 10}
}

func Test_Manager_Login_regeneratesIdentifier(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mgr := NewManager(store, &fakeSource{})

	prev := mgr.New()
	require.NoError(t, mgr.Save(ctx, prev))

	sess, err := mgr.Login(ctx, prev, anaProjection(), false)
	require.NoError(t, err)

	assert.NotEqual(t, prev.ID, sess.ID)
	assert.True(t, sess.Authenticated())

	// the pre-auth record no longer resolves
	_, err = mgr.Load(ctx, prev.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := mgr.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, anaProjection(), *got.User)
}

func Test_Manager_Login_failsClosed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mgr := NewManager(store, &fakeSource{})

	prev := mgr.New()
	require.NoError(t, mgr.Save(ctx, prev))

	// regeneration cannot proceed: no authenticated session may come out
	store.delErr = errors.New("store down")
	_, err := mgr.Login(ctx, prev, anaProjection(), false)
	require.Error(t, err)

	for _, sess := range store.sessions {
		assert.Nil(t, sess.User)
	}
}

func Test_Manager_TTL(t *testing.T) {
	mgr := NewManager(newFakeStore(), &fakeSource{})
	proj := anaProjection()

	anon := &Session{ID: "s1"}
	assert.Equal(t, core.Conf.Session.Timeout, mgr.TTL(anon))

	authed := &Session{ID: "s2", User: &proj}
	assert.Equal(t, core.Conf.Session.Timeout, mgr.TTL(authed))

	remembered := &Session{ID: "s3", User: &proj, Remember: true}
	assert.Equal(t, core.Conf.Session.RememberTimeout, mgr.TTL(remembered))

	// remember without authentication does not extend the TTL
	anonRemember := &Session{ID: "s4", Remember: true}
	assert.Equal(t, core.Conf.Session.Timeout, mgr.TTL(anonRemember))
}

func Test_Manager_flash(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mgr := NewManager(store, &fakeSource{})

	sess := mgr.New()
	require.NoError(t, mgr.FlashError(ctx, sess, "algo salió mal"))

	// the write is flushed before FlashError returns
	stored, err := mgr.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "algo salió mal", stored.ErrorMessage)

	// read-once: the clear is persisted before the messages are returned
	errMsg, successMsg, err := mgr.PopFlash(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, "algo salió mal", errMsg)
	assert.Empty(t, successMsg)

	stored, err = mgr.Load(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasFlash())

	errMsg, successMsg, err = mgr.PopFlash(ctx, stored)
	require.NoError(t, err)
	assert.Empty(t, errMsg)
	assert.Empty(t, successMsg)
}

func Test_Manager_PopFlash_nilSession(t *testing.T) {
	mgr := NewManager(newFakeStore(), &fakeSource{})
	errMsg, successMsg, err := mgr.PopFlash(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, errMsg)
	assert.Empty(t, successMsg)
}

func Test_Manager_Refresh(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	src := &fakeSource{projections: map[string]Projection{"u1": anaProjection()}}
	mgr := NewManager(store, src)

	sess, err := mgr.Login(ctx, nil, anaProjection(), false)
	require.NoError(t, err)

	t.Run("anonymous is a no-op", func(t *testing.T) {
		assert.NoError(t, mgr.Refresh(ctx, &Session{ID: "anon"}))
	})

	t.Run("projection overwritten from source", func(t *testing.T) {
		src.projections["u1"] = Projection{UserID: "u1", Name: "Ana María", Role: "estudiante", XP: 25}

		require.NoError(t, mgr.Refresh(ctx, sess))
		assert.Equal(t, "Ana María", sess.User.Name)
		assert.Equal(t, 25, sess.User.XP)

		stored, err := mgr.Load(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 25, stored.User.XP)
	})

	t.Run("vanished account destroys the session", func(t *testing.T) {
		delete(src.projections, "u1")

		err := mgr.Refresh(ctx, sess)
		assert.ErrorIs(t, err, ErrUnknownAccount)

		_, err = mgr.Load(ctx, sess.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func Test_Session_HasRole(t *testing.T) {
	proj := anaProjection()
	tests := []struct {
		name string
		sess *Session
		role string
		want bool
	}{
		{name: "nil session", sess: nil, role: "estudiante", want: false},
		{name: "anonymous", sess: &Session{ID: "s"}, role: "estudiante", want: false},
		{name: "match", sess: &Session{ID: "s", User: &proj}, role: "estudiante", want: true},
		{name: "other role", sess: &Session{ID: "s", User: &proj}, role: "profesor", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sess.HasRole(tt.role))
		})
	}
}
