package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
)

type memTokenStore struct {
	byPrefix map[string]AccessToken
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{byPrefix: map[string]AccessToken{}}
}

func (m *memTokenStore) Insert(ctx context.Context, t AccessToken) error {
	m.byPrefix[t.Prefix] = t
	return nil
}

func (m *memTokenStore) Lookup(ctx context.Context, prefix string) (*AccessToken, error) {
	t, ok := m.byPrefix[prefix]
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, "no such token")
	}
	return &t, nil
}

func (m *memTokenStore) List(ctx context.Context, userID string) ([]AccessToken, error) {
	var out []AccessToken
	for _, t := range m.byPrefix {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTokenStore) Delete(ctx context.Context, userID, prefix string) error {
	delete(m.byPrefix, prefix)
	return nil
}

func TestTokenService_CreateThenAuthenticate(t *testing.T) {
	store := newMemTokenStore()
	svc := NewTokenService(store, 4) // low cost for fast tests

	prefix, plaintext, err := svc.Create(context.Background(), "alice", "ci token")
	require.NoError(t, err)
	assert.NotEmpty(t, prefix)
	assert.Contains(t, plaintext, prefix+".")

	got, err := svc.Authenticate(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
}

func TestTokenService_Authenticate_WrongSecretFails(t *testing.T) {
	store := newMemTokenStore()
	svc := NewTokenService(store, 4)

	prefix, _, err := svc.Create(context.Background(), "alice", "")
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), prefix+".not-the-secret")
	require.Error(t, err)
	assert.Equal(t, apierr.KindAuthentication, apierr.KindOf(err))
}

func TestTokenService_Authenticate_UnknownPrefixFails(t *testing.T) {
	store := newMemTokenStore()
	svc := NewTokenService(store, 4)

	_, err := svc.Authenticate(context.Background(), "nosuchprefix.secret")
	require.Error(t, err)
	assert.Equal(t, apierr.KindAuthentication, apierr.KindOf(err))
}

func TestTokenService_Authenticate_MalformedTokenFails(t *testing.T) {
	store := newMemTokenStore()
	svc := NewTokenService(store, 4)

	_, err := svc.Authenticate(context.Background(), "no-dot-here")
	require.Error(t, err)
	assert.Equal(t, apierr.KindAuthentication, apierr.KindOf(err))
}
