package endpointcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/identity"
)

type countingAuth struct {
	calls   int
	outcome *identity.Outcome
	err     error
}

func (c *countingAuth) AuthenticateDevice(ctx context.Context, app, device string, cred identity.Credential, as string) (*identity.Outcome, error) {
	c.calls++
	return c.outcome, c.err
}

func TestAuthCache_ServesSecondCallFromCache(t *testing.T) {
	inner := &countingAuth{outcome: &identity.Outcome{App: "app1", Device: "dev1"}}
	cache := NewAuthCache(10, time.Minute, inner)

	_, err := cache.AuthenticateDevice(context.Background(), "app1", "dev1", identity.Password("p"), "")
	require.NoError(t, err)
	_, err = cache.AuthenticateDevice(context.Background(), "app1", "dev1", identity.Password("p"), "")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
}

func TestAuthCache_RefreshesAfterTTLExpires(t *testing.T) {
	inner := &countingAuth{outcome: &identity.Outcome{App: "app1", Device: "dev1"}}
	cache := NewAuthCache(10, time.Minute, inner)
	start := time.Now()
	cache.now = func() time.Time { return start }

	_, err := cache.AuthenticateDevice(context.Background(), "app1", "dev1", identity.Password("p"), "")
	require.NoError(t, err)

	cache.now = func() time.Time { return start.Add(2 * time.Minute) }
	_, err = cache.AuthenticateDevice(context.Background(), "app1", "dev1", identity.Password("p"), "")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestAuthCache_NeverCachesFailure(t *testing.T) {
	inner := &countingAuth{err: assert.AnError}
	cache := NewAuthCache(10, time.Minute, inner)

	_, _ = cache.AuthenticateDevice(context.Background(), "app1", "dev1", identity.Password("p"), "")
	_, _ = cache.AuthenticateDevice(context.Background(), "app1", "dev1", identity.Password("p"), "")

	assert.Equal(t, 2, inner.calls)
}
