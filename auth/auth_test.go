package auth

import (
	"context"
	"testing"
	"time"

	"github.com/fearlessjoy/fridaynz/apperrors"
	"github.com/fearlessjoy/fridaynz/docstore/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(memstore.New(), NewJWTService("test-secret", 0), nil)
}

func TestSignUpAndSignIn(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created, err := svc.SignUp(ctx, "Jane.Doe@Example.com ", "Sup3rSecret!")
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@example.com", created.Email)
	assert.Equal(t, "Jane Doe", created.DisplayName)

	identity, token, err := svc.SignIn(ctx, "jane.doe@example.com", "Sup3rSecret!")
	require.NoError(t, err)
	assert.Equal(t, created.ID, identity.ID)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, claims.UserID)
	assert.Equal(t, identity.Email, claims.Email)
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "jane@example.com", "Sup3rSecret!")
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, "jane@example.com", "0therSecret!")
	assert.Error(t, err)
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "jane@example.com", "Sup3rSecret!")
	require.NoError(t, err)

	_, _, err = svc.SignIn(ctx, "jane@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, _, err = svc.SignIn(ctx, "nobody@example.com", "Sup3rSecret!")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestSignIn_ThrottlesAfterRepeatedFailures(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "jane@example.com", "Sup3rSecret!")
	require.NoError(t, err)

	for i := 0; i < maxFailedAttempts; i++ {
		_, _, err := svc.SignIn(ctx, "jane@example.com", "wrong-password")
		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	}

	// Even the correct password is refused while throttled.
	_, _, err = svc.SignIn(ctx, "jane@example.com", "Sup3rSecret!")
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
}

func TestSignOut_RevokesToken(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	_, err := svc.SignUp(ctx, "jane@example.com", "Sup3rSecret!")
	require.NoError(t, err)
	_, token, err := svc.SignIn(ctx, "jane@example.com", "Sup3rSecret!")
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx))

	assert.Nil(t, svc.CurrentIdentity())
	_, err = svc.ValidateToken(ctx, token)
	assert.Error(t, err, "revoked token must fail validation before expiry")
}

func TestOnAuthStateChange_ImmediateInvoke(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	identity, err := svc.SignUp(ctx, "jane@example.com", "Sup3rSecret!")
	require.NoError(t, err)

	var observed *Identity
	unsubscribe := svc.OnAuthStateChange(func(current *Identity) {
		observed = current
	})
	defer unsubscribe()

	require.NotNil(t, observed, "late subscribers observe the current state immediately")
	assert.Equal(t, identity.ID, observed.ID)
}

func TestOnAuthStateChange_UnsubscribeStopsDelivery(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	calls := 0
	unsubscribe := svc.OnAuthStateChange(func(*Identity) { calls++ })
	require.Equal(t, 1, calls)
	unsubscribe()

	_, err := svc.SignUp(ctx, "jane@example.com", "Sup3rSecret!")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWaitForIdentity_ResolvesOnSignIn(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		if _, err := svc.SignUp(ctx, "jane@example.com", "Sup3rSecret!"); err != nil {
			panic(err)
		}
	}()

	identity, err := WaitForIdentity(ctx, svc, DefaultIdentityWait)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", identity.Email)
}

func TestWaitForIdentity_CurrentIdentityShortCircuits(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	created, err := svc.SignUp(ctx, "jane@example.com", "Sup3rSecret!")
	require.NoError(t, err)

	identity, err := WaitForIdentity(ctx, svc, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, created.ID, identity.ID)
}

func TestWaitForIdentity_TimesOut(t *testing.T) {
	svc := newTestService()

	_, err := WaitForIdentity(context.Background(), svc, 20*time.Millisecond)
	assert.Error(t, err)
}

func TestDeleteIdentity_ClearsCurrentSession(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	identity, err := svc.SignUp(ctx, "jane@example.com", "Sup3rSecret!")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteIdentity(ctx, identity.ID))
	assert.Nil(t, svc.CurrentIdentity())

	_, _, err = svc.SignIn(ctx, "jane@example.com", "Sup3rSecret!")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestMemoryBlacklist_Expiry(t *testing.T) {
	bl := NewMemoryBlacklist()
	ctx := context.Background()

	require.NoError(t, bl.Revoke(ctx, "token-a", 50*time.Millisecond))

	revoked, err := bl.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.True(t, revoked)

	time.Sleep(60 * time.Millisecond)
	revoked, err = bl.IsRevoked(ctx, "token-a")
	require.NoError(t, err)
	assert.False(t, revoked)
}
