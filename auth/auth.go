// Package auth is the authentication collaborator: identity creation and
// sign-in against the identities collection, JWT session tokens, auth-state
// listeners, and the privileged identity-deletion operation used by the relay.
package auth

import (
	"context"
	"fmt"
	"time"
)

// Identity is the authenticated principal. The ID is assigned at account
// creation and immutable thereafter; the member profile shares it.
type Identity struct {
	ID          string `bson:"_id" json:"id"`
	Email       string `bson:"email" json:"email"`
	DisplayName string `bson:"displayName,omitempty" json:"displayName,omitempty"`
}

// Client is the surface the rest of the core consumes.
type Client interface {
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignIn(ctx context.Context, email, password string) (Identity, string, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn func(*Identity)) (unsubscribe func())
	CurrentIdentity() *Identity
	DeleteIdentity(ctx context.Context, userID string) error
}

// DefaultIdentityWait bounds how long WaitForIdentity blocks before giving
// up; reads that need an identity must not hang forever when none arrives.
const DefaultIdentityWait = 5 * time.Second

// WaitForIdentity resolves as soon as the client reports a signed-in
// identity, or fails after the timeout. The state listener is released on
// both the success and the timeout path.
func WaitForIdentity(ctx context.Context, client Client, timeout time.Duration) (Identity, error) {
	if current := client.CurrentIdentity(); current != nil {
		return *current, nil
	}

	found := make(chan Identity, 1)
	unsubscribe := client.OnAuthStateChange(func(identity *Identity) {
		if identity != nil {
			select {
			case found <- *identity:
			default:
			}
		}
	})
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case identity := <-found:
		return identity, nil
	case <-timer.C:
		return Identity{}, fmt.Errorf("no authenticated identity after %s", timeout)
	case <-ctx.Done():
		return Identity{}, ctx.Err()
	}
}
