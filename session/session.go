// Package session tracks the authenticated identity and its denormalized
// member profile. It owns the identity-change lifecycle: synchronizers
// register hooks here and are torn down/rebuilt whenever the identity flips.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fearlessjoy/fridaynz/apperrors"
	"github.com/fearlessjoy/fridaynz/auth"
	"github.com/fearlessjoy/fridaynz/docstore"
	"github.com/fearlessjoy/fridaynz/logging"
	"github.com/fearlessjoy/fridaynz/models"
)

const membersCollection = "members"

// After this many consecutive refresh failures the store stops retrying and
// keeps surfacing the last error until an identity change resets the count.
const maxRefreshFailures = 3

// ErrRefreshGaveUp wraps the last refresh error once the failure cap is hit.
var ErrRefreshGaveUp = errors.New("profile refresh gave up after repeated failures")

type Store struct {
	authClient auth.Client
	docs       docstore.Store

	mu              sync.Mutex
	identity        *auth.Identity
	profile         *models.Member
	initialized     bool
	refreshing      bool
	refreshFailures int
	lastRefreshErr  error
	hooks           []func(*auth.Identity)
	unsubscribe     func()
}

func NewStore(authClient auth.Client, docs docstore.Store) *Store {
	return &Store{authClient: authClient, docs: docs}
}

// Init binds to the auth state stream. Initialized flips true on the first
// callback, whether or not anyone is signed in.
func (s *Store) Init() {
	s.unsubscribe = s.authClient.OnAuthStateChange(func(identity *auth.Identity) {
		s.mu.Lock()
		s.identity = identity
		// Profile must be gone before any consumer renders tier-gated
		// controls against a signed-out session.
		if identity == nil {
			s.profile = nil
		}
		s.initialized = true
		s.refreshFailures = 0
		s.lastRefreshErr = nil
		hooks := make([]func(*auth.Identity), len(s.hooks))
		copy(hooks, s.hooks)
		s.mu.Unlock()

		for _, hook := range hooks {
			hook(identity)
		}
	})
}

// Teardown releases the auth listener.
func (s *Store) Teardown() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// OnIdentityChange registers a hook invoked on every sign-in/sign-out.
// Synchronizers use this to rebuild their subscriptions against the new
// scope instead of running against a stale one.
func (s *Store) OnIdentityChange(hook func(*auth.Identity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *Store) CurrentIdentity() *auth.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return nil
	}
	copied := *s.identity
	return &copied
}

func (s *Store) Profile() *models.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return nil
	}
	copied := *s.profile
	return &copied
}

func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// RefreshProfile loads the member record for the current identity. It is
// idempotent, refuses to run concurrently with itself, and stops retrying
// after maxRefreshFailures consecutive failures. A missing record for a
// fresh identity is not an error: a default profile is synthesized from the
// identity itself and persisted.
func (s *Store) RefreshProfile(ctx context.Context) error {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return nil
	}
	if s.identity == nil {
		s.mu.Unlock()
		return fmt.Errorf("no authenticated identity")
	}
	if s.refreshFailures >= maxRefreshFailures {
		err := s.lastRefreshErr
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrRefreshGaveUp, err)
	}
	s.refreshing = true
	identity := *s.identity
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.refreshing = false
		s.mu.Unlock()
	}()

	var member models.Member
	err := s.docs.Get(ctx, membersCollection, identity.ID, &member)
	if errors.Is(err, apperrors.ErrNotFound) {
		member = synthesizeProfile(identity)
		if setErr := s.docs.Set(ctx, membersCollection, member.ID, member); setErr != nil {
			logging.Logger.Warnf("Event ID: PROFILE_SYNTHESIS_WRITE_FAILED, Description: Failed to persist synthesized profile for %s: %v", identity.ID, setErr)
		}
		err = nil
	}
	if err != nil {
		s.mu.Lock()
		s.refreshFailures++
		s.lastRefreshErr = err
		s.mu.Unlock()
		return fmt.Errorf("failed to refresh profile: %w", err)
	}

	member.ID = identity.ID
	s.mu.Lock()
	s.profile = &member
	s.refreshFailures = 0
	s.lastRefreshErr = nil
	s.mu.Unlock()
	return nil
}

func synthesizeProfile(identity auth.Identity) models.Member {
	name := identity.DisplayName
	if name == "" {
		name, _, _ = strings.Cut(identity.Email, "@")
	}
	return models.Member{
		ID:       identity.ID,
		Name:     name,
		Email:    identity.Email,
		UserRole: models.RoleStaff,
		Active:   true,
	}
}
