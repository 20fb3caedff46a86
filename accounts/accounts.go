// Package accounts owns team member administration, most importantly the
// two-phase account creation: create the authentication identity, then the
// profile record, and compensate by deleting the identity if the second
// phase fails so no orphaned, profile-less account remains.
package accounts

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/fearlessjoy/fridaynz/auth"
	"github.com/fearlessjoy/fridaynz/docstore"
	"github.com/fearlessjoy/fridaynz/logging"
	"github.com/fearlessjoy/fridaynz/models"
)

const MembersCollection = "members"

type Service struct {
	authClient auth.Client
	docs       docstore.Store
}

func NewService(authClient auth.Client, docs docstore.Store) *Service {
	return &Service{authClient: authClient, docs: docs}
}

// CreateMember runs the creation saga. The identity id becomes the member id
// and is immutable from then on.
func (s *Service) CreateMember(ctx context.Context, member models.Member) (models.Member, error) {
	if err := ValidatePassword(member.Password); err != nil {
		return models.Member{}, err
	}

	member.Name = html.EscapeString(strings.TrimSpace(member.Name))
	member.Email = strings.ToLower(strings.TrimSpace(member.Email))
	if member.UserRole == "" {
		member.UserRole = models.RoleStaff
	}

	identity, err := s.authClient.SignUp(ctx, member.Email, member.Password)
	if err != nil {
		return models.Member{}, fmt.Errorf("failed to create identity: %w", err)
	}

	member.ID = identity.ID
	member.Active = true
	member.Password = ""

	if err := s.docs.Set(ctx, MembersCollection, member.ID, member); err != nil {
		// Compensate: roll the identity back so the two phases stay one
		// logical transaction. A failed rollback is logged, not retried.
		if rollbackErr := s.authClient.DeleteIdentity(ctx, identity.ID); rollbackErr != nil {
			logging.Logger.Errorf("Event ID: ACCOUNT_ROLLBACK_FAILED, Description: Profile creation failed and identity %s could not be rolled back: %v", identity.ID, rollbackErr)
		} else {
			logging.Logger.Infof("Event ID: ACCOUNT_ROLLED_BACK, Description: Identity %s rolled back after profile creation failure", identity.ID)
		}
		return models.Member{}, fmt.Errorf("failed to create member profile: %w", err)
	}

	logging.Logger.Infof("Event ID: MEMBER_CREATED, Description: Member %s created for %s", member.ID, member.Email)
	return member, nil
}

// UpdateMember patches a member profile.
func (s *Service) UpdateMember(ctx context.Context, id string, patch map[string]interface{}) error {
	delete(patch, "_id") // immutable
	if err := s.docs.Update(ctx, MembersCollection, id, patch); err != nil {
		return fmt.Errorf("failed to update member %s: %w", id, err)
	}
	return nil
}

// DeactivateMember removes the member from the active roster without
// touching their history. The members subscription scope excludes them from
// mirrors everywhere.
func (s *Service) DeactivateMember(ctx context.Context, id string) error {
	if err := s.docs.Update(ctx, MembersCollection, id, map[string]interface{}{"active": false}); err != nil {
		return fmt.Errorf("failed to deactivate member %s: %w", id, err)
	}
	return nil
}

// GetMember reads one profile record.
func (s *Service) GetMember(ctx context.Context, id string) (models.Member, error) {
	var member models.Member
	if err := s.docs.Get(ctx, MembersCollection, id, &member); err != nil {
		return models.Member{}, err
	}
	member.ID = id
	return member, nil
}

// ValidatePassword enforces the account-creation password rules.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	hasUppercase := false
	for _, char := range password {
		if char >= 'A' && char <= 'Z' {
			hasUppercase = true
			break
		}
	}
	if !hasUppercase {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}

	hasDigit := false
	for _, char := range password {
		if char >= '0' && char <= '9' {
			hasDigit = true
			break
		}
	}
	if !hasDigit {
		return fmt.Errorf("password must contain at least one number")
	}

	specialChars := "!@#$%^&*.,"
	hasSpecial := false
	for _, char := range password {
		if strings.ContainsRune(specialChars, char) {
			hasSpecial = true
			break
		}
	}
	if !hasSpecial {
		return fmt.Errorf("password must contain at least one special character")
	}

	return nil
}
