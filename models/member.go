package models

// UserRole is the authorization tier, distinct from the free-text position.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleStaff   UserRole = "staff"
)

type Member struct {
	ID       string   `bson:"_id,omitempty" json:"id"`
	Name     string   `bson:"name" json:"name"`
	Email    string   `bson:"email" json:"email"`
	Role     string   `bson:"role" json:"role"`
	UserRole UserRole `bson:"userRole" json:"userRole"`
	Avatar   string   `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Active   bool     `bson:"active" json:"active"`

	// Password is only carried through the account-creation flow and is
	// stripped before the profile record is persisted.
	Password string `bson:"-" json:"password,omitempty"`
}

// IsAdminTier reports whether the member may perform privileged operations
// such as account deletion.
func (m Member) IsAdminTier() bool {
	return m.UserRole == RoleAdmin
}
