package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role values stored on users.
const (
	RoleOrganiser = "organiser"
	RoleAgent     = "agent"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError reports a field-level validation failure so handlers can
// return it against the offending input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// User maps to the users table. Email doubles as the login name; email and
// phone are unique across the whole system.
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// OrganisationProfile maps to the organisation_profiles table. Every user
// gets exactly one profile, created in the same transaction as the user
// itself. For organisers the profile ID is the organisation ID the rest of
// the system scopes by; agent profiles only carry a display name.
type OrganisationProfile struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Agent maps to the agents table. An agent belongs to exactly one
// organisation and works the patients assigned to them.
type Agent struct {
	ID             uuid.UUID `db:"id" json:"id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	OrganisationID uuid.UUID `db:"organisation_id" json:"organisation_id"`
	Department     string    `db:"department" json:"department"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`

	// Joined from users for list/detail responses.
	User *User `db:"-" json:"user,omitempty"`
}

// Departments lists the valid agent departments.
var Departments = []string{
	"Cardiologist",
	"Dermatologists",
	"Emergency Medicine Specialists",
	"Allergists/Immunologists",
	"Anesthesiologists",
	"Colon and Rectal Surgeons",
}

// ValidDepartment reports whether d is one of the allowed departments.
func ValidDepartment(d string) bool {
	for _, dep := range Departments {
		if dep == d {
			return true
		}
	}
	return false
}

// Scope describes what slice of an organisation's data the caller may see.
// Organisers see the whole organisation; agents only the patients assigned
// to them, expressed by a non-nil AgentID.
type Scope struct {
	OrganisationID uuid.UUID
	Role           string
	AgentID        *uuid.UUID
}

// IsOrganiser reports whether the scope covers the whole organisation.
func (s Scope) IsOrganiser() bool { return s.Role == RoleOrganiser }
