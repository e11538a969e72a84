package patients

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

// ContactedCategoryName is the category name that marks a patient as
// contacted. The match is exact and case-sensitive: assigning a category
// named "contacted" does not stamp the timestamp.
const ContactedCategoryName = "Contacted"

// Patient maps to the patients table. AgentID and CategoryID are optional;
// a patient with no agent is unassigned, a patient with no category is
// uncategorised.
type Patient struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	OrganisationID uuid.UUID  `db:"organisation_id" json:"organisation_id"`
	AgentID        *uuid.UUID `db:"agent_id" json:"agent_id,omitempty"`
	CategoryID     *uuid.UUID `db:"category_id" json:"category_id,omitempty"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Age            int        `db:"age" json:"age"`
	Email          string     `db:"email" json:"email"`
	Phone          string     `db:"phone" json:"phone"`
	Description    string     `db:"description" json:"description"`
	Status         bool       `db:"status" json:"status"`
	ContactedAt    *time.Time `db:"contacted_at" json:"contacted_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// FullName returns the patient's display name.
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Category maps to the categories table. Categories are owned by one
// organisation; names are unique within it.
type Category struct {
	ID             uuid.UUID `db:"id" json:"id"`
	OrganisationID uuid.UUID `db:"organisation_id" json:"organisation_id"`
	Name           string    `db:"name" json:"name"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`

	// PatientCount is populated by list queries.
	PatientCount int `db:"-" json:"patient_count,omitempty"`
}

// FollowUp maps to the follow_ups table. Attachments live in the blob store
// keyed by the follow-up ID.
type FollowUp struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Notes     string    `db:"notes" json:"notes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DashboardStats summarises an organisation's recent activity. Recent means
// within the trailing 30 days.
type DashboardStats struct {
	TotalPatients   int `json:"total_patients"`
	RecentPatients  int `json:"recent_patients"`
	RecentContacted int `json:"recent_contacted"`
}

// ListFilter narrows a patient listing.
type ListFilter struct {
	CategoryID *uuid.UUID
	Unassigned bool
}
