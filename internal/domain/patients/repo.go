package patients

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medleads/medleads/internal/domain/identity"
)

// PatientRepository persists patients. Read methods take the caller's scope
// so agent callers only ever see their own patients; an out-of-scope ID
// behaves exactly like a missing one.
type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByScope(ctx context.Context, scope identity.Scope, id uuid.UUID) (*Patient, error)
	ListByScope(ctx context.Context, scope identity.Scope, filter ListFilter, limit, offset int) ([]*Patient, int, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context, scope identity.Scope, since time.Time) (*DashboardStats, error)
	CountUncategorised(ctx context.Context, orgID uuid.UUID) (int, error)
	// ListAll returns every patient in the system, across organisations.
	ListAll(ctx context.Context) ([]*Patient, error)
}

type CategoryRepository interface {
	Create(ctx context.Context, c *Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*Category, error)
	GetByName(ctx context.Context, orgID uuid.UUID, name string) (*Category, error)
	ListByOrganisation(ctx context.Context, orgID uuid.UUID) ([]*Category, error)
	Update(ctx context.Context, c *Category) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type FollowUpRepository interface {
	Create(ctx context.Context, f *FollowUp) error
	GetByID(ctx context.Context, id uuid.UUID) (*FollowUp, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*FollowUp, int, error)
	Update(ctx context.Context, f *FollowUp) error
	Delete(ctx context.Context, id uuid.UUID) error
}
