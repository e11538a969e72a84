package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ProfileRepository interface {
	Create(ctx context.Context, p *OrganisationProfile) error
	GetByID(ctx context.Context, id uuid.UUID) (*OrganisationProfile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*OrganisationProfile, error)
}

type AgentRepository interface {
	Create(ctx context.Context, a *Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Agent, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Agent, error)
	ListByOrganisation(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Agent, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
