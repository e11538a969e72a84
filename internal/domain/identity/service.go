package identity

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medleads/medleads/internal/platform/auth"
	"github.com/medleads/medleads/internal/platform/notification"
)

// TxRunner executes fn inside a database transaction. Production wiring uses
// db.InTx; tests pass nil to run statements directly.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	users    UserRepository
	profiles ProfileRepository
	agents   AgentRepository
	notifier *notification.Manager
	tokens   auth.TokenConfig
	inTx     TxRunner
	logger   zerolog.Logger
}

func NewService(users UserRepository, profiles ProfileRepository, agents AgentRepository,
	notifier *notification.Manager, tokens auth.TokenConfig, inTx TxRunner, logger zerolog.Logger) *Service {
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		}
	}
	return &Service{
		users:    users,
		profiles: profiles,
		agents:   agents,
		notifier: notifier,
		tokens:   tokens,
		inTx:     inTx,
		logger:   logger,
	}
}

// RegisterInput carries an organiser signup request.
type RegisterInput struct {
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Password         string `json:"password"`
	OrganisationName string `json:"organisation_name"`
}

func (s *Service) validateNewUser(ctx context.Context, email, phone, password string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	if !strings.Contains(email, "@") {
		return &ValidationError{Field: "email", Message: "invalid email address"}
	}
	if phone == "" {
		return &ValidationError{Field: "phone", Message: "phone is required"}
	}
	if len(password) < 8 {
		return &ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}

	taken, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return err
	}
	if taken {
		return &ValidationError{Field: "email", Message: "this email is already taken"}
	}

	inUse, err := s.users.PhoneExists(ctx, phone)
	if err != nil {
		return err
	}
	if inUse {
		return &ValidationError{Field: "phone", Message: "this phone number is already in use"}
	}
	return nil
}

// RegisterOrganiser creates an organiser account together with its
// organisation profile. Both rows are written in one transaction so a
// registered organiser always has exactly one organisation.
func (s *Service) RegisterOrganiser(ctx context.Context, in RegisterInput) (*User, *OrganisationProfile, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)

	if err := s.validateNewUser(ctx, in.Email, in.Phone, in.Password); err != nil {
		return nil, nil, err
	}
	if in.FirstName == "" {
		return nil, nil, &ValidationError{Field: "first_name", Message: "first name is required"}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}

	user := &User{
		Email:        in.Email,
		Phone:        in.Phone,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		Role:         RoleOrganiser,
	}
	profile := &OrganisationProfile{Name: in.OrganisationName}

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		profile.UserID = user.ID
		if profile.Name == "" {
			profile.Name = user.FullName()
		}
		return s.profiles.Create(ctx, profile)
	})
	if err != nil {
		return nil, nil, err
	}
	return user, profile, nil
}

// Login verifies credentials and returns a signed token for the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if err == ErrNotFound {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}

	role := auth.RoleAgent
	if user.Role == RoleOrganiser {
		role = auth.RoleOrganiser
	}
	token, err := auth.IssueToken(s.tokens, user.ID.String(), role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// ResolveScope maps an authenticated user ID to the data scope the rest of
// the system enforces. Organisers get their whole organisation; agents get
// their organisation narrowed to their own patients.
func (s *Service) ResolveScope(ctx context.Context, userID uuid.UUID) (Scope, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Scope{}, err
	}

	if user.Role == RoleOrganiser {
		profile, err := s.profiles.GetByUserID(ctx, user.ID)
		if err != nil {
			return Scope{}, err
		}
		return Scope{OrganisationID: profile.ID, Role: RoleOrganiser}, nil
	}

	agent, err := s.agents.GetByUserID(ctx, user.ID)
	if err != nil {
		return Scope{}, err
	}
	agentID := agent.ID
	return Scope{OrganisationID: agent.OrganisationID, Role: RoleAgent, AgentID: &agentID}, nil
}

// CreateAgentInput carries a new agent request.
type CreateAgentInput struct {
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Password   string `json:"password"`
	Department string `json:"department"`
}

// CreateAgent creates an agent account inside the caller's organisation and
// sends a best-effort invitation email.
func (s *Service) CreateAgent(ctx context.Context, scope Scope, in CreateAgentInput) (*Agent, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)

	if err := s.validateNewUser(ctx, in.Email, in.Phone, in.Password); err != nil {
		return nil, err
	}
	if !ValidDepartment(in.Department) {
		return nil, &ValidationError{Field: "department", Message: "invalid department"}
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Email:        in.Email,
		Phone:        in.Phone,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		Role:         RoleAgent,
	}
	agent := &Agent{
		OrganisationID: scope.OrganisationID,
		Department:     in.Department,
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		// Every user gets a profile row; an agent's profile carries their
		// display name and plays no part in scoping.
		profile := &OrganisationProfile{UserID: user.ID, Name: user.FullName()}
		if err := s.profiles.Create(ctx, profile); err != nil {
			return err
		}
		agent.UserID = user.ID
		return s.agents.Create(ctx, agent)
	})
	if err != nil {
		return nil, err
	}
	agent.User = user

	if s.notifier != nil {
		org, orgErr := s.profiles.GetByID(ctx, scope.OrganisationID)
		orgName := ""
		if orgErr == nil {
			orgName = org.Name
		}
		if _, err := s.notifier.SendFromTemplate(ctx, "agent-invited", map[string]string{
			"organisation_name": orgName,
			"email":             user.Email,
		}, user.Email); err != nil {
			s.logger.Warn().Err(err).Str("agent_id", agent.ID.String()).Msg("agent invitation email failed")
		}
	}

	return agent, nil
}

// ListAgents returns the agents of the caller's organisation.
func (s *Service) ListAgents(ctx context.Context, scope Scope, limit, offset int) ([]*Agent, int, error) {
	return s.agents.ListByOrganisation(ctx, scope.OrganisationID, limit, offset)
}

// GetAgent returns one agent, hiding agents of other organisations behind
// not-found.
func (s *Service) GetAgent(ctx context.Context, scope Scope, id uuid.UUID) (*Agent, error) {
	agent, err := s.agents.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if agent.OrganisationID != scope.OrganisationID {
		return nil, ErrNotFound
	}
	return agent, nil
}

// DeleteAgent removes an agent and its login. Patients assigned to the agent
// fall back to unassigned via the schema's SET NULL action.
func (s *Service) DeleteAgent(ctx context.Context, scope Scope, id uuid.UUID) error {
	agent, err := s.GetAgent(ctx, scope, id)
	if err != nil {
		return err
	}
	// Deleting the user cascades to the agent row.
	return s.users.Delete(ctx, agent.UserID)
}
