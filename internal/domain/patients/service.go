package patients

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medleads/medleads/internal/domain/identity"
	"github.com/medleads/medleads/internal/platform/blobstore"
	"github.com/medleads/medleads/internal/platform/notification"
)

// recentWindow is the trailing period the dashboard reports on.
const recentWindow = 30 * 24 * time.Hour

// AgentDirectory is the slice of the identity domain this service needs to
// validate agent assignments. identity.AgentRepository satisfies it.
type AgentDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.Agent, error)
}

// ProfileDirectory resolves organisation profiles for notification text.
// identity.ProfileRepository satisfies it.
type ProfileDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*identity.OrganisationProfile, error)
}

type Service struct {
	patients        PatientRepository
	categories      CategoryRepository
	followUps       FollowUpRepository
	agents          AgentDirectory
	profiles        ProfileDirectory
	blobs           blobstore.BlobStore
	notifier        *notification.Manager
	notifyRecipient string
	logger          zerolog.Logger
}

func NewService(patients PatientRepository, categories CategoryRepository,
	followUps FollowUpRepository, agents AgentDirectory, profiles ProfileDirectory,
	blobs blobstore.BlobStore, notifier *notification.Manager,
	notifyRecipient string, logger zerolog.Logger) *Service {
	return &Service{
		patients:        patients,
		categories:      categories,
		followUps:       followUps,
		agents:          agents,
		profiles:        profiles,
		blobs:           blobs,
		notifier:        notifier,
		notifyRecipient: notifyRecipient,
		logger:          logger,
	}
}

// PatientInput carries patient create/update fields.
type PatientInput struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Age         int        `json:"age"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Description string     `json:"description"`
	Status      bool       `json:"status"`
	AgentID     *uuid.UUID `json:"agent_id"`
	CategoryID  *uuid.UUID `json:"category_id"`
}

// resolveCategory checks the category belongs to the caller's organisation
// and returns it.
func (s *Service) resolveCategory(ctx context.Context, scope identity.Scope, id uuid.UUID) (*Category, error) {
	cat, err := s.categories.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cat.OrganisationID != scope.OrganisationID {
		return nil, ErrNotFound
	}
	return cat, nil
}

// resolveAgent checks the agent belongs to the caller's organisation.
func (s *Service) resolveAgent(ctx context.Context, scope identity.Scope, id uuid.UUID) (*identity.Agent, error) {
	agent, err := s.agents.GetByID(ctx, id)
	if err != nil {
		if err == identity.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if agent.OrganisationID != scope.OrganisationID {
		return nil, ErrNotFound
	}
	return agent, nil
}

// applyCategory sets the patient's category and stamps the contacted
// timestamp the first time the category becomes the "Contacted" one. The
// stamp is written once; later category changes never clear or move it.
func (s *Service) applyCategory(ctx context.Context, scope identity.Scope, p *Patient, categoryID *uuid.UUID) error {
	if categoryID == nil {
		p.CategoryID = nil
		return nil
	}
	cat, err := s.resolveCategory(ctx, scope, *categoryID)
	if err != nil {
		return err
	}
	p.CategoryID = &cat.ID
	if cat.Name == ContactedCategoryName && p.ContactedAt == nil {
		now := time.Now().UTC()
		p.ContactedAt = &now
	}
	return nil
}

// CreatePatient creates a patient in the caller's organisation. Agent
// callers always get the new patient assigned to themselves. A best-effort
// notification email goes out after the write; delivery failure is logged
// and swallowed.
func (s *Service) CreatePatient(ctx context.Context, scope identity.Scope, in PatientInput) (*Patient, error) {
	if in.FirstName == "" {
		return nil, &identity.ValidationError{Field: "first_name", Message: "first name is required"}
	}

	p := &Patient{
		OrganisationID: scope.OrganisationID,
		FirstName:      in.FirstName,
		LastName:       in.LastName,
		Age:            in.Age,
		Email:          in.Email,
		Phone:          in.Phone,
		Description:    in.Description,
		Status:         in.Status,
	}

	if scope.AgentID != nil {
		p.AgentID = scope.AgentID
	} else if in.AgentID != nil {
		agent, err := s.resolveAgent(ctx, scope, *in.AgentID)
		if err != nil {
			return nil, err
		}
		p.AgentID = &agent.ID
	}

	if err := s.applyCategory(ctx, scope, p, in.CategoryID); err != nil {
		return nil, err
	}

	if err := s.patients.Create(ctx, p); err != nil {
		return nil, err
	}

	if s.notifier != nil && s.notifyRecipient != "" {
		orgName := ""
		if s.profiles != nil {
			if org, err := s.profiles.GetByID(ctx, scope.OrganisationID); err == nil {
				orgName = org.Name
			}
		}
		if _, err := s.notifier.SendFromTemplate(ctx, "patient-created", map[string]string{
			"patient_name":      p.FullName(),
			"organisation_name": orgName,
		}, s.notifyRecipient); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", p.ID.String()).Msg("patient-created email failed")
		}
	}

	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, scope identity.Scope, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByScope(ctx, scope, id)
}

func (s *Service) ListPatients(ctx context.Context, scope identity.Scope, filter ListFilter, limit, offset int) ([]*Patient, int, error) {
	return s.patients.ListByScope(ctx, scope, filter, limit, offset)
}

// UpdatePatient applies a full update to a patient in the caller's scope.
func (s *Service) UpdatePatient(ctx context.Context, scope identity.Scope, id uuid.UUID, in PatientInput) (*Patient, error) {
	p, err := s.patients.GetByScope(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if in.FirstName == "" {
		return nil, &identity.ValidationError{Field: "first_name", Message: "first name is required"}
	}

	p.FirstName = in.FirstName
	p.LastName = in.LastName
	p.Age = in.Age
	p.Email = in.Email
	p.Phone = in.Phone
	p.Description = in.Description
	p.Status = in.Status

	// Agents cannot reassign their patients; organisers may.
	if scope.IsOrganiser() {
		if in.AgentID != nil {
			agent, err := s.resolveAgent(ctx, scope, *in.AgentID)
			if err != nil {
				return nil, err
			}
			p.AgentID = &agent.ID
		} else {
			p.AgentID = nil
		}
	}

	if err := s.applyCategory(ctx, scope, p, in.CategoryID); err != nil {
		return nil, err
	}

	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) DeletePatient(ctx context.Context, scope identity.Scope, id uuid.UUID) error {
	p, err := s.patients.GetByScope(ctx, scope, id)
	if err != nil {
		return err
	}
	return s.patients.Delete(ctx, p.ID)
}

// AssignAgent puts a patient under an agent of the same organisation.
func (s *Service) AssignAgent(ctx context.Context, scope identity.Scope, patientID, agentID uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByScope(ctx, scope, patientID)
	if err != nil {
		return nil, err
	}
	agent, err := s.resolveAgent(ctx, scope, agentID)
	if err != nil {
		return nil, err
	}
	p.AgentID = &agent.ID
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePatientCategory moves a patient to another category (or none).
func (s *Service) UpdatePatientCategory(ctx context.Context, scope identity.Scope, patientID uuid.UUID, categoryID *uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByScope(ctx, scope, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.applyCategory(ctx, scope, p, categoryID); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Dashboard returns activity counts for the caller's scope over the
// trailing 30 days.
func (s *Service) Dashboard(ctx context.Context, scope identity.Scope) (*DashboardStats, error) {
	since := time.Now().UTC().Add(-recentWindow)
	return s.patients.Stats(ctx, scope, since)
}

// Export returns every patient in the system. The export is not scoped to
// an organisation; access is limited to organisers at the route level.
func (s *Service) Export(ctx context.Context) ([]*Patient, error) {
	return s.patients.ListAll(ctx)
}

// -- categories --

func (s *Service) CreateCategory(ctx context.Context, scope identity.Scope, name string) (*Category, error) {
	if name == "" {
		return nil, &identity.ValidationError{Field: "name", Message: "name is required"}
	}
	if existing, err := s.categories.GetByName(ctx, scope.OrganisationID, name); err == nil && existing != nil {
		return nil, &identity.ValidationError{Field: "name", Message: "category already exists"}
	}
	cat := &Category{OrganisationID: scope.OrganisationID, Name: name}
	if err := s.categories.Create(ctx, cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func (s *Service) ListCategories(ctx context.Context, scope identity.Scope) ([]*Category, error) {
	return s.categories.ListByOrganisation(ctx, scope.OrganisationID)
}

// UncategorisedCount reports how many of the organisation's patients have no
// category yet.
func (s *Service) UncategorisedCount(ctx context.Context, scope identity.Scope) (int, error) {
	return s.patients.CountUncategorised(ctx, scope.OrganisationID)
}

func (s *Service) GetCategory(ctx context.Context, scope identity.Scope, id uuid.UUID) (*Category, error) {
	return s.resolveCategory(ctx, scope, id)
}

func (s *Service) RenameCategory(ctx context.Context, scope identity.Scope, id uuid.UUID, name string) (*Category, error) {
	cat, err := s.resolveCategory(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &identity.ValidationError{Field: "name", Message: "name is required"}
	}
	cat.Name = name
	if err := s.categories.Update(ctx, cat); err != nil {
		return nil, err
	}
	return cat, nil
}

func (s *Service) DeleteCategory(ctx context.Context, scope identity.Scope, id uuid.UUID) error {
	cat, err := s.resolveCategory(ctx, scope, id)
	if err != nil {
		return err
	}
	// Patients keep their contacted timestamp; they just become
	// uncategorised via the schema's SET NULL action.
	return s.categories.Delete(ctx, cat.ID)
}

// -- follow-ups --

// resolveFollowUp loads a follow-up and re-resolves its parent patient
// through the caller's scope, so follow-ups inherit patient visibility.
func (s *Service) resolveFollowUp(ctx context.Context, scope identity.Scope, id uuid.UUID) (*FollowUp, error) {
	f, err := s.followUps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.patients.GetByScope(ctx, scope, f.PatientID); err != nil {
		return nil, ErrNotFound
	}
	return f, nil
}

func (s *Service) CreateFollowUp(ctx context.Context, scope identity.Scope, patientID uuid.UUID, notes string) (*FollowUp, error) {
	if _, err := s.patients.GetByScope(ctx, scope, patientID); err != nil {
		return nil, err
	}
	if notes == "" {
		return nil, &identity.ValidationError{Field: "notes", Message: "notes are required"}
	}
	f := &FollowUp{PatientID: patientID, Notes: notes}
	if err := s.followUps.Create(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) ListFollowUps(ctx context.Context, scope identity.Scope, patientID uuid.UUID, limit, offset int) ([]*FollowUp, int, error) {
	if _, err := s.patients.GetByScope(ctx, scope, patientID); err != nil {
		return nil, 0, err
	}
	return s.followUps.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) GetFollowUp(ctx context.Context, scope identity.Scope, id uuid.UUID) (*FollowUp, error) {
	return s.resolveFollowUp(ctx, scope, id)
}

func (s *Service) UpdateFollowUp(ctx context.Context, scope identity.Scope, id uuid.UUID, notes string) (*FollowUp, error) {
	f, err := s.resolveFollowUp(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if notes == "" {
		return nil, &identity.ValidationError{Field: "notes", Message: "notes are required"}
	}
	f.Notes = notes
	if err := s.followUps.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) DeleteFollowUp(ctx context.Context, scope identity.Scope, id uuid.UUID) error {
	f, err := s.resolveFollowUp(ctx, scope, id)
	if err != nil {
		return err
	}
	// Remove stored attachments alongside the row; the blob store has no
	// foreign keys to cascade for us.
	if s.blobs != nil {
		attachments, err := s.blobs.ListByFollowUp(ctx, f.ID.String())
		if err == nil {
			for _, a := range attachments {
				if err := s.blobs.Delete(ctx, a.ID); err != nil {
					s.logger.Warn().Err(err).Str("blob_id", a.ID).Msg("orphaned attachment on follow-up delete")
				}
			}
		}
	}
	return s.followUps.Delete(ctx, f.ID)
}

// -- attachments --

// AddAttachment stores a file against a follow-up in the caller's scope.
func (s *Service) AddAttachment(ctx context.Context, scope identity.Scope, followUpID uuid.UUID, fileName, contentType, createdBy string, content io.Reader) (*blobstore.BlobMetadata, error) {
	f, err := s.resolveFollowUp(ctx, scope, followUpID)
	if err != nil {
		return nil, err
	}
	return s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    fileName,
		ContentType: contentType,
		FollowUpID:  f.ID.String(),
		CreatedBy:   createdBy,
	}, content)
}

func (s *Service) ListAttachments(ctx context.Context, scope identity.Scope, followUpID uuid.UUID) ([]*blobstore.BlobMetadata, error) {
	f, err := s.resolveFollowUp(ctx, scope, followUpID)
	if err != nil {
		return nil, err
	}
	return s.blobs.ListByFollowUp(ctx, f.ID.String())
}

// OpenAttachment returns attachment content after re-checking that its
// follow-up is visible to the caller.
func (s *Service) OpenAttachment(ctx context.Context, scope identity.Scope, attachmentID string) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	meta, err := s.blobs.GetMetadata(ctx, attachmentID)
	if err != nil {
		return nil, nil, err
	}
	fuID, err := uuid.Parse(meta.FollowUpID)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	if _, err := s.resolveFollowUp(ctx, scope, fuID); err != nil {
		return nil, nil, ErrNotFound
	}
	return s.blobs.Download(ctx, attachmentID)
}

func (s *Service) DeleteAttachment(ctx context.Context, scope identity.Scope, attachmentID string) error {
	meta, err := s.blobs.GetMetadata(ctx, attachmentID)
	if err != nil {
		return err
	}
	fuID, err := uuid.Parse(meta.FollowUpID)
	if err != nil {
		return ErrNotFound
	}
	if _, err := s.resolveFollowUp(ctx, scope, fuID); err != nil {
		return ErrNotFound
	}
	return s.blobs.Delete(ctx, attachmentID)
}
