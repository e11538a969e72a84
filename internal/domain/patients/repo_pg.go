package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medleads/medleads/internal/domain/identity"
	"github.com/medleads/medleads/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// -- patients --

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, organisation_id, agent_id, category_id, first_name, last_name,
	age, email, phone, description, status, contacted_at, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.OrganisationID, &p.AgentID, &p.CategoryID,
		&p.FirstName, &p.LastName, &p.Age, &p.Email, &p.Phone,
		&p.Description, &p.Status, &p.ContactedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, organisation_id, agent_id, category_id,
			first_name, last_name, age, email, phone, description, status, contacted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.OrganisationID, p.AgentID, p.CategoryID,
		p.FirstName, p.LastName, p.Age, p.Email, p.Phone, p.Description, p.Status, p.ContactedAt)
	return err
}

// GetByScope hides patients outside the caller's scope behind not-found.
func (r *patientRepoPG) GetByScope(ctx context.Context, scope identity.Scope, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `
		SELECT `+patientCols+` FROM patients
		WHERE id = $1 AND organisation_id = $2
		  AND ($3::uuid IS NULL OR agent_id = $3)`,
		id, scope.OrganisationID, scope.AgentID))
}

func (r *patientRepoPG) ListByScope(ctx context.Context, scope identity.Scope, filter ListFilter, limit, offset int) ([]*Patient, int, error) {
	where := `organisation_id = $1 AND ($2::uuid IS NULL OR agent_id = $2)`
	args := []interface{}{scope.OrganisationID, scope.AgentID}

	if filter.Unassigned {
		where += ` AND agent_id IS NULL`
	}
	if filter.CategoryID != nil {
		args = append(args, *filter.CategoryID)
		where += ` AND category_id = $3`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	n := len(args)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT `+patientCols+` FROM patients WHERE `+where+`
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n-1, n), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET agent_id=$2, category_id=$3, first_name=$4, last_name=$5,
			age=$6, email=$7, phone=$8, description=$9, status=$10, contacted_at=$11, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.AgentID, p.CategoryID, p.FirstName, p.LastName,
		p.Age, p.Email, p.Phone, p.Description, p.Status, p.ContactedAt)
	return err
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	return err
}

func (r *patientRepoPG) Stats(ctx context.Context, scope identity.Scope, since time.Time) (*DashboardStats, error) {
	var s DashboardStats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE created_at >= $3),
		       COUNT(*) FILTER (WHERE contacted_at >= $3)
		FROM patients
		WHERE organisation_id = $1 AND ($2::uuid IS NULL OR agent_id = $2)`,
		scope.OrganisationID, scope.AgentID, since).
		Scan(&s.TotalPatients, &s.RecentPatients, &s.RecentContacted)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *patientRepoPG) CountUncategorised(ctx context.Context, orgID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM patients WHERE organisation_id = $1 AND category_id IS NULL`, orgID).Scan(&n)
	return n, err
}

func (r *patientRepoPG) ListAll(ctx context.Context) ([]*Patient, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, nil
}

// -- categories --

type categoryRepoPG struct{ pool *pgxpool.Pool }

func NewCategoryRepoPG(pool *pgxpool.Pool) CategoryRepository {
	return &categoryRepoPG{pool: pool}
}

func (r *categoryRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *categoryRepoPG) scanCategory(row pgx.Row) (*Category, error) {
	var c Category
	err := row.Scan(&c.ID, &c.OrganisationID, &c.Name, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *categoryRepoPG) Create(ctx context.Context, c *Category) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO categories (id, organisation_id, name) VALUES ($1,$2,$3)`,
		c.ID, c.OrganisationID, c.Name)
	return err
}

func (r *categoryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Category, error) {
	return r.scanCategory(r.conn(ctx).QueryRow(ctx, `
		SELECT id, organisation_id, name, created_at FROM categories WHERE id = $1`, id))
}

func (r *categoryRepoPG) GetByName(ctx context.Context, orgID uuid.UUID, name string) (*Category, error) {
	return r.scanCategory(r.conn(ctx).QueryRow(ctx, `
		SELECT id, organisation_id, name, created_at FROM categories
		WHERE organisation_id = $1 AND name = $2`, orgID, name))
}

func (r *categoryRepoPG) ListByOrganisation(ctx context.Context, orgID uuid.UUID) ([]*Category, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT c.id, c.organisation_id, c.name, c.created_at,
		       COUNT(p.id)
		FROM categories c
		LEFT JOIN patients p ON p.category_id = c.id
		WHERE c.organisation_id = $1
		GROUP BY c.id
		ORDER BY c.name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.OrganisationID, &c.Name, &c.CreatedAt, &c.PatientCount); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, nil
}

func (r *categoryRepoPG) Update(ctx context.Context, c *Category) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE categories SET name=$2 WHERE id = $1`, c.ID, c.Name)
	return err
}

func (r *categoryRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	return err
}

// -- follow-ups --

type followUpRepoPG struct{ pool *pgxpool.Pool }

func NewFollowUpRepoPG(pool *pgxpool.Pool) FollowUpRepository {
	return &followUpRepoPG{pool: pool}
}

func (r *followUpRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *followUpRepoPG) scanFollowUp(row pgx.Row) (*FollowUp, error) {
	var f FollowUp
	err := row.Scan(&f.ID, &f.PatientID, &f.Notes, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *followUpRepoPG) Create(ctx context.Context, f *FollowUp) error {
	f.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO follow_ups (id, patient_id, notes) VALUES ($1,$2,$3)`,
		f.ID, f.PatientID, f.Notes)
	return err
}

func (r *followUpRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*FollowUp, error) {
	return r.scanFollowUp(r.conn(ctx).QueryRow(ctx, `
		SELECT id, patient_id, notes, created_at, updated_at FROM follow_ups WHERE id = $1`, id))
}

func (r *followUpRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*FollowUp, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM follow_ups WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, notes, created_at, updated_at FROM follow_ups
		WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*FollowUp
	for rows.Next() {
		f, err := r.scanFollowUp(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, f)
	}
	return items, total, nil
}

func (r *followUpRepoPG) Update(ctx context.Context, f *FollowUp) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE follow_ups SET notes=$2, updated_at=NOW() WHERE id = $1`, f.ID, f.Notes)
	return err
}

func (r *followUpRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM follow_ups WHERE id = $1`, id)
	return err
}
