package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medleads/medleads/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// -- users --

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const userCols = `id, email, phone, first_name, last_name, password_hash, role,
	created_at, updated_at`

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Phone, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO users (id, email, phone, first_name, last_name, password_hash, role)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Email, u.Phone, u.FirstName, u.LastName, u.PasswordHash, u.Role)
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (r *userRepoPG) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

func (r *userRepoPG) PhoneExists(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE phone = $1)`, phone).Scan(&exists)
	return exists, err
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET email=$2, phone=$3, first_name=$4, last_name=$5, updated_at=NOW()
		WHERE id = $1`,
		u.ID, u.Email, u.Phone, u.FirstName, u.LastName)
	return err
}

func (r *userRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// -- organisation profiles --

type profileRepoPG struct{ pool *pgxpool.Pool }

func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepoPG{pool: pool}
}

func (r *profileRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *profileRepoPG) scanProfile(row pgx.Row) (*OrganisationProfile, error) {
	var p OrganisationProfile
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *profileRepoPG) Create(ctx context.Context, p *OrganisationProfile) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO organisation_profiles (id, user_id, name)
		VALUES ($1,$2,$3)`,
		p.ID, p.UserID, p.Name)
	return err
}

func (r *profileRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*OrganisationProfile, error) {
	return r.scanProfile(r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, name, created_at FROM organisation_profiles WHERE id = $1`, id))
}

func (r *profileRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*OrganisationProfile, error) {
	return r.scanProfile(r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, name, created_at FROM organisation_profiles WHERE user_id = $1`, userID))
}

// -- agents --

type agentRepoPG struct{ pool *pgxpool.Pool }

func NewAgentRepoPG(pool *pgxpool.Pool) AgentRepository {
	return &agentRepoPG{pool: pool}
}

func (r *agentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const agentCols = `a.id, a.user_id, a.organisation_id, a.department, a.created_at,
	u.id, u.email, u.phone, u.first_name, u.last_name, u.password_hash, u.role,
	u.created_at, u.updated_at`

func (r *agentRepoPG) scanAgent(row pgx.Row) (*Agent, error) {
	var a Agent
	var u User
	err := row.Scan(&a.ID, &a.UserID, &a.OrganisationID, &a.Department, &a.CreatedAt,
		&u.ID, &u.Email, &u.Phone, &u.FirstName, &u.LastName,
		&u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.User = &u
	return &a, nil
}

func (r *agentRepoPG) Create(ctx context.Context, a *Agent) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO agents (id, user_id, organisation_id, department)
		VALUES ($1,$2,$3,$4)`,
		a.ID, a.UserID, a.OrganisationID, a.Department)
	return err
}

func (r *agentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Agent, error) {
	return r.scanAgent(r.conn(ctx).QueryRow(ctx, `
		SELECT `+agentCols+` FROM agents a JOIN users u ON u.id = a.user_id
		WHERE a.id = $1`, id))
}

func (r *agentRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Agent, error) {
	return r.scanAgent(r.conn(ctx).QueryRow(ctx, `
		SELECT `+agentCols+` FROM agents a JOIN users u ON u.id = a.user_id
		WHERE a.user_id = $1`, userID))
}

func (r *agentRepoPG) ListByOrganisation(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Agent, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM agents WHERE organisation_id = $1`, orgID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+agentCols+` FROM agents a JOIN users u ON u.id = a.user_id
		WHERE a.organisation_id = $1 ORDER BY a.created_at DESC LIMIT $2 OFFSET $3`,
		orgID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Agent
	for rows.Next() {
		a, err := r.scanAgent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *agentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	return err
}
