package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inkbook/inkbook/internal/platform/apperr"
	"github.com/inkbook/inkbook/internal/platform/auth"
	"github.com/inkbook/inkbook/internal/platform/db"
)

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, name, last_name, email, username, password_hash, birth_date,
	role, is_deleted, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.LastName, &u.Email, &u.Username, &u.PasswordHash, &u.BirthDate,
		&u.Role, &u.IsDeleted, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func collectUsers(rows pgx.Rows) ([]*User, error) {
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO app_user (id, name, last_name, email, username, password_hash, birth_date, role)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		u.ID, u.Name, u.LastName, u.Email, u.Username, u.PasswordHash, u.BirthDate, u.Role,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return apperr.FromPG("create user", err)
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM app_user WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromPG("get user", err)
	}
	return u, nil
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM app_user WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, apperr.FromPG("get user by email", err)
	}
	return u, nil
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE app_user SET name=$2, last_name=$3, email=$4, username=$5, birth_date=$6,
			role=$7, is_deleted=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.Name, u.LastName, u.Email, u.Username, u.BirthDate, u.Role, u.IsDeleted,
	).Scan(&u.UpdatedAt)
	return apperr.FromPG("update user", err)
}

func (r *userRepoPG) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE app_user SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return apperr.FromPG("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

func (r *userRepoPG) ListByRole(ctx context.Context, role auth.Role, includeDeleted bool) ([]*User, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+userCols+` FROM app_user
		WHERE role = $1 AND ($2 OR NOT is_deleted)
		ORDER BY last_name, name`, role, includeDeleted)
	if err != nil {
		return nil, apperr.FromPG("list users by role", err)
	}
	items, err := collectUsers(rows)
	return items, apperr.FromPG("list users by role", err)
}

func (r *userRepoPG) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM app_user`).Scan(&total); err != nil {
		return nil, 0, apperr.FromPG("count users", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+userCols+` FROM app_user ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromPG("list users", err)
	}
	items, err := collectUsers(rows)
	if err != nil {
		return nil, 0, apperr.FromPG("list users", err)
	}
	return items, total, nil
}

func (r *userRepoPG) ExistsWithRole(ctx context.Context, id uuid.UUID, role auth.Role) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM app_user WHERE id = $1 AND NOT is_deleted AND ($2 = '' OR role = $2)
		)`, id, string(role)).Scan(&exists)
	if err != nil {
		return false, apperr.FromPG("check user", err)
	}
	return exists, nil
}
