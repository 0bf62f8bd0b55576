package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/tablestore/internal/core"
)

// userColumns leaves out password_hash; only credential lookups read it.
const userColumns = `id, email, name, permissions, created_at, updated_at`

// Users implements core.UserRepository.
type Users struct {
	db interface {
		DBTX
		TxBeginner
	}
}

func NewUsers(db interface {
	DBTX
	TxBeginner
}) *Users {
	return &Users{db: db}
}

// CreateUser inserts u inside a transaction that holds a self-conflicting
// lock on users, so two first registrations cannot both see an empty table.
func (r *Users) CreateUser(ctx context.Context, u *core.User, onFirst func(*core.User)) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock users: %w", err)
		}

		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists); err != nil {
			return fmt.Errorf("count users: %w", err)
		}
		if !exists && onFirst != nil {
			onFirst(u)
		}

		return tx.QueryRow(ctx, `
			INSERT INTO users (id, email, name, password_hash, permissions)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at, updated_at`,
			u.ID, u.Email, u.Name, u.PasswordHash, u.Permissions.Names(),
		).Scan(&u.CreatedAt, &u.UpdatedAt)
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", u.Email, core.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *Users) GetUser(ctx context.Context, id string) (*core.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return u, nil
}

func (r *Users) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	var hash string
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE email = $1`, email), &hash)
	if err != nil {
		return nil, notFound(err, "user", email)
	}
	u.PasswordHash = hash
	return u, nil
}

func (r *Users) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []core.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *Users) UpdateUser(ctx context.Context, u *core.User) error {
	err := r.db.QueryRow(ctx, `
		UPDATE users
		SET name = $2, email = $3, permissions = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		u.ID, u.Name, u.Email, u.Permissions.Names(),
	).Scan(&u.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", u.Email, core.ErrConflict)
	}
	if err != nil {
		return notFound(err, "user", u.ID)
	}
	return nil
}

func (r *Users) DeleteUser(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// scanUser reads userColumns followed by any extra destinations.
func scanUser(row pgx.Row, extra ...any) (*core.User, error) {
	var (
		u     core.User
		perms []string
	)
	dest := append([]any{&u.ID, &u.Email, &u.Name, &perms, &u.CreatedAt, &u.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	set, err := core.ParsePermissionSet(perms)
	if err != nil {
		return nil, fmt.Errorf("user %s: stored permissions: %w", u.ID, err)
	}
	u.Permissions = set
	return &u, nil
}
