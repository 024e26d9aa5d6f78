package postgres

import (
	"context"

	"github.com/geocoder89/backoffice/internal/domain/user"
	"github.com/geocoder89/backoffice/internal/observability"
	"github.com/geocoder89/backoffice/internal/rowquery"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var UserSchema = rowquery.Schema{
	Table: "users",
	Columns: map[string]rowquery.ColumnType{
		"id":            rowquery.UUID,
		"email":         rowquery.Text,
		"name":          rowquery.Text,
		"role":          rowquery.Text,
		"active":        rowquery.Bool,
		"last_login_at": rowquery.Time,
		"created_at":    rowquery.Time,
	},
	SearchColumns: []string{"email", "name"},
	DefaultOrder:  []rowquery.Order{{Column: "created_at", Desc: true}},
	DefaultLimit:  20,
	MaxLimit:      100,
}

const userColumns = `id, email, password_hash, name, role, active, avatar_url, last_login_at, created_at, updated_at`

type UsersRepo struct {
	base
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{base{pool: pool, prom: prom}}
}

func scanUser(row pgx.Row, extra ...any) (user.User, error) {
	var u user.User
	dest := []any{
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role,
		&u.Active, &u.AvatarURL, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return u, err
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	err := r.observe("users.get_by_email", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, user.NormalizeEmail(email)))
		return err
	})
	if err != nil {
		return user.User{}, mapNoRows(err, user.ErrNotFound)
	}
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	var u user.User
	err := r.observe("users.get_by_id", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
		return err
	})
	if err != nil {
		return user.User{}, mapNoRows(err, user.ErrNotFound)
	}
	return u, nil
}

func (r *UsersRepo) List(ctx context.Context, q rowquery.Query) ([]user.User, int, error) {
	sql, args := q.Select(userColumns)

	out := make([]user.User, 0, q.Limit)
	total := 0

	err := r.observe("users.list", func() error {
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var t int
			u, err := scanUser(rows, &t)
			if err != nil {
				return err
			}
			total = t
			out = append(out, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, err
	}

	return out, total, nil
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	err := r.observe("users.create", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, name, role, active, avatar_url, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.Active, u.AvatarURL, u.CreatedAt, u.UpdatedAt)
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}
	return u, nil
}

// Update applies a partial update. Removing the last active admin is refused,
// and deactivation revokes every refresh token of the user in the same
// transaction.
func (r *UsersRepo) Update(ctx context.Context, id string, req user.UpdateUserRequest, newPasswordHash *string) (user.User, error) {
	var out user.User

	err := r.inTx(ctx, "users.update", func(tx pgx.Tx) error {
		var admins []string
		if req.Role != nil || req.Active != nil {
			var err error
			if admins, err = lockActiveAdmins(ctx, tx); err != nil {
				return err
			}
		}

		cur, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapNoRows(err, user.ErrNotFound)
		}

		if req.RemovesAdmin(cur) && !anyOther(admins, id) {
			return user.ErrLastAdmin
		}

		cur = req.Apply(cur)
		if newPasswordHash != nil {
			cur.PasswordHash = *newPasswordHash
		}

		out, err = scanUser(tx.QueryRow(ctx,
			`UPDATE users
			SET name = $2, role = $3, active = $4, password_hash = $5, updated_at = NOW()
			WHERE id = $1
			RETURNING `+userColumns,
			id, cur.Name, cur.Role, cur.Active, cur.PasswordHash))
		if err != nil {
			return err
		}

		if !out.Active || newPasswordHash != nil {
			return revokeAllForUser(ctx, tx, id)
		}
		return nil
	})
	if err != nil {
		return user.User{}, err
	}

	return out, nil
}

func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	return r.inTx(ctx, "users.delete", func(tx pgx.Tx) error {
		admins, err := lockActiveAdmins(ctx, tx)
		if err != nil {
			return err
		}

		cur, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return mapNoRows(err, user.ErrNotFound)
		}

		if cur.Role == user.RoleAdmin && cur.Active && !anyOther(admins, id) {
			return user.ErrLastAdmin
		}

		_, err = tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		return err
	})
}

// lockActiveAdmins locks the active admin rows in id order and returns their
// ids. It runs before the target row is locked, so concurrent demotions queue
// on the same rows and the later one sees the earlier one's result.
func lockActiveAdmins(ctx context.Context, tx pgx.Tx) ([]string, error) {
	rows, err := tx.Query(ctx,
		`SELECT id FROM users WHERE role = 'admin' AND active ORDER BY id FOR UPDATE`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func anyOther(ids []string, id string) bool {
	for _, v := range ids {
		if v != id {
			return true
		}
	}
	return false
}

func (r *UsersRepo) TouchLastLogin(ctx context.Context, id string) error {
	return r.observe("users.touch_last_login", func() error {
		_, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at = NOW() WHERE id = $1`, id)
		return err
	})
}

func (r *UsersRepo) SetAvatarURL(ctx context.Context, id, url string) (user.User, error) {
	var u user.User
	err := r.observe("users.set_avatar", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`UPDATE users SET avatar_url = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, id, url))
		return err
	})
	if err != nil {
		return user.User{}, mapNoRows(err, user.ErrNotFound)
	}
	return u, nil
}

// EnsureUser inserts u unless a user with the same email exists. It reports
// whether a row was created.
func (r *UsersRepo) EnsureUser(ctx context.Context, u user.User) (bool, error) {
	created := false
	err := r.observe("users.ensure", func() error {
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, email, password_hash, name, role, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)
			ON CONFLICT (email) DO NOTHING`,
			u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.CreatedAt, u.UpdatedAt)
		if err != nil {
			return err
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	return created, err
}
