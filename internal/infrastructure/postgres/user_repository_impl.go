package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/go-user-graph/internal/domain/entity"
	"github.com/oksasatya/go-user-graph/internal/domain/repository"
)

const userColumns = `id, email, username, role, status, full_name, avatar_url, bio,
	social_links, preferences, followers, following, created_at, updated_at`

// UserRepository stores users in a single table. Relationship sets are text[]
// columns mutated with server-side array operations so that concurrent
// updates to the same row never lose each other.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*entity.User, error) {
	u := &entity.User{}
	var role, status string
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &role, &status, &u.FullName, &u.AvatarURL, &u.Bio,
		&u.SocialLinks, &u.Preferences, &u.Followers, &u.Following, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = entity.Role(role)
	u.Status = entity.Status(status)
	if u.Followers == nil {
		u.Followers = []string{}
	}
	if u.Following == nil {
		u.Following = []string{}
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

func (r *UserRepository) UpsertIfAbsent(ctx context.Context, u *entity.User) (bool, error) {
	followers, following := u.Followers, u.Following
	if followers == nil {
		followers = []string{}
	}
	if following == nil {
		following = []string{}
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, username, role, status, full_name, avatar_url, bio,
			social_links, preferences, followers, following, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`, u.ID, u.Email, u.Username, string(u.Role), string(u.Status), u.FullName, u.AvatarURL, u.Bio,
		u.SocialLinks, u.Preferences, followers, following, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("postgres: insert user %s: %w", u.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// column maps a relation field to its column name. Only known fields are
// ever interpolated into SQL.
func column(field entity.RelationField) (string, error) {
	switch field {
	case entity.FieldFollowers:
		return "followers", nil
	case entity.FieldFollowing:
		return "following", nil
	}
	return "", fmt.Errorf("postgres: invalid relation field %q", field)
}

func (r *UserRepository) AddToSet(ctx context.Context, id string, field entity.RelationField, value string) (bool, error) {
	col, err := column(field)
	if err != nil {
		return false, err
	}
	// The membership predicate is re-evaluated after the row lock is taken,
	// so two concurrent adds of the same value append it once.
	q := `UPDATE users SET ` + col + ` = array_append(` + col + `, $2::text), updated_at = now()
		WHERE id = $1 AND NOT ($2::text = ANY(` + col + `))`
	return r.mutateSet(ctx, q, id, value)
}

func (r *UserRepository) RemoveFromSet(ctx context.Context, id string, field entity.RelationField, value string) (bool, error) {
	col, err := column(field)
	if err != nil {
		return false, err
	}
	q := `UPDATE users SET ` + col + ` = array_remove(` + col + `, $2::text), updated_at = now()
		WHERE id = $1 AND $2::text = ANY(` + col + `)`
	return r.mutateSet(ctx, q, id, value)
}

func (r *UserRepository) mutateSet(ctx context.Context, q, id, value string) (bool, error) {
	tag, err := r.pool.Exec(ctx, q, id, value)
	if err != nil {
		return false, fmt.Errorf("postgres: update set of %s: %w", id, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	// Nothing changed: either the row is missing or the set already had the
	// requested shape.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: check user %s: %w", id, err)
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

func (r *UserRepository) BatchGet(ctx context.Context, ids []string) (map[string]*entity.User, error) {
	out := make(map[string]*entity.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: batch get users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan user: %w", err)
		}
		out[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: batch get users: %w", err)
	}
	return out, nil
}

func (r *UserRepository) ScanIDs(ctx context.Context, after string, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM users WHERE id > $1 ORDER BY id LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ids: %w", err)
	}
	return ids, nil
}

// UpdateProfile only writes profile columns; relationship sets are left to
// the set operations above.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, in entity.ProfileUpdate) (*entity.User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET full_name = COALESCE($2, full_name),
			bio = COALESCE($3, bio),
			social_links = COALESCE($4, social_links),
			preferences = COALESCE($5, preferences),
			avatar_url = COALESCE($6, avatar_url),
			updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns, id, in.FullName, in.Bio, in.SocialLinks, in.Preferences, in.AvatarURL)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: update profile %s: %w", id, err)
	}
	return u, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
