package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	_ "github.com/jackc/pgx/v4/stdlib"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pinboard/pkg/apperr"
	"pinboard/pkg/common"
)

const userColumns = "id, username, email, password, profile_picture, verified, created_at, updated_at"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id              TEXT PRIMARY KEY,
		username        TEXT NOT NULL UNIQUE,
		email           TEXT NOT NULL UNIQUE,
		password        BYTEA NOT NULL,
		profile_picture TEXT NOT NULL DEFAULT '',
		verified        BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS saved_posts (
		user_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		post_id  TEXT NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (user_id, post_id)
	)`,
	`CREATE INDEX IF NOT EXISTS saved_posts_post_id_idx ON saved_posts (post_id)`,
}

// Toggles (user_id, post_id) in one statement: the insert only runs when the
// delete removed nothing, so one affected row means the post is now saved.
const toggleSavedQuery = `WITH removed AS (
	DELETE FROM saved_posts WHERE user_id = $1 AND post_id = $2 RETURNING post_id
)
INSERT INTO saved_posts (user_id, post_id)
SELECT $1, $2 WHERE NOT EXISTS (SELECT 1 FROM removed)
ON CONFLICT DO NOTHING`

const savedExistsQuery = "SELECT EXISTS(SELECT 1 FROM saved_posts WHERE user_id=$1 AND post_id=$2)"

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{
		db: db,
	}
}

func (r *UserRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("user/repo: failed creating schema: %w", err)
		}
	}
	return nil
}

// Add stores a new user. The id is generated here when empty.
func (r *UserRepo) Add(ctx context.Context, u *User) (string, error) {
	if u.Id == "" {
		u.Id = primitive.NewObjectID().Hex()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	result, err := r.db.ExecContext(ctx,
		"INSERT INTO users(id, username, email, password, profile_picture, verified, created_at, updated_at) VALUES($1, $2, $3, $4, $5, $6, $7, $8)",
		u.Id, u.Username, u.Email, u.Password, u.ProfilePicture, u.Verified, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ``, apperr.Conflict("username or email already in use")
		}
		return ``, fmt.Errorf("user/repo: insert failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return ``, fmt.Errorf("user/repo: user wasn't added: %w", err)
	}
	if affected == 0 {
		return ``, fmt.Errorf("user/repo: user wasn't added, no rows affected")
	}
	return u.Id, nil
}

func (r *UserRepo) UserExists(ctx context.Context, username, email string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, "SELECT id FROM users WHERE username=$1 OR email=$2 LIMIT 1", username, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("user/repo: could not scan row: %w", err)
	}
	return true, nil
}

func (r *UserRepo) GetById(ctx context.Context, uid string) (*User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id=$1", uid)
	return scanUser(row)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email=$1", email)
	return scanUser(row)
}

func (r *UserRepo) GetByEmailAndPass(ctx context.Context, email, pass string) (*User, error) {
	u, err := r.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized("incorrect email or password")
	}
	if err != nil {
		return nil, err
	}
	if !common.CheckPass(u.Password, pass) {
		return nil, apperr.Unauthorized("incorrect email or password")
	}
	return u, nil
}

func (r *UserRepo) SetVerified(ctx context.Context, uid string) error {
	return r.exec(ctx, "UPDATE users SET verified=TRUE, updated_at=now() WHERE id=$1", uid)
}

func (r *UserRepo) UpdatePassword(ctx context.Context, uid string, hash []byte) error {
	return r.exec(ctx, "UPDATE users SET password=$2, updated_at=now() WHERE id=$1", uid, hash)
}

// UpdateProfile changes only the fields that are not nil.
func (r *UserRepo) UpdateProfile(ctx context.Context, uid string, username, profilePicture *string) error {
	err := r.exec(ctx,
		"UPDATE users SET username=COALESCE($2, username), profile_picture=COALESCE($3, profile_picture), updated_at=now() WHERE id=$1",
		uid, username, profilePicture)
	if isUniqueViolation(err) {
		return apperr.Conflict("username already in use")
	}
	return err
}

// ToggleSaved adds the post to the user's saved list or removes it.
// Returns true when the post is saved after the call. No inserted row means
// either a removal or a concurrent save that won the insert, so the row is
// looked up again.
func (r *UserRepo) ToggleSaved(ctx context.Context, uid, postId string) (bool, error) {
	result, err := r.db.ExecContext(ctx, toggleSavedQuery, uid, postId)
	if err != nil {
		return false, fmt.Errorf("user/repo: failed toggling saved post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("user/repo: failed toggling saved post: %w", err)
	}
	if affected == 1 {
		return true, nil
	}

	var saved bool
	if err := r.db.QueryRowContext(ctx, savedExistsQuery, uid, postId).Scan(&saved); err != nil {
		return false, fmt.Errorf("user/repo: failed checking saved post: %w", err)
	}
	return saved, nil
}

// SavedPostIDs returns the user's saved posts, most recently saved first.
func (r *UserRepo) SavedPostIDs(ctx context.Context, uid string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT post_id FROM saved_posts WHERE user_id=$1 ORDER BY saved_at DESC", uid)
	if err != nil {
		return nil, fmt.Errorf("user/repo: failed loading saved posts: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("user/repo: could not scan row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user/repo: failed iterating saved posts: %w", err)
	}
	return ids, nil
}

// RemoveSavedPost drops a deleted post from every saved list.
func (r *UserRepo) RemoveSavedPost(ctx context.Context, postId string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM saved_posts WHERE post_id=$1", postId); err != nil {
		return fmt.Errorf("user/repo: failed removing saved post: %w", err)
	}
	return nil
}

// Returns all users. Used only for seeding the DB.
func (r *UserRepo) GetAll(ctx context.Context) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users")
	if err != nil {
		return nil, fmt.Errorf("user/repo: failed executing query for getting all users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("user/repo: failed iterating users: %w", err)
	}

	return users, nil
}

func (r *UserRepo) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("user/repo: update failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("user/repo: update failed: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row scanner) (*User, error) {
	u := new(User)
	err := row.Scan(&u.Id, &u.Username, &u.Email, &u.Password, &u.ProfilePicture, &u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("user/repo: could not scan row: %w", err)
	}
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
