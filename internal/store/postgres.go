package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an optimistic version check fails on save.
	ErrConflict = errors.New("version conflict")
	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users ----

const userColumns = `id, name, email, COALESCE(password_hash, ''), COALESCE(google_id, ''), avatar_url,
	is_email_verified, email_verification_code, email_verification_expires,
	password_reset_code, password_reset_expires, last_login,
	failed_login_attempts, is_locked, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.GoogleID, &user.AvatarURL,
		&user.IsEmailVerified, &user.EmailVerificationCode, &user.EmailVerificationExpires,
		&user.PasswordResetCode, &user.PasswordResetExpires, &user.LastLogin,
		&user.FailedLoginAttempts, &user.IsLocked, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, google_id, avatar_url,
			is_email_verified, email_verification_code, email_verification_expires)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.GoogleID, user.AvatarURL,
		user.IsEmailVerified, user.EmailVerificationCode, user.EmailVerificationExpires)
	if err != nil {
		if strings.Contains(err.Error(), "users_email_key") {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// SetVerificationCode stores a fresh verification code together with its expiry.
func (s *PostgresStore) SetVerificationCode(ctx context.Context, userID, code string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET email_verification_code=$2, email_verification_expires=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, code, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification code: %w", err)
	}
	return nil
}

// ConsumeVerificationCode marks the email verified and clears the code/expiry
// pair in one conditional update. It reports false when the stored code no
// longer matches or has expired, so a racing second consume cannot reuse it.
func (s *PostgresStore) ConsumeVerificationCode(ctx context.Context, userID, code string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET is_email_verified=TRUE, email_verification_code=NULL,
			email_verification_expires=NULL, updated_at=NOW()
		WHERE id=$1 AND email_verification_code=$2 AND email_verification_expires >= $3
	`, userID, code, now)
	if err != nil {
		return false, fmt.Errorf("consume verification code: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume verification code: %w", err)
	}
	return affected > 0, nil
}

// SetResetCode stores a fresh password reset code together with its expiry.
func (s *PostgresStore) SetResetCode(ctx context.Context, userID, code string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_reset_code=$2, password_reset_expires=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, code, expiresAt)
	if err != nil {
		return fmt.Errorf("set reset code: %w", err)
	}
	return nil
}

// ConsumeResetCode writes the new password hash and clears the code/expiry
// pair in one conditional update, guaranteeing single use of the code.
func (s *PostgresStore) ConsumeResetCode(ctx context.Context, userID, code, passwordHash string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash=$3, password_reset_code=NULL,
			password_reset_expires=NULL, failed_login_attempts=0, is_locked=FALSE, updated_at=NOW()
		WHERE id=$1 AND password_reset_code=$2 AND password_reset_expires >= $4
	`, userID, code, passwordHash, now)
	if err != nil {
		return false, fmt.Errorf("consume reset code: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume reset code: %w", err)
	}
	return affected > 0, nil
}

// RecordFailedLogin bumps the failed-attempt counter and locks the account
// once the threshold is reached.
func (s *PostgresStore) RecordFailedLogin(ctx context.Context, userID string, lockThreshold int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET failed_login_attempts = failed_login_attempts + 1,
			is_locked = (failed_login_attempts + 1 >= $2), updated_at=NOW()
		WHERE id=$1
	`, userID, lockThreshold)
	if err != nil {
		return fmt.Errorf("record failed login: %w", err)
	}
	return nil
}

// RecordLogin resets the failure counters and stamps last_login.
func (s *PostgresStore) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET failed_login_attempts=0, is_locked=FALSE, last_login=$2, updated_at=NOW()
		WHERE id=$1
	`, userID, at)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

// ---- posts ----

func (s *PostgresStore) InsertPost(ctx context.Context, record PostRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (id, user_id, publish, doc, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
	`, record.ID, record.UserID, record.Publish, record.Doc, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (PostRecord, error) {
	var record PostRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, publish, doc, version, created_at, updated_at
		FROM posts WHERE id = $1
	`, id).Scan(&record.ID, &record.UserID, &record.Publish, &record.Doc,
		&record.Version, &record.CreatedAt, &record.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PostRecord{}, ErrNotFound
	}
	if err != nil {
		return PostRecord{}, fmt.Errorf("get post: %w", err)
	}
	return record, nil
}

// UpdatePost saves the document only if the stored version still matches
// record.Version. A concurrent writer wins the race by bumping the version
// first; the loser gets ErrConflict and is expected to reload and retry.
func (s *PostgresStore) UpdatePost(ctx context.Context, record PostRecord) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts SET publish=$3, doc=$4, version=version+1, updated_at=NOW()
		WHERE id=$1 AND version=$2
	`, record.ID, record.Version, record.Publish, record.Doc)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) DeletePost(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPosts returns post documents, optionally restricted to published ones,
// newest first. A limit of 0 means no limit.
func (s *PostgresStore) ListPosts(ctx context.Context, publishedOnly bool, limit int) ([]PostRecord, error) {
	query := `SELECT id, user_id, publish, doc, version, created_at, updated_at FROM posts`
	var args []any
	if publishedOnly {
		query += ` WHERE publish = 'published'`
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var records []PostRecord
	for rows.Next() {
		var record PostRecord
		if err := rows.Scan(&record.ID, &record.UserID, &record.Publish, &record.Doc,
			&record.Version, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ListPostsByUser returns every post owned by a user, drafts included,
// newest first.
func (s *PostgresStore) ListPostsByUser(ctx context.Context, userID string) ([]PostRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, publish, doc, version, created_at, updated_at
		FROM posts WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list posts by user: %w", err)
	}
	defer rows.Close()

	var records []PostRecord
	for rows.Next() {
		var record PostRecord
		if err := rows.Scan(&record.ID, &record.UserID, &record.Publish, &record.Doc,
			&record.Version, &record.CreatedAt, &record.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// ---- files ----

func (s *PostgresStore) InsertFile(ctx context.Context, record FileRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, user_id, object_key, original_name, mime_type, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, record.ID, record.UserID, record.ObjectKey, record.OriginalName,
		record.MimeType, record.SizeBytes, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFile(ctx context.Context, id string) (FileRecord, error) {
	var record FileRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, object_key, original_name, mime_type, size_bytes, created_at
		FROM files WHERE id = $1
	`, id).Scan(&record.ID, &record.UserID, &record.ObjectKey, &record.OriginalName,
		&record.MimeType, &record.SizeBytes, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, ErrNotFound
	}
	if err != nil {
		return FileRecord{}, fmt.Errorf("get file: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) DeleteFile(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
