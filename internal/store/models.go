package store

import "time"

// User is the account row. The verification and reset code/expiry pairs are
// always set and cleared together.
type User struct {
	ID                       string
	Name                     string
	Email                    string
	PasswordHash             string
	GoogleID                 string
	AvatarURL                string
	IsEmailVerified          bool
	EmailVerificationCode    *string
	EmailVerificationExpires *time.Time
	PasswordResetCode        *string
	PasswordResetExpires     *time.Time
	LastLogin                *time.Time
	FailedLoginAttempts      int
	IsLocked                 bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// PostRecord is the persisted form of a post aggregate: the whole document as
// JSON plus the version used for optimistic concurrency. Publish is mirrored
// into its own column for listing queries.
type PostRecord struct {
	ID        string
	UserID    string
	Publish   string
	Doc       []byte
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FileRecord is the metadata row for an uploaded object; the bytes live in
// object storage under ObjectKey.
type FileRecord struct {
	ID           string
	UserID       string
	ObjectKey    string
	OriginalName string
	MimeType     string
	SizeBytes    int64
	CreatedAt    time.Time
}
