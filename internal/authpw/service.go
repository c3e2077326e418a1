// Package authpw provides email/password authentication with six digit
// verification and reset codes.
package authpw

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

const (
	verificationTTL = 24 * time.Hour
	resetTTL        = 1 * time.Hour
	lockThreshold   = 5
	minPasswordLen  = 8
)

// UserStore defines the storage interface for auth.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	SetVerificationCode(ctx context.Context, userID, code string, expiresAt time.Time) error
	ConsumeVerificationCode(ctx context.Context, userID, code string, now time.Time) (bool, error)
	SetResetCode(ctx context.Context, userID, code string, expiresAt time.Time) error
	ConsumeResetCode(ctx context.Context, userID, code, passwordHash string, now time.Time) (bool, error)
	RecordFailedLogin(ctx context.Context, userID string, lockThreshold int) error
	RecordLogin(ctx context.Context, userID string, at time.Time) error
}

// Mailer delivers codes to users. Delivery failures are logged, not
// returned: the code is stored and can be resent.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, name, code string) error
	SendPasswordResetCode(ctx context.Context, to, name, code string) error
}

// Service provides email/password authentication.
type Service struct {
	store  UserStore
	mailer Mailer
	now    func() time.Time
}

func NewService(store UserStore, mailer Mailer) *Service {
	return &Service{
		store:  store,
		mailer: mailer,
		now:    time.Now,
	}
}

// SignUpRequest contains sign-up parameters.
type SignUpRequest struct {
	Name     string
	Email    string
	Password string
}

// SignUp creates an unverified account and mails its verification code.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return store.User{}, fmt.Errorf("%w: name, email and password are required", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLen {
		return store.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return store.User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	code, err := GenerateCode()
	if err != nil {
		return store.User{}, err
	}

	now := s.now()
	expiresAt := now.Add(verificationTTL)
	user := store.User{
		ID:                       util.NewID("usr"),
		Name:                     req.Name,
		Email:                    req.Email,
		PasswordHash:             string(hash),
		EmailVerificationCode:    &code,
		EmailVerificationExpires: &expiresAt,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if err == store.ErrDuplicateEmail {
			return store.User{}, ErrEmailTaken
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.mailer.SendVerificationCode(ctx, user.Email, user.Name, code); err != nil {
		log.Printf("send verification code to %s: %v", user.Email, err)
	}
	return user, nil
}

// SignIn authenticates a user. Failed attempts count toward a lockout;
// a successful one clears the counter.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	if email == "" || password == "" {
		return store.User{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	if user.IsLocked {
		return store.User{}, ErrAccountLocked
	}
	if user.PasswordHash == "" {
		// Federated account with no password set.
		return store.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if err := s.store.RecordFailedLogin(ctx, user.ID, lockThreshold); err != nil {
			log.Printf("record failed login for %s: %v", user.ID, err)
		}
		return store.User{}, ErrInvalidCredentials
	}
	if !user.IsEmailVerified {
		return store.User{}, ErrNotVerified
	}

	if err := s.store.RecordLogin(ctx, user.ID, s.now()); err != nil {
		log.Printf("record login for %s: %v", user.ID, err)
	}
	return user, nil
}

// VerifyEmail consumes a verification code and marks the account verified.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return ErrCodeMismatch
	}
	if user.IsEmailVerified {
		return ErrAlreadyVerified
	}

	switch ClassifyCode(user.EmailVerificationCode, user.EmailVerificationExpires, code, s.now()) {
	case CodeExpired:
		return ErrCodeExpired
	case CodeMismatch:
		return ErrCodeMismatch
	}

	ok, err := s.store.ConsumeVerificationCode(ctx, user.ID, code, s.now())
	if err != nil {
		return fmt.Errorf("consume verification code: %w", err)
	}
	if !ok {
		// Lost a race with another consume of the same code.
		return ErrCodeMismatch
	}
	return nil
}

// ResendVerification issues a fresh verification code, replacing any
// outstanding one.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		// Don't reveal whether the email exists.
		return nil
	}
	if user.IsEmailVerified {
		return ErrAlreadyVerified
	}

	code, err := GenerateCode()
	if err != nil {
		return err
	}
	if err := s.store.SetVerificationCode(ctx, user.ID, code, s.now().Add(verificationTTL)); err != nil {
		return fmt.Errorf("set verification code: %w", err)
	}
	if err := s.mailer.SendVerificationCode(ctx, user.Email, user.Name, code); err != nil {
		log.Printf("send verification code to %s: %v", user.Email, err)
	}
	return nil
}

// RequestPasswordReset issues a reset code, replacing any outstanding one.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		// Don't reveal whether the email exists.
		return nil
	}

	code, err := GenerateCode()
	if err != nil {
		return err
	}
	if err := s.store.SetResetCode(ctx, user.ID, code, s.now().Add(resetTTL)); err != nil {
		return fmt.Errorf("set reset code: %w", err)
	}
	if err := s.mailer.SendPasswordResetCode(ctx, user.Email, user.Name, code); err != nil {
		log.Printf("send reset code to %s: %v", user.Email, err)
	}
	return nil
}

// ConfirmPasswordReset consumes a reset code and installs the new password.
// The code is single use: a second confirm with the same code fails.
func (s *Service) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return ErrCodeMismatch
	}

	switch ClassifyCode(user.PasswordResetCode, user.PasswordResetExpires, code, s.now()) {
	case CodeExpired:
		return ErrCodeExpired
	case CodeMismatch:
		return ErrCodeMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	ok, err := s.store.ConsumeResetCode(ctx, user.ID, code, string(hash), s.now())
	if err != nil {
		return fmt.Errorf("consume reset code: %w", err)
	}
	if !ok {
		return ErrCodeMismatch
	}
	return nil
}
