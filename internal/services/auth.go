// Package services contains the vault's application services.
// This file defines the master password lifecycle: first-time setup,
// unlocking the data key, verifying a password for the control API and
// changing the password.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/dmitrijs2005/filevault/internal/storage"

	userrepo "github.com/dmitrijs2005/filevault/internal/repositories/users"
)

// AuthService defines the master password operations.
//
// Contract:
//   - Setup: create credentials for an empty vault; fails with
//     common.ErrAlreadyInitialized when a user row exists.
//   - Unlock: verify the password and return the unwrapped data key.
//   - Verify: check the password only; common.ErrUnauthorized on mismatch.
//   - ChangePassword: rewrap the existing data key under a new password.
//
// All methods honor context cancellation through the database calls.
type AuthService interface {
	IsInitialized(ctx context.Context) (bool, error)
	Setup(ctx context.Context, password []byte) error
	Unlock(ctx context.Context, password []byte) ([]byte, error)
	Verify(ctx context.Context, password []byte) error
	ChangePassword(ctx context.Context, oldPassword, newPassword []byte) error
}

type authService struct {
	store *storage.Store
	log   logging.Logger
	now   func() time.Time
}

// NewAuthService constructs an AuthService bound to the given store.
func NewAuthService(store *storage.Store, log logging.Logger) AuthService {
	return &authService{
		store: store,
		log:   log.With("module", "auth"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (a *authService) users() userrepo.Repository {
	return userrepo.NewSQLRepository(a.store.DB())
}

func (a *authService) IsInitialized(ctx context.Context) (bool, error) {
	_, err := a.users().Get(ctx)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ValidatePassword reports common.ErrInvalidArgument for passwords shorter
// than common.MinPasswordLength characters.
func ValidatePassword(password []byte) error {
	if utf8.RuneCount(password) < common.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrInvalidArgument, common.MinPasswordLength)
	}
	return nil
}

// Setup generates a random salt and data key, derives the key-encryption
// key from password and stores the verifier and the wrapped data key.
func (a *authService) Setup(ctx context.Context, password []byte) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	ok, err := a.IsInitialized(ctx)
	if err != nil {
		return err
	}
	if ok {
		return common.ErrAlreadyInitialized
	}

	dataKey, err := cryptox.RandBytes(cryptox.KeySize)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(dataKey)

	u, err := sealCredentials(password, dataKey)
	if err != nil {
		return err
	}
	u.CreatedAt = a.now()

	if _, err := a.users().Create(ctx, u); err != nil {
		return err
	}
	a.log.Info(ctx, "vault initialized")
	return nil
}

// Unlock verifies password and returns the vault data key. The caller owns
// the returned slice and should wipe it when done.
func (a *authService) Unlock(ctx context.Context, password []byte) ([]byte, error) {
	u, kek, err := a.check(ctx, password)
	if err != nil {
		return nil, err
	}
	defer cryptox.Wipe(kek)

	dataKey, err := cryptox.UnwrapKey(kek, u.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}
	a.log.Info(ctx, "vault unlocked")
	return dataKey, nil
}

func (a *authService) Verify(ctx context.Context, password []byte) error {
	_, kek, err := a.check(ctx, password)
	if err != nil {
		return err
	}
	cryptox.Wipe(kek)
	return nil
}

func (a *authService) ChangePassword(ctx context.Context, oldPassword, newPassword []byte) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	if string(oldPassword) == string(newPassword) {
		return fmt.Errorf("%w: new password must differ from the current one", common.ErrInvalidArgument)
	}

	u, kek, err := a.check(ctx, oldPassword)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(kek)

	dataKey, err := cryptox.UnwrapKey(kek, u.WrappedKey)
	if err != nil {
		return fmt.Errorf("unwrap data key: %w", err)
	}
	defer cryptox.Wipe(dataKey)

	next, err := sealCredentials(newPassword, dataKey)
	if err != nil {
		return err
	}
	if err := a.users().UpdateCredentials(ctx, u.ID, next.PasswordHash, next.Salt, next.WrappedKey); err != nil {
		return err
	}
	a.log.Info(ctx, "master password changed")
	return nil
}

// check loads the user row and derives the key-encryption key from
// password. It returns common.ErrNotInitialized for an empty vault and
// common.ErrUnauthorized for a wrong password.
func (a *authService) check(ctx context.Context, password []byte) (*models.User, []byte, error) {
	u, err := a.users().Get(ctx)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil, common.ErrNotInitialized
	}
	if err != nil {
		return nil, nil, err
	}

	kek := cryptox.DeriveMasterKey(password, u.Salt)
	if !cryptox.CheckVerifier(kek, u.PasswordHash) {
		cryptox.Wipe(kek)
		a.log.Warn(ctx, "password verification failed")
		return nil, nil, common.ErrUnauthorized
	}
	return u, kek, nil
}

func sealCredentials(password, dataKey []byte) (*models.User, error) {
	salt, err := cryptox.RandBytes(cryptox.SaltSize)
	if err != nil {
		return nil, err
	}
	kek := cryptox.DeriveMasterKey(password, salt)
	defer cryptox.Wipe(kek)

	wrapped, err := cryptox.WrapKey(kek, dataKey)
	if err != nil {
		return nil, fmt.Errorf("wrap data key: %w", err)
	}
	return &models.User{
		PasswordHash: cryptox.MakeVerifier(kek),
		Salt:         salt,
		WrappedKey:   wrapped,
	}, nil
}
