package core

import (
	"context"

	"btocore/pkg/domain"
)

// NewUserInput carries the fields of a new account.
type NewUserInput struct {
	NRIC          string
	Name          string
	Age           int
	MaritalStatus domain.MaritalStatus
	Role          domain.Role
	// Password defaults to domain.DefaultPassword when empty.
	Password string
}

// CreateUser validates and stores a new account with a bcrypt password hash.
func (s *Service) CreateUser(ctx context.Context, in NewUserInput) (User, error) {
	password := in.Password
	if password == "" {
		password = domain.DefaultPassword
	}
	var created User
	_, err := s.run(ctx, opCreateUser, User{}, in.NRIC, func(tx domain.Transaction) error {
		u, err := domain.NewUser(in.NRIC, in.Name, in.Age, in.MaritalStatus, in.Role, password)
		if err != nil {
			return err
		}
		created, err = tx.CreateUser(u)
		return err
	})
	return created, err
}

// FindUser returns the account for nric.
func (s *Service) FindUser(ctx context.Context, nric string) (User, error) {
	var out User
	err := s.view(ctx, func(view domain.TransactionView) error {
		u, ok := view.FindUser(nric)
		if !ok {
			return domain.NotFound(domain.EntityUser, nric)
		}
		out = u
		return nil
	})
	return out, err
}

// ChangePassword replaces the user's password after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, user User, oldPassword, newPassword string) error {
	_, err := s.run(ctx, opChangePassword, user, user.NRIC, func(tx domain.Transaction) error {
		current, ok := tx.Snapshot().FindUser(user.NRIC)
		if !ok {
			return domain.NotFound(domain.EntityUser, user.NRIC)
		}
		if !current.VerifyPassword(oldPassword) {
			return domain.Rejected(opChangePassword, domain.ErrInvalidCredentials, "current password does not match")
		}
		hash, err := domain.HashPassword(newPassword)
		if err != nil {
			return err
		}
		_, err = tx.UpdateUser(user.NRIC, func(u *domain.User) error {
			u.PasswordHash = hash
			return nil
		})
		return err
	})
	return err
}
