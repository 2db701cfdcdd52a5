package domain

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt cost used for stored password hashes.
const PasswordCost = 12

// DefaultPassword is assigned to accounts seeded without one.
const DefaultPassword = "password"

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", ValidationError{Field: "password", Reason: "password must not be blank"}
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether password matches the stored hash.
func (u User) VerifyPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// NewUser validates the fields and hashes password into a new User.
func NewUser(nric, name string, age int, marital MaritalStatus, role Role, password string) (User, error) {
	u := User{NRIC: strings.ToUpper(strings.TrimSpace(nric)), Name: strings.TrimSpace(name), Age: age, MaritalStatus: marital, Role: role}
	if err := u.Validate(); err != nil {
		return User{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, err
	}
	u.PasswordHash = hash
	return u, nil
}
