package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a contributor registered in the portal.
type User struct {
	// ID is the unique identifier for the user.
	ID uuid.UUID `json:"id"`

	// Username is the unique username for login and display.
	// Constraints: 3-255 characters.
	Username string `json:"username"`

	// Email is the unique email address for the user.
	Email string `json:"email"`

	// PasswordHash is the bcrypt hash of the user's password.
	// This should never be exposed in API responses.
	PasswordHash string `json:"-"`

	// DisplayName is the name shown on contributor pages.
	DisplayName string `json:"display_name"`

	// Avatar is the avatar image URL.
	Avatar string `json:"avatar,omitempty"`

	// ProfileImage is the profile banner image URL.
	ProfileImage string `json:"profile_image,omitempty"`

	// Bio is free-form text.
	Bio string `json:"bio"`

	// IsAdmin indicates whether the user has administrative privileges.
	IsAdmin bool `json:"is_admin"`

	// Version increases by one on every stored update.
	Version int64 `json:"version"`

	// CreatedAt is the timestamp when the user was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the timestamp when the user was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUser creates a new User with default values.
func NewUser(username, email, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  username,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// LedgerOwnerID implements ReferenceOwner.
func (u *User) LedgerOwnerID() string {
	return u.ID.String()
}

// ReferenceFields implements ReferenceOwner.
func (u *User) ReferenceFields() []FieldValue {
	return []FieldValue{
		ScalarField(FieldUserAvatar, u.Avatar),
		ScalarField(FieldUserProfileImage, u.ProfileImage),
	}
}

// SetField assigns a URL to the field of the given kind.
func (u *User) SetField(kind FieldKind, url string) error {
	switch kind {
	case FieldUserAvatar:
		u.Avatar = url
	case FieldUserProfileImage:
		u.ProfileImage = url
	default:
		return NewDomainError(ErrInvalidFieldKind, "not a user field", kind.String())
	}
	return nil
}

// Clone returns a copy of the user.
func (u *User) Clone() *User {
	c := *u
	return &c
}
