package domain

import (
	"strings"
	"time"
)

// UserStatus enumerates the lifecycle states of a user account.
type UserStatus string

const (
	UserActive          UserStatus = "active"
	UserBlocked         UserStatus = "blocked"
	UserPendingDeletion UserStatus = "pending_deletion"
	UserDeleted         UserStatus = "deleted"
)

// CanAuthenticate reports whether a user in this status may hold a session.
// Users pending deletion keep read access so they can cancel the request.
func (s UserStatus) CanAuthenticate() bool {
	return s == UserActive || s == UserPendingDeletion
}

// User is the identity anchor. At least one of Phone or Email is set while
// the account is not deleted.
type User struct {
	ID          string     `json:"id" db:"id"`
	Phone       *string    `json:"phone_e164,omitempty" db:"phone_e164"`
	Email       *string    `json:"email,omitempty" db:"email"`
	Status      UserStatus `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// ContactKind distinguishes the two verified contact channels.
type ContactKind string

const (
	ContactPhone ContactKind = "phone"
	ContactEmail ContactKind = "email"
)

// Valid reports whether k is a known contact kind.
func (k ContactKind) Valid() bool {
	return k == ContactPhone || k == ContactEmail
}

// AuthIdentity proves control of a contact channel.
// Unique on (kind, value) and on (user_id, kind).
type AuthIdentity struct {
	ID         string      `json:"id" db:"id"`
	UserID     string      `json:"user_id" db:"user_id"`
	Kind       ContactKind `json:"kind" db:"kind"`
	Value      string      `json:"value" db:"value"`
	IsVerified bool        `json:"is_verified" db:"is_verified"`
	VerifiedAt *time.Time  `json:"verified_at,omitempty" db:"verified_at"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
}

// Gender codes. 'U' means not yet chosen; match play requires M or F.
const (
	GenderMale    = "M"
	GenderFemale  = "F"
	GenderUnknown = "U"
)

// AvatarMode selects between a curated preset and an uploaded image.
type AvatarMode string

const (
	AvatarModePreset AvatarMode = "preset"
	AvatarModeUpload AvatarMode = "upload"
)

// UserProfile is the 1:1 public-facing profile. Alias is unique
// case-insensitively.
type UserProfile struct {
	UserID          string     `json:"user_id" db:"user_id"`
	Alias           string     `json:"alias" db:"alias"`
	Gender          string     `json:"gender" db:"gender"`
	IsPublic        bool       `json:"is_public" db:"is_public"`
	Country         string     `json:"country" db:"country"`
	City            *string    `json:"city,omitempty" db:"city"`
	Handedness      string     `json:"handedness" db:"handedness"`
	PreferredSide   string     `json:"preferred_side" db:"preferred_side"`
	Birthdate       *time.Time `json:"birthdate,omitempty" db:"birthdate"`
	FirstName       *string    `json:"first_name,omitempty" db:"first_name"`
	LastName        *string    `json:"last_name,omitempty" db:"last_name"`
	AvatarMode      AvatarMode `json:"avatar_mode" db:"avatar_mode"`
	AvatarPresetKey *string    `json:"avatar_preset_key,omitempty" db:"avatar_preset_key"`
	AvatarURL       *string    `json:"avatar_url,omitempty" db:"avatar_url"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// AliasKey returns the lowered form used for uniqueness checks.
func AliasKey(alias string) string {
	return strings.ToLower(strings.TrimSpace(alias))
}

// AvatarPreset is a curated avatar option.
type AvatarPreset struct {
	Key         string `json:"key" db:"key"`
	DisplayName string `json:"display_name" db:"display_name"`
	ImageURL    string `json:"image_url" db:"image_url"`
	IsActive    bool   `json:"is_active" db:"is_active"`
	SortOrder   int    `json:"sort_order" db:"sort_order"`
}

// AccountDeletionRequest schedules an account for anonymization after a
// grace period. Cancelled and executed are mutually exclusive outcomes.
type AccountDeletionRequest struct {
	ID           string     `json:"id" db:"id"`
	UserID       string     `json:"user_id" db:"user_id"`
	Reason       *string    `json:"reason,omitempty" db:"reason"`
	RequestedAt  time.Time  `json:"requested_at" db:"requested_at"`
	ScheduledFor time.Time  `json:"scheduled_for" db:"scheduled_for"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty" db:"executed_at"`
	CreatedBy    string     `json:"created_by" db:"created_by"`
}
