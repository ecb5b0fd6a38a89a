package profile

import "errors"

// Sentinel errors for the profile service layer.
var (
	ErrNotFound        = errors.New("profile not found")
	ErrAliasTaken      = errors.New("alias already in use")
	ErrInvalidGender   = errors.New("gender must be M or F")
	ErrGenderLocked    = errors.New("gender cannot change once set")
	ErrGenderRequired  = errors.New("gender must be set before choosing a category")
	ErrInvalidCountry  = errors.New("country must be ISO-2")
	ErrInvalidCategory = errors.New("unknown category code")
	ErrCategoryLocked  = errors.New("category cannot change after playing on the ladder")
	ErrInvalidPreset   = errors.New("unknown avatar preset")
)
