package profile

import (
	"context"
	"strings"

	"github.com/rivio/ranking-server/internal/domain"
)

// AvatarProcessor stores validated uploads and removes replaced ones.
type AvatarProcessor interface {
	Process(ctx context.Context, userID string, data []byte) (key string, err error)
	Remove(ctx context.Context, key string) error
}

// Service implements profile business logic.
type Service struct {
	repo      Repository
	avatars   AvatarProcessor
	avatarURL string // public prefix for uploaded avatar keys
}

// NewService creates a profile service. avatars may be nil when uploads are
// not configured.
func NewService(repo Repository, avatars AvatarProcessor, avatarBaseURL string) *Service {
	return &Service{repo: repo, avatars: avatars, avatarURL: strings.TrimSuffix(avatarBaseURL, "/")}
}

// Me bundles the identity anchor with the profile for /me.
type Me struct {
	User    *domain.User        `json:"user"`
	Profile *domain.UserProfile `json:"profile"`
}

// Me returns the caller's account and profile.
func (s *Service) Me(ctx context.Context, userID string) (*Me, error) {
	user, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	prof, err := s.repo.ProfileByUserID(ctx, userID)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	return &Me{User: user, Profile: prof}, nil
}

// UpdateInput extends the field patch with the category selection that
// drives ladder-state creation.
type UpdateInput struct {
	FieldUpdate
	PrimaryCategoryCode *string
}

// Update patches the profile. Gender is one-shot: once M or F it never
// changes, and never after any match participation. Choosing a primary
// category creates (or corrects, while unplayed) the primary ladder state
// and its mixed-ladder mirror.
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput) (*Me, error) {
	prof, err := s.repo.ProfileByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Alias != nil {
		alias := strings.TrimSpace(*in.Alias)
		if alias == "" {
			return nil, ErrAliasTaken
		}
		in.Alias = &alias
		taken, err := s.repo.AliasInUse(ctx, alias, userID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, ErrAliasTaken
		}
	}

	if in.Gender != nil {
		g := *in.Gender
		if g != domain.GenderMale && g != domain.GenderFemale {
			return nil, ErrInvalidGender
		}
		if g != prof.Gender {
			played, err := s.repo.CountUserMatches(ctx, userID, "")
			if err != nil {
				return nil, err
			}
			if played > 0 {
				return nil, ErrGenderLocked
			}
			if prof.Gender == domain.GenderMale || prof.Gender == domain.GenderFemale {
				return nil, ErrGenderLocked
			}
		}
	}

	if in.Country != nil {
		c := strings.ToUpper(strings.TrimSpace(*in.Country))
		if len(c) != 2 {
			return nil, ErrInvalidCountry
		}
		in.Country = &c
	}

	genderEff := prof.Gender
	if in.Gender != nil {
		genderEff = *in.Gender
	}

	var ladders []LadderUpsert
	if in.PrimaryCategoryCode != nil {
		if genderEff != domain.GenderMale && genderEff != domain.GenderFemale {
			return nil, ErrGenderRequired
		}
		primaryLadder := domain.LadderMen
		if genderEff == domain.GenderFemale {
			primaryLadder = domain.LadderWomen
		}

		primaryCat, err := s.repo.CategoryByCode(ctx, primaryLadder, *in.PrimaryCategoryCode)
		if err != nil {
			return nil, err
		}
		mxCode, err := s.repo.MxCode(ctx, genderEff, *in.PrimaryCategoryCode)
		if err != nil {
			return nil, err
		}
		mxCat, err := s.repo.CategoryByCode(ctx, domain.LadderMixed, mxCode)
		if err != nil {
			return nil, err
		}
		ladders = []LadderUpsert{
			{LadderCode: primaryLadder, CategoryID: primaryCat.ID},
			{LadderCode: domain.LadderMixed, CategoryID: mxCat.ID},
		}
	}

	if err := s.repo.ApplyProfileUpdate(ctx, userID, in.FieldUpdate, ladders); err != nil {
		return nil, err
	}
	return s.Me(ctx, userID)
}

// LadderStates lists the caller's ladder states with category labels.
func (s *Service) LadderStates(ctx context.Context, userID string) ([]LadderStateView, error) {
	return s.repo.LadderStates(ctx, userID)
}

// Eligibility is the play-eligibility verdict with the missing requirements.
type Eligibility struct {
	CanPlay        bool     `json:"can_play"`
	CanCreateMatch bool     `json:"can_create_match"`
	CanBeInvited   bool     `json:"can_be_invited"`
	Missing        []string `json:"missing"`
	Message        *string  `json:"message,omitempty"`
}

// PlayEligibility reports whether the user may create or join matches:
// profile present, verified contact, alias, binary gender, and a ladder
// state for their primary (or mixed) ladder.
func (s *Service) PlayEligibility(ctx context.Context, userID string) (*Eligibility, error) {
	prof, err := s.repo.ProfileByUserID(ctx, userID)
	if err == ErrNotFound {
		msg := "Complete your profile before playing."
		return &Eligibility{Missing: []string{"profile"}, Message: &msg}, nil
	}
	if err != nil {
		return nil, err
	}

	var missing []string

	verified, err := s.repo.HasVerifiedIdentity(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !verified {
		missing = append(missing, "verified_contact")
	}
	if strings.TrimSpace(prof.Alias) == "" {
		missing = append(missing, "alias")
	}
	if prof.Gender != domain.GenderMale && prof.Gender != domain.GenderFemale {
		missing = append(missing, "gender")
	} else {
		states, err := s.repo.LadderStates(ctx, userID)
		if err != nil {
			return nil, err
		}
		primary := domain.LadderMen
		if prof.Gender == domain.GenderFemale {
			primary = domain.LadderWomen
		}
		found := false
		for _, st := range states {
			if st.LadderCode == primary || st.LadderCode == domain.LadderMixed {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, "category")
		}
	}

	e := &Eligibility{
		CanPlay:        len(missing) == 0,
		CanCreateMatch: len(missing) == 0,
		CanBeInvited:   len(missing) == 0,
		Missing:        missing,
	}
	if !e.CanPlay {
		msg := "Complete your profile (verified contact, alias, gender, category) to create or join matches."
		e.Message = &msg
	}
	return e, nil
}

// MyMatches lists the caller's matches, newest first.
func (s *Service) MyMatches(ctx context.Context, userID string, f MatchFilter) ([]MyMatchRow, error) {
	if f.Limit <= 0 || f.Limit > 50 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.MyMatches(ctx, userID, f)
}

// SetAvatarPreset switches the profile to a curated preset.
func (s *Service) SetAvatarPreset(ctx context.Context, userID, key string) error {
	preset, err := s.repo.AvatarPresetByKey(ctx, key)
	if err != nil {
		return err
	}
	prof, err := s.repo.ProfileByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.SetAvatar(ctx, userID, domain.AvatarModePreset, &preset.Key, nil); err != nil {
		return err
	}
	// A replaced upload is removed best-effort after the switch.
	if s.avatars != nil && prof.AvatarMode == domain.AvatarModeUpload && prof.AvatarURL != nil {
		_ = s.avatars.Remove(ctx, s.stripBase(*prof.AvatarURL))
	}
	return nil
}

// UploadAvatar stores a custom image and points the profile at it.
func (s *Service) UploadAvatar(ctx context.Context, userID string, data []byte) (string, error) {
	prof, err := s.repo.ProfileByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	key, err := s.avatars.Process(ctx, userID, data)
	if err != nil {
		return "", err
	}
	url := s.avatarURL + "/" + key
	if err := s.repo.SetAvatar(ctx, userID, domain.AvatarModeUpload, nil, &url); err != nil {
		return "", err
	}
	if prof.AvatarMode == domain.AvatarModeUpload && prof.AvatarURL != nil {
		_ = s.avatars.Remove(ctx, s.stripBase(*prof.AvatarURL))
	}
	return url, nil
}

func (s *Service) stripBase(url string) string {
	return strings.TrimPrefix(strings.TrimPrefix(url, s.avatarURL), "/")
}
