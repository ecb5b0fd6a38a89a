package match

import "errors"

// Sentinel errors for the match service layer.
var (
	ErrNotFound           = errors.New("match not found")
	ErrNotParticipant     = errors.New("not a participant")
	ErrCreatorBlocked     = errors.New("blocked from creating matches")
	ErrBadParticipants    = errors.New("exactly 4 distinct participants, 2 per team, creator included")
	ErrNotEligible        = errors.New("all players must have a complete profile")
	ErrInvalidGenderMix   = errors.New("gender mix must be 4M, 4F, or 2M+2F")
	ErrClubNotFound       = errors.New("club not found or inactive")
	ErrMissingLadderState = errors.New("participants missing ladder state")
	ErrExpired            = errors.New("match expired")
	ErrNotConfirmable     = errors.New("match not pending confirmation")
	ErrProposalLimit      = errors.New("score proposal limit reached")
	ErrWinnerMismatch     = errors.New("winner does not match the score")
	ErrScoreMissing       = errors.New("match score missing")
)
