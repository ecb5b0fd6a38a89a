// Package profile manages the public-facing player profile: alias and field
// updates, one-time gender selection, category selection with the mixed
// ladder mirror, play eligibility, the user's own match list, and avatars.
package profile
