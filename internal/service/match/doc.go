// Package match implements the match protocol: creation under block rules,
// ladder derivation from the gender mix, category labeling, the
// confirmation state machine with score proposals, cross-team ratification,
// lazy expiration, and the dispute path.
//
// Rating and analytics application happen inside the confirmation
// transaction; the repository owns that atomicity.
package match
