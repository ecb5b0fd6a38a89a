// Package history serves the personal match timeline and its detail view.
// Self viewers see every scope; other viewers only see verified matches of
// public profiles, with private participants' aliases masked.
package history
