// Package analytics serves the incremental per-(user, ladder) projection:
// streaks, bit-packed form windows, activity counts, opponent-quality
// splits, and partner/rival aggregates. Projection writes happen inside the
// match confirmation transaction; this package owns the read surface, the
// premium dashboard, and the rebuild-from-log path.
package analytics
