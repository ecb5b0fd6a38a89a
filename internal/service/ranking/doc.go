// Package ranking serves scoped leaderboards: ladder and category filtered
// by country and, within a country, by city. Only public profiles appear.
// A short-lived Redis cache in front of the query is optional; the service
// is correct without it.
package ranking
