// Package entitlement projects billing state into the capability snapshot
// the rest of the server gates on. Every user has exactly one entitlement
// row; reads lazily create the FREE row and degrade expired premium plans
// without waiting for a provider event.
package entitlement
