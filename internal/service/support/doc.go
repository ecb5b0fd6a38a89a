// Package support handles in-app help: rate-limited ticket creation and
// the prefilled contact mail link.
package support
