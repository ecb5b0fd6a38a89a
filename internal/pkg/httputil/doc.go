// Package httputil carries the JSON response and error envelope shared by
// every API handler, so the wire shape of errors is defined in one place.
package httputil
