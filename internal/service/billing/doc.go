// Package billing is the provider-agnostic subscription surface: signed
// webhook ingestion with at-most-once processing, store-side receipt
// validation for App Store and Google Play, checkout session stubs, and
// the subscription → entitlement projection. Provider payloads are
// normalized into one internal event shape before dispatch.
package billing
