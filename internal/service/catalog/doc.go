// Package catalog exposes the reference data clients need before making
// authenticated calls: active clubs, ladders, the category grid, and
// avatar presets.
package catalog
