// Package conv provides checked integer conversions.
//
// EQ, term, column and domain ids are uint32. Counts that become ids are
// converted through this package so that an id space overflow surfaces as an
// error instead of silently wrapping.
package conv
