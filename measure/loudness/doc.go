// Package loudness implements a BS.1770 style loudness meter with
// momentary, short-term and gated integrated readings.
package loudness
