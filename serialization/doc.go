// Package serialization converts envelopes to and from their wire
// representation. The codec must round-trip every envelope field exactly,
// including empty ReplyTo and To.
package serialization
