// Package common contains shared constants and errors used across the chat
// server packages.
package common

const (
	// AccessTokenHeaderName is the gRPC metadata key carrying the caller's
	// access token.
	AccessTokenHeaderName = "access_token"

	// InternalKeyHeaderName is the gRPC metadata key carrying the shared key
	// used by internal workflows (payment / match acceptance).
	InternalKeyHeaderName = "internal_key"
)
