// Package common contains shared constants and sentinel errors used across
// signoff components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// RequestIDHeaderName is the gRPC metadata key that carries a caller supplied
// correlation id. One is generated when absent.
const RequestIDHeaderName = "x-request-id"
