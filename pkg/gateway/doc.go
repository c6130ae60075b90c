// Package gateway is a small REST client for the payment gateway used by
// the charge worker: recurring charges and saved-token verification.
//
// Requests use HTTP basic auth with GATEWAY_KEY_ID and GATEWAY_KEY_SECRET,
// are bounded by GATEWAY_TIMEOUT and share a token-bucket limiter
// (GATEWAY_RATE_PER_SECOND, GATEWAY_RATE_BURST). Non-2xx responses are
// returned as *APIError.
package gateway
