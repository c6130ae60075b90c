// Package paytoken validates saved payment tokens before billing relies
// on them for an automatic charge.
//
// Verdicts, in order of evaluation:
//
//	""                         -> {false, "missing"}
//	too short / no "_" inside  -> {false, "invalid_format"}
//	no Verifier configured     -> {true,  "not_verified_remote"}
//	Verifier accepts           -> {true,  ""}
//	Verifier fails             -> {false, "remote_check_failed"}
//
// Only accepted tokens are cached, so a transient gateway failure is
// re-checked on the next call. Cache keys are SHA-256 hashes of the token.
package paytoken
