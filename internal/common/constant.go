package common

// AuthHeaderName is the HTTP header used to carry the bearer token on
// outbound requests.
const AuthHeaderName = "Authorization"

// IdempotencyKeyHeaderName carries the client-generated token that lets the
// backend detect a replayed create.
const IdempotencyKeyHeaderName = "Idempotency-Key"
