// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// TOKEN ESTIMATION
// =============================================================================

// TokenEstimateRatio is the approximate number of characters per token.
// Used for rough token counting when the tokenizer has no encoding for a model.
const TokenEstimateRatio = 4

// =============================================================================
// QUOTA DEFAULTS
// =============================================================================

// DefaultResearchLimit is the monthly deep-research quota when the account
// has no explicit limit set.
const DefaultResearchLimit = 300

// DefaultSearchResults is how many results are requested per research call.
const DefaultSearchResults = 5

// =============================================================================
// HTTP AND NETWORKING
// =============================================================================

// DefaultBufferSize is the standard I/O buffer size for stream relay.
const DefaultBufferSize = 4096

// MaxRequestBodySize is the maximum allowed request body (10MB).
const MaxRequestBodySize = 10 * 1024 * 1024

// MaxErrorBodyLogLen limits upstream error bodies in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// DefaultUpstreamTimeout bounds a single upstream completion call.
const DefaultUpstreamTimeout = 5 * time.Minute

// DefaultCollaboratorTimeout bounds identity and search collaborator calls.
const DefaultCollaboratorTimeout = 30 * time.Second

// DefaultServerReadTimeout for the HTTP server.
const DefaultServerReadTimeout = 30 * time.Second

// DefaultServerWriteTimeout for the HTTP server (safe for streaming).
const DefaultServerWriteTimeout = 10 * time.Minute

// DefaultShutdownTimeout is how long in-flight requests may drain on shutdown.
const DefaultShutdownTimeout = 15 * time.Second

// DefaultServerPort is the listen port when none is configured.
const DefaultServerPort = 8080

// =============================================================================
// RATE LIMITING
// =============================================================================

// DefaultRateLimit is requests per second per client IP.
const DefaultRateLimit = 100

// DefaultRateBurst is the per-IP burst allowance.
const DefaultRateBurst = 200

// MaxRateLimitBuckets prevents memory exhaustion from too many IP buckets.
const MaxRateLimitBuckets = 10000
