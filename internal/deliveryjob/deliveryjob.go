package deliveryjob

// DefaultMaxRetries bounds the number of delivery attempts per chain, the
// first send included (SPEC_FULL.md §4.3); configurable via
// HOOKFREIGHT_QUEUE_MAX_RETRIES.
const DefaultMaxRetries = 5

// DefaultConcurrency is the default worker pool size W (SPEC_FULL.md §4.4).
const DefaultConcurrency = 5
