// Package dedupe remembers recently seen event message ids so the dispatcher
// can drop events the gateway delivers more than once. Entries expire after a
// TTL and the oldest entry is evicted when the cache is full.
package dedupe
