// Package dedupe provides a keyed suppression window. The first occurrence of
// a key within the TTL is allowed; repeats are counted and suppressed until
// the window expires or the key is forgotten.
package dedupe
