// Package cache stores synthesized audio so repeated phrases skip the
// engine. A bounded in-memory LRU sits in front of an optional
// zstd-compressed disk tier that survives restarts.
package cache
