// Package cache provides the caches used by the speech pipeline: a small
// generic LRU (class-hierarchy lookups, synthesized audio) and a persistent
// zstd-compressed disk tier for synthesized audio.
package cache
