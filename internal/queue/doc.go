// Package queue debounces the inbound event stream. Events accumulate while
// the source UI settles; bursts of the same kind collapse to their latest
// entry, and the whole backlog is handed on once no event has arrived for
// the settle timeout.
package queue
