// Package state implements the versioned state store, the single source of
// truth for the latest value and health of every channel.
//
// Ownership is structural: the first driver to write a channel becomes its
// owner and writes from anyone else are rejected. Subscribers receive
// immutable snapshot copies over coalescing channels, so a slow consumer
// can never block a driver's write.
package state
