// Package pool
// Author: clustersched
//
// Size-classed byte buffer reuse for outgoing frame payload buffers.
// See bytepool.go for the implementation.
package pool
