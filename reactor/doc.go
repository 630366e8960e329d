// Copyright (c) 2025
// Author: clustersched
//
// Package reactor provides the event loop that drives every asynchronous
// Channel operation: a single dedicated worker goroutine draining a FIFO
// queue of blocking I/O tasks, kept alive across idle periods by
// work-anchor tokens. net.Conn already gets its readiness multiplexing
// from the runtime's own netpoller, so the Reactor's job is purely to
// serialize queued operations per socket and give every completion a
// single thread to run on.
package reactor
