// File: metrics/metrics.go
// Author: clustersched
//
// Package metrics provides plain, hand-rolled counters for channel and
// adapter activity: messages sent/received, bytes moved, errors, active
// back-channels.
package metrics

import "sync/atomic"

// Registry holds a fixed set of counters. All operations are safe for
// concurrent use.
type Registry struct {
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	bytesSent        atomic.Int64
	bytesReceived    atomic.Int64
	errors           atomic.Int64
	activeChannels   atomic.Int64
}

// New returns a zeroed Registry.
func New() *Registry { return &Registry{} }

// RecordSend records one successfully sent frame of n payload bytes.
func (r *Registry) RecordSend(n int) {
	r.messagesSent.Add(1)
	r.bytesSent.Add(int64(n))
}

// RecordReceive records one successfully received frame of n payload bytes.
func (r *Registry) RecordReceive(n int) {
	r.messagesReceived.Add(1)
	r.bytesReceived.Add(int64(n))
}

// RecordError increments the error counter.
func (r *Registry) RecordError() { r.errors.Add(1) }

// ChannelOpened increments the active back-channel count.
func (r *Registry) ChannelOpened() { r.activeChannels.Add(1) }

// ChannelClosed decrements the active back-channel count.
func (r *Registry) ChannelClosed() { r.activeChannels.Add(-1) }

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	MessagesSent     int64
	MessagesReceived int64
	BytesSent        int64
	BytesReceived    int64
	Errors           int64
	ActiveChannels   int64
}

// Snapshot returns the current value of every counter.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		MessagesSent:     r.messagesSent.Load(),
		MessagesReceived: r.messagesReceived.Load(),
		BytesSent:        r.bytesSent.Load(),
		BytesReceived:    r.bytesReceived.Load(),
		Errors:           r.errors.Load(),
		ActiveChannels:   r.activeChannels.Load(),
	}
}
