// File: messaging/adapter.go
// Author: clustersched
//
// Package messaging implements the Adapter: a TCP listener plus a
// registry of the Channels it accepts or establishes outbound, with a
// fairness-ordered AwaitNextMessage for callers that want one place to
// drain traffic from every peer. It is not a CLI and exposes no process
// entry point; embedding code owns the Adapter's lifetime.
package messaging

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/clustersched/messaging/channel"
	"github.com/clustersched/messaging/config"
	"github.com/clustersched/messaging/envelope"
	"github.com/clustersched/messaging/internal/readyqueue"
	"github.com/clustersched/messaging/metrics"
	"github.com/clustersched/messaging/mserrors"
	"github.com/clustersched/messaging/reactor"
)

// ChannelID identifies one entry in an Adapter's back-channel sequence.
// IDs are assigned in establishment order and never reused, so a stale
// ID reliably reports "not found" rather than aliasing a newer channel.
type ChannelID int64

// Inbound pairs a received envelope with the channel it arrived on.
type Inbound[T envelope.Envelope] struct {
	ID  ChannelID
	Msg T
}

// entry is one back-channel: its Channel plus the bookkeeping
// AwaitNextMessage needs to re-arm it after each delivered message.
type entry[T envelope.Envelope] struct {
	id  ChannelID
	ch  *channel.Channel[T]
	msg T
}

// Adapter owns a shared Reactor, an acceptor goroutine, and the ordered
// sequence of Channels it has accepted or established, grounded on the
// original MessagingAdapter's channel table plus AwaitNextMessage
// fairness. NewEnvelope must return a fresh, zero-valued T; it is the
// generic stand-in for "default-construct the wire type," needed because
// Go generics cannot call new(T) when T is an interface.
type Adapter[T envelope.Envelope] struct {
	NewEnvelope func() T

	react *reactor.Reactor
	mx    *metrics.Registry
	cfg   *config.Store

	mu       sync.RWMutex
	channels map[ChannelID]*entry[T]
	nextID   atomic.Int64

	ready *readyqueue.Queue[ChannelID]
	queued sync.Map // ChannelID -> struct{}, at-most-once membership in ready

	ln       net.Listener
	lnMu     sync.Mutex
	acceptWG sync.WaitGroup
}

// New returns an Adapter with no listener bound yet. newEnvelope must
// return a fresh T on every call (e.g. func() *envelope.Bytes { return
// new(envelope.Bytes) }). cfg may be nil; if given, the "reactor.pin_cpu"
// key (an int) pins the shared acceptor Reactor's worker goroutine before
// the first connection arrives.
func New[T envelope.Envelope](newEnvelope func() T, cfg *config.Store) *Adapter[T] {
	react := reactor.New()
	if cfg != nil {
		if v, ok := cfg.Get("reactor.pin_cpu"); ok {
			if cpu, ok := v.(int); ok {
				react.PinTo(cpu)
			}
		}
	}
	return &Adapter[T]{
		NewEnvelope: newEnvelope,
		react:       react,
		mx:          metrics.New(),
		cfg:         cfg,
		channels:    make(map[ChannelID]*entry[T]),
		ready:       readyqueue.New[ChannelID](),
	}
}

// ListenReady reports whether the Adapter currently has a bound listener.
func (a *Adapter[T]) ListenReady() bool {
	a.lnMu.Lock()
	defer a.lnMu.Unlock()
	return a.ln != nil
}

// Listen binds addr (a bare "host:port", not an endpoint URI -- a
// listener has no scheme to parse) and starts the acceptor goroutine.
// Every accepted connection is wrapped into a Channel, registered, armed
// for receive, and made visible to AwaitNextMessage once it delivers its
// first message.
func (a *Adapter[T]) Listen(addr string) error {
	a.lnMu.Lock()
	defer a.lnMu.Unlock()
	if a.ln != nil {
		return mserrors.New(mserrors.Usage, "Listen called while already listening")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return mserrors.Wrap(mserrors.Connect, fmt.Sprintf("listen on %s", addr), err)
	}
	a.ln = ln
	a.acceptWG.Add(1)
	go a.acceptLoop(ln)
	return nil
}

// StopListen closes the listener, ending the acceptor goroutine. Channels
// already accepted are unaffected; it does not close them.
func (a *Adapter[T]) StopListen() error {
	a.lnMu.Lock()
	ln := a.ln
	a.ln = nil
	a.lnMu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	a.acceptWG.Wait()
	return err
}

// EstablishChannel dials endpointURI, registers the resulting Channel,
// arms it for receive, and returns its ChannelID.
func (a *Adapter[T]) EstablishChannel(ctx context.Context, endpointURI string) (ChannelID, error) {
	ch := channel.New[T](channel.TCP, channel.WithMetrics[T](a.mx))
	if err := ch.Establish(ctx, endpointURI); err != nil {
		return 0, err
	}
	id := a.register(ch)
	a.armReceive(id)
	return id, nil
}

// ChannelFor returns the Channel registered under id, if any.
func (a *Adapter[T]) ChannelFor(id ChannelID) (*channel.Channel[T], bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.channels[id]
	if !ok {
		return nil, false
	}
	return e.ch, true
}

// CloseChannel closes and deregisters the channel with the given id. It
// is a no-op if id is unknown or already closed.
func (a *Adapter[T]) CloseChannel(id ChannelID) error {
	a.mu.Lock()
	e, ok := a.channels[id]
	if ok {
		delete(a.channels, id)
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}
	a.mx.ChannelClosed()
	return e.ch.Close()
}

// AwaitNextMessage blocks until some registered channel has delivered a
// complete message, then returns it. Channels are served in the order
// they became ready, per the FIFO fairness readyqueue provides; a
// channel that delivers repeatedly is re-queued only after its prior
// delivery has been drained, so one busy peer cannot starve the others
// beyond their own place in line. ctx is only checked before blocking:
// an already-cancelled ctx returns immediately, but once this call
// commits to waiting it waits for an actual message rather than
// abandoning a dequeue partway, which would otherwise drop that message
// on the floor.
func (a *Adapter[T]) AwaitNextMessage(ctx context.Context) (Inbound[T], error) {
	if err := ctx.Err(); err != nil {
		return Inbound[T]{}, err
	}
	id := a.ready.Pop()
	return a.deliverAndRearm(id), nil
}

func (a *Adapter[T]) deliverAndRearm(id ChannelID) Inbound[T] {
	a.queued.Delete(id)
	a.mu.RLock()
	e, ok := a.channels[id]
	a.mu.RUnlock()
	if !ok {
		return Inbound[T]{ID: id}
	}
	msg := e.msg
	if e.ch.Ready() {
		a.armReceive(id)
	}
	return Inbound[T]{ID: id, Msg: msg}
}

func (a *Adapter[T]) register(ch *channel.Channel[T]) ChannelID {
	id := ChannelID(a.nextID.Add(1))
	a.mu.Lock()
	a.channels[id] = &entry[T]{id: id, ch: ch}
	a.mu.Unlock()
	a.mx.ChannelOpened()
	return id
}

// armReceive issues exactly one RecvAsync against the channel registered
// under id. On success the received envelope is stashed on its entry and
// the id is pushed onto the ready queue (once, per membership tracked in
// a.queued); AwaitNextMessage re-arms after it drains the message. A
// receive error (including EOF from the peer closing) deregisters the
// channel instead of re-arming it.
func (a *Adapter[T]) armReceive(id ChannelID) {
	a.mu.RLock()
	e, ok := a.channels[id]
	a.mu.RUnlock()
	if !ok {
		return
	}
	dst := a.NewEnvelope()
	err := e.ch.RecvAsync(dst, func(err error, n int) {
		if err != nil {
			a.mx.RecordError()
			_ = a.CloseChannel(id)
			return
		}
		a.mu.Lock()
		if ent, ok := a.channels[id]; ok {
			ent.msg = dst
		}
		a.mu.Unlock()
		if _, already := a.queued.LoadOrStore(id, struct{}{}); !already {
			a.ready.Push(id)
		}
	})
	if err != nil {
		a.mx.RecordError()
	}
}

func (a *Adapter[T]) acceptLoop(ln net.Listener) {
	defer a.acceptWG.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		ch := channel.Wrap[T](conn, a.react, channel.WithMetrics[T](a.mx))
		id := a.register(ch)
		a.armReceive(id)
	}
}
