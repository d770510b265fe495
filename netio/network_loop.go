// File: netio/network_loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// NetworkLoop owns the reactor goroutine, the task queue and the port
// registry. All registry state is touched on the loop goroutine only.

package netio

import (
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/hioload-netio/api"
	"github.com/momentics/hioload-netio/control"
	"github.com/momentics/hioload-netio/internal/concurrency"
	"github.com/momentics/hioload-netio/internal/logging"
	"github.com/momentics/hioload-netio/reactor"
)

// NetworkLoop executes network tasks on a dedicated goroutine locked to its
// OS thread. Schedule and ScheduleAndWait are safe from any goroutine.
type NetworkLoop struct {
	id uuid.UUID

	log            *logging.Logger
	metrics        *control.Metrics
	probes         *control.DebugProbes
	resolveTimeout time.Duration
	recvBatch      int
	lookup         LookupFunc
	cpu            int
	panicHandler   func(v any)

	env       *portEnv
	loop      *reactor.Loop
	tasks     *concurrency.MpscQueue[Task]
	taskAsync *reactor.Async
	stopAsync *reactor.Async
	resolver  *resolver

	// loop only
	openPorts    list.List
	closingPorts list.List
	stopping     bool
	stopped      bool
	closesLeft   int

	numOpen    atomic.Int64
	numClosing atomic.Int64
	loopGID    atomic.Uint64
	closed     atomic.Bool

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
	runErr    error
}

// NewNetworkLoop starts the loop goroutine. packets and buffers are used by
// ports for received datagrams and must be safe for concurrent use.
func NewNetworkLoop(packets PacketFactory, buffers BufferFactory, opts ...Option) (*NetworkLoop, error) {
	if packets == nil || buffers == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "network loop: nil packet or buffer factory")
	}
	nl := &NetworkLoop{
		id:             uuid.New(),
		resolveTimeout: defaultResolveTimeout,
		recvBatch:      defaultRecvBatchSize,
		lookup:         defaultLookup,
		cpu:            -1,
		tasks:          concurrency.NewMpscQueue[Task](),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(nl)
	}
	if nl.log == nil {
		nl.log = logging.New(logging.DefaultOptions())
	}

	loop, err := reactor.NewLoop()
	if err != nil {
		return nil, api.NewError(api.ErrCodeNotSupported, "network loop: create reactor").WithCause(err)
	}
	if nl.panicHandler != nil {
		loop.SetPanicHandler(nl.panicHandler)
	}
	nl.loop = loop
	nl.env = &portEnv{
		loop:             loop,
		log:              nl.log,
		metrics:          nl.metrics,
		packets:          packets,
		buffers:          buffers,
		unsolicitedClose: nl.unsolicitedClose,
	}
	nl.env.recvBatch.Store(int32(clampRecvBatch(nl.recvBatch)))

	if err := nl.initHandles(); err != nil {
		nl.abortInit()
		return nil, api.NewError(api.ErrCodeInternal, "network loop: create handles").WithCause(err)
	}

	nl.registerProbes()

	started := make(chan struct{})
	go nl.run(started)
	<-started

	nl.log.Info().Str("loop", nl.id.String()).Int("cpu", nl.cpu).Log("network loop started")
	return nl, nil
}

func (nl *NetworkLoop) initHandles() error {
	var err error
	if nl.taskAsync, err = nl.loop.NewAsync(nl.processTasks); err != nil {
		return err
	}
	if nl.stopAsync, err = nl.loop.NewAsync(nl.beginStop); err != nil {
		return err
	}
	nl.resolver, err = newResolver(nl.env, nl.lookup, nl.resolveTimeout, nl.handleResolved)
	return err
}

// abortInit releases handles created before a failed initHandles. The loop
// is run once in stopping mode so the close callbacks fire.
func (nl *NetworkLoop) abortInit() {
	for _, a := range []*reactor.Async{nl.taskAsync, nl.stopAsync} {
		if a != nil {
			_ = a.Close(nil)
		}
	}
	nl.loop.Stop()
	_ = nl.loop.Run()
	_ = nl.loop.Close()
}

func (nl *NetworkLoop) run(started chan<- struct{}) {
	if err := concurrency.PinCurrentThread(nl.cpu); err != nil {
		nl.log.Warning().Err(err).Log("cannot pin network loop thread")
	}
	nl.loopGID.Store(concurrency.GoroutineID())
	close(started)

	nl.runErr = nl.loop.Run()
	if nl.runErr != nil {
		nl.log.Err().Err(nl.runErr).Log("network loop failed")
	}
	close(nl.done)
}

// ID identifies this loop in logs and debug probes.
func (nl *NetworkLoop) ID() uuid.UUID { return nl.id }

// NumPorts returns the number of open and closing ports.
func (nl *NetworkLoop) NumPorts() int {
	return int(nl.numOpen.Load() + nl.numClosing.Load())
}

// SetRecvBatchSize changes the receive batch limit of all UDP receivers.
func (nl *NetworkLoop) SetRecvBatchSize(n int) {
	nl.env.recvBatch.Store(int32(clampRecvBatch(n)))
}

// Schedule enqueues t and returns at once. completer is invoked on the loop
// goroutine when t finishes. Scheduling a task that has not completed yet,
// or removing the same port twice, panics.
func (nl *NetworkLoop) Schedule(t *Task, completer Completer) {
	if completer == nil {
		panic("netio: Schedule: nil completer")
	}
	nl.submit(t, completer, nil)
}

// ScheduleAndWait enqueues t, blocks until it finishes and reports success.
// It panics when called on the loop goroutine, e.g. from a completer.
func (nl *NetworkLoop) ScheduleAndWait(t *Task) bool {
	if concurrency.GoroutineID() == nl.loopGID.Load() {
		panic("netio: ScheduleAndWait called on the network loop goroutine")
	}
	sem := concurrency.NewSemaphore()
	nl.submit(t, nil, sem)
	sem.Wait()
	return t.Success()
}

func (nl *NetworkLoop) submit(t *Task, completer Completer, sem *concurrency.Semaphore) {
	if t == nil {
		panic("netio: nil task")
	}
	// Completers running during shutdown may still chain tasks; those fail.
	if nl.closed.Load() && concurrency.GoroutineID() != nl.loopGID.Load() {
		panic("netio: task scheduled on a closed network loop")
	}
	t.begin(completer, sem)
	if t.kind == TaskRemovePort {
		b := t.remove.handle.base()
		if !b.removeScheduled.CompareAndSwap(false, true) {
			panic("netio: port " + b.String() + " removed twice")
		}
	}
	nl.tasks.Push(t, &t.node)
	if err := nl.taskAsync.Send(); err != nil {
		panic("netio: network loop is gone: " + err.Error())
	}
}

// Close stops the loop: pending tasks are executed, every port is closed
// and the goroutine exits. Close waits for all of that. It must not be
// called on the loop goroutine.
func (nl *NetworkLoop) Close() error {
	if concurrency.GoroutineID() == nl.loopGID.Load() {
		panic("netio: Close called on the network loop goroutine")
	}
	nl.closeOnce.Do(func() {
		nl.closed.Store(true)
		_ = nl.stopAsync.Send()
		<-nl.done

		err := nl.runErr
		if cerr := nl.loop.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if n := nl.env.livePorts.Load(); n != 0 && err == nil {
			err = api.NewError(api.ErrCodeInternal, fmt.Sprintf("network loop: %d ports leaked", n))
		}
		if nl.probes != nil {
			nl.probes.UnregisterProbe(nl.probePrefix())
		}
		nl.closeErr = err
		nl.log.Info().Str("loop", nl.id.String()).Log("network loop stopped")
	})
	return nl.closeErr
}

// processTasks drains the task queue on the loop.
func (nl *NetworkLoop) processTasks() {
	for {
		t := nl.tasks.PopFrontExclusive()
		if t == nil {
			return
		}
		nl.execute(t)
	}
}

func (nl *NetworkLoop) execute(t *Task) {
	if nl.stopping && t.kind != TaskRemovePort {
		nl.complete(t, api.NewError(api.ErrCodeInternal, "network loop is stopping"))
		return
	}
	switch t.kind {
	case TaskAddUDPReceiver:
		nl.taskAddUDPReceiver(t)
	case TaskAddUDPSender:
		nl.taskAddUDPSender(t)
	case TaskAddTCPServer:
		nl.taskAddTCPServer(t)
	case TaskAddTCPClient:
		nl.taskAddTCPClient(t)
	case TaskRemovePort:
		nl.taskRemovePort(t)
	case TaskResolveEndpointAddress:
		nl.taskResolveEndpointAddress(t)
	default:
		panic(fmt.Sprintf("netio: unknown task kind %d", t.kind))
	}
}

func (nl *NetworkLoop) complete(t *Task, err error) {
	t.finish(err)
	nl.metrics.TaskDone(t.kind.String(), err == nil)
	if err != nil {
		nl.log.Warning().Str("task", t.kind.String()).Err(err).Log("task failed")
	}
	t.notify()
}

func (nl *NetworkLoop) taskAddUDPReceiver(t *Task) {
	args := t.udpReceiver
	p := newUDPReceiverPort(nl.env, *args.config, args.sink)
	if !nl.openPort(t, p) {
		return
	}
	*args.config = p.config
	nl.complete(t, nil)
}

func (nl *NetworkLoop) taskAddUDPSender(t *Task) {
	args := t.udpSender
	p := newUDPSenderPort(nl.env, *args.config)
	if !nl.openPort(t, p) {
		return
	}
	*args.config = p.config
	t.writer = p
	nl.complete(t, nil)
}

func (nl *NetworkLoop) taskAddTCPServer(t *Task) {
	args := t.tcpServer
	p := newTCPServerPort(nl.env, *args.config, args.acceptor)
	if !nl.openPort(t, p) {
		return
	}
	*args.config = p.config
	nl.complete(t, nil)
}

func (nl *NetworkLoop) taskAddTCPClient(t *Task) {
	args := t.tcpClient
	p := newTCPClientPort(nl.env, *args.config, args.handler)
	if !nl.openPort(t, p) {
		return
	}
	*args.config = p.config
	nl.complete(t, nil)
}

// openPort opens p and registers it. On failure the task is completed and
// p is released.
func (nl *NetworkLoop) openPort(t *Task, p port) bool {
	if err := p.open(); err != nil {
		p.base().unref()
		nl.complete(t, err)
		return false
	}
	b := p.base()
	b.elem = nl.openPorts.PushBack(p)
	b.owner = &nl.openPorts
	nl.updateNumPorts()
	t.port = p

	nl.log.Debug().Str("port", p.String()).Log("port opened")
	return true
}

func (nl *NetworkLoop) taskRemovePort(t *Task) {
	p, ok := t.remove.handle.(port)
	if !ok || p.base().env != nl.env {
		nl.complete(t, api.NewError(api.ErrCodeInvalidArgument, "port does not belong to this network loop").
			WithContext("port", t.remove.handle.String()))
		return
	}
	b := p.base()
	switch b.state {
	case PortOpen:
		if b.owner == nil {
			nl.complete(t, api.NewError(api.ErrCodeInvalidArgument, "port is owned by a server port").
				WithContext("port", p.String()))
			return
		}
		b.removeTask = t
		nl.closePort(p)
	case PortTerminating, PortClosingAsync:
		b.removeTask = t
	default:
		nl.complete(t, nil)
	}
}

func (nl *NetworkLoop) taskResolveEndpointAddress(t *Task) {
	req := &t.resolve.request
	if nl.resolver.resolve(req) {
		nl.finishResolve(t)
	}
}

func (nl *NetworkLoop) handleResolved(req *ResolverRequest) {
	nl.finishResolve(req.owner)
	nl.maybeFinishStop()
}

func (nl *NetworkLoop) finishResolve(t *Task) {
	req := &t.resolve.request
	if req.Success {
		nl.complete(t, nil)
		return
	}
	nl.complete(t, req.err)
}

// closePort moves p from the open list to the closing list and starts
// terminating or closing it.
func (nl *NetworkLoop) closePort(p port) {
	b := p.base()
	if b.state != PortOpen {
		return
	}
	nl.openPorts.Remove(b.elem)
	b.elem = nl.closingPorts.PushBack(p)
	b.owner = &nl.closingPorts
	b.ref()

	mode := TerminateNormal
	if c, ok := p.(*tcpConnPort); ok && c.IsFailed() {
		mode = TerminateFailure
	}
	if p.asyncTerminate(mode, func() { nl.asyncClosePort(p) }) {
		b.state = PortTerminating
		nl.log.Debug().Str("port", p.String()).Stringer("mode", mode).Log("port terminating")
	} else {
		nl.asyncClosePort(p)
	}
	nl.updateNumPorts()
}

func (nl *NetworkLoop) asyncClosePort(p port) {
	b := p.base()
	b.state = PortClosingAsync
	if !p.asyncClose(func() { nl.finishClosingPort(p) }) {
		nl.loop.Post(func() { nl.finishClosingPort(p) })
	}
}

func (nl *NetworkLoop) finishClosingPort(p port) {
	b := p.base()
	b.state = PortClosed
	nl.closingPorts.Remove(b.elem)
	b.elem, b.owner = nil, nil
	nl.updateNumPorts()
	nl.log.Debug().Str("port", p.String()).Log("port closed")

	t := b.removeTask
	b.removeTask = nil
	b.unref()
	b.unref()

	if t != nil {
		nl.complete(t, nil)
	}
	nl.maybeFinishStop()
}

func (nl *NetworkLoop) unsolicitedClose(p port) {
	if p.base().state != PortOpen {
		return
	}
	nl.log.Warning().Str("port", p.String()).Log("closing failed port")
	nl.closePort(p)
}

func (nl *NetworkLoop) updateNumPorts() {
	open, closing := nl.openPorts.Len(), nl.closingPorts.Len()
	nl.numOpen.Store(int64(open))
	nl.numClosing.Store(int64(closing))
	nl.metrics.SetPorts(open, closing)
}

// beginStop runs on the loop when Close is called.
func (nl *NetworkLoop) beginStop() {
	if nl.stopping {
		return
	}
	nl.processTasks()
	nl.stopping = true
	nl.resolver.stop()

	nl.log.Debug().
		Int("open", nl.openPorts.Len()).
		Int("closing", nl.closingPorts.Len()).
		Log("closing all ports")
	nl.closeAllPorts(func(p port) bool { return p.Kind() == PortTCPClient })
	nl.closeAllPorts(func(port) bool { return true })
	nl.maybeFinishStop()
}

func (nl *NetworkLoop) closeAllPorts(match func(p port) bool) {
	for e := nl.openPorts.Front(); e != nil; {
		next := e.Next()
		if p := e.Value.(port); match(p) {
			nl.closePort(p)
		}
		e = next
	}
}

// maybeFinishStop closes the loop's own handles once every port is closed
// and no lookup is outstanding.
func (nl *NetworkLoop) maybeFinishStop() {
	if !nl.stopping || nl.stopped {
		return
	}
	if nl.openPorts.Len()+nl.closingPorts.Len() > 0 || nl.resolver.inFlight > 0 {
		return
	}
	nl.stopped = true
	nl.processTasks()

	nl.closesLeft = 3
	closed := func() {
		nl.closesLeft--
		if nl.closesLeft == 0 {
			nl.loop.Stop()
		}
	}
	_ = nl.taskAsync.Close(closed)
	_ = nl.stopAsync.Close(closed)
	nl.resolver.close(closed)
}

func (nl *NetworkLoop) probePrefix() string {
	return "netio." + nl.id.String()[:8] + "."
}

func (nl *NetworkLoop) registerProbes() {
	if nl.probes == nil {
		return
	}
	prefix := nl.probePrefix()
	nl.probes.RegisterProbe(prefix+"loop_id", func() any { return nl.id.String() })
	nl.probes.RegisterProbe(prefix+"num_ports", func() any { return nl.NumPorts() })
	nl.probes.RegisterProbe(prefix+"open_ports", func() any { return nl.numOpen.Load() })
	nl.probes.RegisterProbe(prefix+"closing_ports", func() any { return nl.numClosing.Load() })
	nl.probes.RegisterProbe(prefix+"live_ports", func() any { return nl.env.livePorts.Load() })
	nl.probes.RegisterProbe(prefix+"recv_batch_size", func() any { return nl.env.recvBatch.Load() })
}
