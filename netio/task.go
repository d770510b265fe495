// File: netio/task.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tasks are commands executed on the network loop goroutine.

package netio

import (
	"sync/atomic"

	"github.com/momentics/hioload-netio/address"
	"github.com/momentics/hioload-netio/internal/concurrency"
	"github.com/momentics/hioload-netio/packet"
)

// TaskKind tags the operation a Task carries.
type TaskKind int

const (
	TaskAddUDPReceiver TaskKind = iota + 1
	TaskAddUDPSender
	TaskAddTCPServer
	TaskAddTCPClient
	TaskRemovePort
	TaskResolveEndpointAddress
)

var taskKindNames = map[TaskKind]string{
	TaskAddUDPReceiver:         "add_udp_receiver",
	TaskAddUDPSender:           "add_udp_sender",
	TaskAddTCPServer:           "add_tcp_server",
	TaskAddTCPClient:           "add_tcp_client",
	TaskRemovePort:             "remove_port",
	TaskResolveEndpointAddress: "resolve_endpoint_address",
}

func (k TaskKind) String() string {
	if s, ok := taskKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// TaskState is the completion status of a Task.
type TaskState int32

const (
	TaskPending TaskState = iota
	TaskSucceeded
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskSucceeded:
		return "succeeded"
	case TaskFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Completer is notified on the network loop goroutine when a scheduled Task
// finishes. It must not block and must not call ScheduleAndWait.
type Completer interface {
	NetworkTaskCompleted(t *Task)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(t *Task)

func (f CompleterFunc) NetworkTaskCompleted(t *Task) { f(t) }

type addUDPReceiverArgs struct {
	config *UDPReceiverConfig
	sink   packet.Writer
}

type addUDPSenderArgs struct {
	config *UDPSenderConfig
}

type addTCPServerArgs struct {
	config   *TCPServerConfig
	acceptor ConnAcceptor
}

type addTCPClientArgs struct {
	config  *TCPClientConfig
	handler ConnHandler
}

type removePortArgs struct {
	handle PortHandle
}

type resolveEndpointArgs struct {
	request ResolverRequest
}

// Task is a command for the network loop. The caller owns it and must keep
// it untouched from Schedule until completion is observed. A completed Task
// may be scheduled again.
type Task struct {
	node concurrency.MpscNode[Task]

	kind     TaskKind
	state    atomic.Int32
	inFlight atomic.Bool
	err      error

	completer Completer
	sem       *concurrency.Semaphore

	udpReceiver addUDPReceiverArgs
	udpSender   addUDPSenderArgs
	tcpServer   addTCPServerArgs
	tcpClient   addTCPClientArgs
	remove      removePortArgs
	resolve     resolveEndpointArgs

	port   port
	writer packet.Writer
}

// NewAddUDPReceiverPort opens a UDP port that writes datagrams into sink.
// On success config.BindAddress holds the actual bound address.
func NewAddUDPReceiverPort(config *UDPReceiverConfig, sink packet.Writer) *Task {
	if config == nil || sink == nil {
		panic("netio: NewAddUDPReceiverPort: nil config or sink")
	}
	return &Task{kind: TaskAddUDPReceiver, udpReceiver: addUDPReceiverArgs{config: config, sink: sink}}
}

// NewAddUDPSenderPort opens a UDP port for sending; see Task.Writer.
func NewAddUDPSenderPort(config *UDPSenderConfig) *Task {
	if config == nil {
		panic("netio: NewAddUDPSenderPort: nil config")
	}
	return &Task{kind: TaskAddUDPSender, udpSender: addUDPSenderArgs{config: config}}
}

// NewAddTCPServerPort opens a listening TCP port feeding acceptor.
func NewAddTCPServerPort(config *TCPServerConfig, acceptor ConnAcceptor) *Task {
	if config == nil || acceptor == nil {
		panic("netio: NewAddTCPServerPort: nil config or acceptor")
	}
	return &Task{kind: TaskAddTCPServer, tcpServer: addTCPServerArgs{config: config, acceptor: acceptor}}
}

// NewAddTCPClientPort starts an outgoing TCP connection reported to handler.
func NewAddTCPClientPort(config *TCPClientConfig, handler ConnHandler) *Task {
	if config == nil || handler == nil {
		panic("netio: NewAddTCPClientPort: nil config or handler")
	}
	return &Task{kind: TaskAddTCPClient, tcpClient: addTCPClientArgs{config: config, handler: handler}}
}

// NewRemovePort closes a port. It completes once the port is fully closed.
func NewRemovePort(handle PortHandle) *Task {
	if handle == nil {
		panic("netio: NewRemovePort: nil handle")
	}
	return &Task{kind: TaskRemovePort, remove: removePortArgs{handle: handle}}
}

// NewResolveEndpointAddress resolves the host of uri into a socket address.
func NewResolveEndpointAddress(uri *address.EndpointURI) *Task {
	if uri == nil {
		panic("netio: NewResolveEndpointAddress: nil uri")
	}
	t := &Task{kind: TaskResolveEndpointAddress}
	t.resolve.request.Endpoint = uri
	t.resolve.request.owner = t
	return t
}

// Kind returns the operation.
func (t *Task) Kind() TaskKind { return t.kind }

// State returns the completion status.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// Success reports whether the task completed successfully.
func (t *Task) Success() bool { return t.State() == TaskSucceeded }

// Err returns the failure reason of a failed task.
func (t *Task) Err() error {
	if t.State() != TaskFailed {
		return nil
	}
	return t.err
}

// Handle returns the port created by a successful add task.
func (t *Task) Handle() PortHandle {
	if !t.Success() || t.port == nil {
		return nil
	}
	return t.port
}

// Writer returns the packet writer of a successful AddUDPSenderPort task.
func (t *Task) Writer() packet.Writer {
	if !t.Success() {
		return nil
	}
	return t.writer
}

// Address returns the resolved address of a successful resolve task.
func (t *Task) Address() address.SocketAddr {
	if !t.Success() || t.kind != TaskResolveEndpointAddress {
		return address.SocketAddr{}
	}
	return t.resolve.request.Addr
}

// begin arms the task for a new run. Panics if the previous run has not
// completed yet.
func (t *Task) begin(completer Completer, sem *concurrency.Semaphore) {
	if !t.inFlight.CompareAndSwap(false, true) {
		panic("netio: task " + t.kind.String() + " is already scheduled")
	}
	t.state.Store(int32(TaskPending))
	t.err = nil
	t.completer = completer
	t.sem = sem
	t.port = nil
	t.writer = nil
	t.resolve.request.reset()
}

func (t *Task) finish(err error) {
	if err != nil {
		t.err = err
		t.state.Store(int32(TaskFailed))
	} else {
		t.state.Store(int32(TaskSucceeded))
	}
}

// notify delivers the single completion. The task may be rescheduled from
// within the completer.
func (t *Task) notify() {
	completer, sem := t.completer, t.sem
	t.completer, t.sem = nil, nil
	t.inFlight.Store(false)
	if sem != nil {
		sem.Post()
		return
	}
	if completer != nil {
		completer.NetworkTaskCompleted(t)
	}
}
