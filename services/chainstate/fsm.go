package chainstate

import (
	"context"

	"github.com/bsv-blockchain/chainstate/ulogger"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

// Reorg states.
const (
	StateHeaderReceived   = "header-received"
	StateHeadersValidated = "headers-validated"
	StateBodiesRequested  = "bodies-requested"
	StateBlockValidated   = "block-validated"
	StateConnected        = "connected"
	StateDisconnected     = "disconnected"
	StateFailed           = "failed"
)

// Reorg events.
const (
	EventValidateHeaders = "validate-headers"
	EventRequestBodies   = "request-bodies"
	EventDisconnect      = "disconnect"
	EventValidateBlock   = "validate-block"
	EventConnect         = "connect"
	EventFail            = "fail"
)

// NewReorgStateMachine creates the state machine followed by one attempt to
// move the active tip to a candidate chain:
//
//	header-received -> headers-validated
//	headers-validated -> bodies-requested (bodies missing, nothing changes)
//	headers-validated -> disconnected (blocks above the fork are undone)
//	headers-validated | disconnected | connected -> block-validated -> connected
//	any non-final state -> failed
func NewReorgStateMachine(logger ulogger.Logger, id uuid.UUID, opts ...func(*fsm.FSM)) *fsm.FSM {
	machine := fsm.NewFSM(
		StateHeaderReceived,
		fsm.Events{
			{
				Name: EventValidateHeaders,
				Src:  []string{StateHeaderReceived},
				Dst:  StateHeadersValidated,
			},
			{
				Name: EventRequestBodies,
				Src:  []string{StateHeadersValidated},
				Dst:  StateBodiesRequested,
			},
			{
				Name: EventDisconnect,
				Src:  []string{StateHeadersValidated},
				Dst:  StateDisconnected,
			},
			{
				Name: EventValidateBlock,
				Src: []string{
					StateHeadersValidated,
					StateDisconnected,
					StateConnected,
				},
				Dst: StateBlockValidated,
			},
			{
				Name: EventConnect,
				Src:  []string{StateBlockValidated},
				Dst:  StateConnected,
			},
			{
				Name: EventFail,
				Src: []string{
					StateHeaderReceived,
					StateHeadersValidated,
					StateDisconnected,
					StateBlockValidated,
					StateConnected,
				},
				Dst: StateFailed,
			},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debugf("[Reorg][%s] %s -> %s", id, e.Src, e.Dst)
			},
		},
	)

	for _, opt := range opts {
		opt(machine)
	}

	return machine
}
