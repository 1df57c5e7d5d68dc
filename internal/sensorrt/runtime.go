// Package sensorrt implements the sensor-side cooperative state machine:
// Idle, FetchingCommand, Executing, Confirming. The runtime is
// single-threaded by design (it models a constrained device with no
// conventional OS) and every blocking step is an explicit transport or
// channel call, never a goroutine spawned behind the caller's back.
package sensorrt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iotaledger/meter-bridge/internal/channel"
	"github.com/iotaledger/meter-bridge/internal/sensorrt/transport"
	"github.com/iotaledger/meter-bridge/internal/wire"
)

// State names the runtime's current position in its cooperative cycle.
type State int

const (
	Idle State = iota
	FetchingCommand
	Executing
	Confirming
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case FetchingCommand:
		return "FETCHING_COMMAND"
	case Executing:
		return "EXECUTING"
	case Confirming:
		return "CONFIRMING"
	default:
		return "UNKNOWN"
	}
}

// Runtime drives one sensor's cooperative cycle: fetch the next command
// over its transport, execute it against the local channel Manager, and
// report a confirmation, once per Tick call. Compressed mode is tracked in
// memory only: it is not written to the channel Manager's persisted state,
// and a new Runtime starts uncompressed.
type Runtime struct {
	devEUI    string
	transport transport.Transport
	manager   *channel.Manager
	log       *slog.Logger

	state      State
	compressed bool
}

// New builds a Runtime for devEUI, driving t as its transport and mgr as
// its (Subscriber-role) channel Manager.
func New(devEUI string, t transport.Transport, mgr *channel.Manager, log *slog.Logger) *Runtime {
	if log == nil {
		log = slog.Default()
	}
	return &Runtime{devEUI: devEUI, transport: t, manager: mgr, log: log, state: Idle}
}

// State reports the runtime's current state.
func (r *Runtime) State() State { return r.state }

// Compressed reports whether the runtime has switched to compressed mode.
// The requests the runtime builds are the same in either mode.
func (r *Runtime) Compressed() bool { return r.compressed }

// Tick runs exactly one Idle->FetchingCommand->Executing->Confirming->Idle
// cycle. Call it from a wake-up timer; Tick never loops or blocks waiting
// for the next wake-up itself.
func (r *Runtime) Tick(ctx context.Context) error {
	r.state = FetchingCommand
	cmd, payload, err := r.fetchNextCommand(ctx)
	if err != nil {
		r.state = Idle
		return fmt.Errorf("sensorrt: fetch next command: %w", err)
	}
	if cmd == wire.NoCommand {
		r.state = Idle
		return nil
	}

	r.state = Executing
	confirmation, confirmPayload, err := r.execute(ctx, cmd, payload)
	if err != nil {
		r.log.Error("sensorrt: command execution failed", "dev_eui", r.devEUI, "command", cmd, "error", err)
		r.state = Idle
		return fmt.Errorf("sensorrt: execute %s: %w", cmd, err)
	}

	r.state = Confirming
	if err := r.sendConfirmation(ctx, confirmation, confirmPayload); err != nil {
		r.state = Idle
		return fmt.Errorf("sensorrt: send confirmation: %w", err)
	}

	r.state = Idle
	return nil
}

func (r *Runtime) fetchNextCommand(ctx context.Context) (wire.Command, []byte, error) {
	req := wire.TunnelledRequest{
		Method: wire.MethodGet,
		URI:    "/command/next",
	}
	reqBuf := make([]byte, req.NeededSize())
	if _, err := req.ToBytes(reqBuf); err != nil {
		return 0, nil, err
	}

	respBuf, err := r.transport.Exchange(ctx, reqBuf)
	if err != nil {
		return 0, nil, err
	}

	cmd, err := wire.CommandFromBytes(respBuf)
	if err != nil {
		return 0, nil, err
	}
	return cmd, respBuf, nil
}

// execute runs one command to completion and returns the confirmation kind
// and its encoded payload to send back.
func (r *Runtime) execute(ctx context.Context, cmd wire.Command, payload []byte) (wire.Confirmation, []byte, error) {
	switch cmd {
	case wire.SubscribeToAnnouncement:
		return r.executeSubscribe(ctx, payload)
	case wire.RegisterKeyloadMessage:
		return r.executeRegisterKeyload(payload)
	case wire.StartSendingMessages:
		return r.executeSendMessages(ctx, payload)
	case wire.CommandClearClientState:
		return r.executeClearClientState()
	case wire.PrintlnSubscriberStatus:
		return r.executePrintlnStatus()
	case wire.StopFetching:
		return wire.NoConfirmation, nil, nil
	default:
		return 0, nil, fmt.Errorf("unrecognized command tag %d", cmd)
	}
}

func (r *Runtime) executeSubscribe(ctx context.Context, payload []byte) (wire.Confirmation, []byte, error) {
	cmd, err := wire.SubscribeToAnnouncementCommandFromBytes(payload)
	if err != nil {
		return 0, nil, err
	}
	subLink, pubKey, err := r.manager.Subscribe(ctx, cmd.AnnouncementLink)
	if err != nil {
		return 0, nil, err
	}
	conf := wire.SubscriptionConfirmation{SubscriptionLink: subLink, PupKey: pubKey}
	buf := make([]byte, conf.NeededSize())
	if _, err := conf.ToBytes(buf); err != nil {
		return 0, nil, err
	}
	return wire.SubscriptionConfirm, buf, nil
}

func (r *Runtime) executeRegisterKeyload(payload []byte) (wire.Confirmation, []byte, error) {
	reg, err := wire.RegisterKeyloadCommandFromBytes(payload)
	if err != nil {
		return 0, nil, err
	}
	// The subscriber only records the keyload link the author already
	// published; registering it locally does not mutate ledger state.
	_ = reg
	conf := wire.KeyloadRegistrationConfirmation{KeyloadLink: r.manager.PrevLink()}
	buf := make([]byte, conf.NeededSize())
	if _, err := conf.ToBytes(buf); err != nil {
		return 0, nil, err
	}
	return wire.KeyloadRegistration, buf, nil
}

func (r *Runtime) executeSendMessages(ctx context.Context, payload []byte) (wire.Confirmation, []byte, error) {
	cmd, err := wire.SendMessagesCommandFromBytes(payload)
	if err != nil {
		return 0, nil, err
	}

	links := make([]string, 0, len(cmd.MessageBytes))
	for _, msg := range cmd.MessageBytes {
		link, err := r.manager.SendSignedPacket(ctx, msg)
		if err != nil {
			return 0, nil, err
		}
		links = append(links, link)
	}

	conf := wire.SendMessagesConfirmation{MessageLinks: links}
	buf := make([]byte, conf.NeededSize())
	if _, err := conf.ToBytes(buf); err != nil {
		return 0, nil, err
	}
	return wire.SendMessages, buf, nil
}

func (r *Runtime) executeClearClientState() (wire.Confirmation, []byte, error) {
	r.compressed = false
	conf := wire.ClearClientState
	buf := make([]byte, conf.NeededSize())
	if _, err := conf.ToBytes(buf); err != nil {
		return 0, nil, err
	}
	return conf, buf, nil
}

func (r *Runtime) executePrintlnStatus() (wire.Confirmation, []byte, error) {
	status := fmt.Sprintf("dev_eui=%s prev_link=%s compressed=%v", r.devEUI, r.manager.PrevLink(), r.compressed)
	r.log.Info("sensorrt: subscriber status", "status", status)
	return wire.NoConfirmation, []byte(status), nil
}

func (r *Runtime) sendConfirmation(ctx context.Context, confirmation wire.Confirmation, payload []byte) error {
	if confirmation == wire.NoConfirmation && len(payload) == 0 {
		return nil
	}

	method := wire.MethodPost
	if confirmation == wire.KeyloadRegistration || confirmation == wire.ClearClientState {
		method = wire.MethodGet
	}
	req := wire.TunnelledRequest{
		Method: method,
		URI:    confirmURIFor(confirmation),
		Body:   payload,
	}
	reqBuf := make([]byte, req.NeededSize())
	if _, err := req.ToBytes(reqBuf); err != nil {
		return err
	}

	if _, err := r.transport.Exchange(ctx, reqBuf); err != nil {
		return err
	}

	// The Bridge answers an accepted subscription confirmation with 208,
	// its cue for the sensor to switch to compressed mode. The transport
	// does not report the status code, so any error-free round trip of a
	// subscription confirmation sets the flag.
	if confirmation == wire.SubscriptionConfirm {
		r.compressed = true
	}
	return nil
}

func confirmURIFor(confirmation wire.Confirmation) string {
	switch confirmation {
	case wire.SubscriptionConfirm:
		return "/confirm/subscription"
	case wire.KeyloadRegistration:
		return "/confirm/keyload_registration"
	case wire.ClearClientState:
		return "/confirm/clear_client_state"
	case wire.SendMessages:
		return "/confirm/send_messages"
	default:
		return "/confirm/subscriber_status"
	}
}
