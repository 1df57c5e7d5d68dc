package sensorrt

import (
	"context"
	"testing"

	"github.com/iotaledger/meter-bridge/internal/channel"
	"github.com/iotaledger/meter-bridge/internal/sensorrt/transport"
	"github.com/iotaledger/meter-bridge/internal/wire"
)

func TestTickWithNoCommandStaysIdle(t *testing.T) {
	mock := transport.NewMockTransport()
	mock.Respond([]byte{byte(wire.NoCommand)})

	mgr := channel.New(channel.NewFakeFactory(), func([]byte, uint32) error { return nil })
	rt := New("0011223344556677", mock, mgr, nil)

	if err := rt.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rt.State() != Idle {
		t.Fatalf("expected Idle after NoCommand, got %s", rt.State())
	}
}

func TestTickSubscribeToAnnouncementSendsConfirmation(t *testing.T) {
	mock := transport.NewMockTransport()

	cmd := wire.SubscribeToAnnouncementCommand{AnnouncementLink: "fake-announce-link"}
	cmdBuf := make([]byte, cmd.NeededSize())
	if _, err := cmd.ToBytes(cmdBuf); err != nil {
		t.Fatal(err)
	}
	mock.Respond(cmdBuf)
	mock.Respond([]byte("ok")) // confirmation round trip response

	mgr := channel.New(channel.NewFakeFactory(), func([]byte, uint32) error { return nil })
	rt := New("0011223344556677", mock, mgr, nil)

	if err := rt.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if rt.State() != Idle {
		t.Fatalf("expected Idle after completing the cycle, got %s", rt.State())
	}
	if !rt.Compressed() {
		t.Fatal("expected a successful subscription confirmation to flip compressed mode on")
	}
	if len(mock.Sent) != 2 {
		t.Fatalf("expected 2 tunnelled requests (fetch + confirm), got %d", len(mock.Sent))
	}

	req, err := wire.TunnelledRequestFromBytes(mock.Sent[1])
	if err != nil {
		t.Fatalf("decode confirmation request: %v", err)
	}
	if req.URI != "/confirm/subscription" {
		t.Fatalf("expected confirmation posted to /confirm/subscription, got %q", req.URI)
	}
}
