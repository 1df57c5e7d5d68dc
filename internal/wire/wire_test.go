package wire

import (
	"bytes"
	"testing"
)

func TestSubscriptionConfirmationEncodeDecode(t *testing.T) {
	tests := []struct {
		name string
		conf SubscriptionConfirmation
	}{
		{"empty", SubscriptionConfirmation{}},
		{"populated", SubscriptionConfirmation{SubscriptionLink: "42.1.1", PupKey: "abcdef0123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.conf.NeededSize())
			n, err := tt.conf.ToBytes(buf)
			if err != nil {
				t.Fatalf("ToBytes: %v", err)
			}
			if n != len(buf) {
				t.Fatalf("ToBytes wrote %d bytes, want %d", n, len(buf))
			}
			got, err := SubscriptionConfirmationFromBytes(buf)
			if err != nil {
				t.Fatalf("FromBytes: %v", err)
			}
			if got != tt.conf {
				t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, tt.conf)
			}
		})
	}
}

func TestConfirmationTagValues(t *testing.T) {
	tests := []struct {
		conf Confirmation
		want uint8
	}{
		{NoConfirmation, 0},
		{SubscriptionConfirm, 1},
		{KeyloadRegistration, 2},
		{ClearClientState, 3},
		{SendMessages, 4},
	}
	for _, tt := range tests {
		if uint8(tt.conf) != tt.want {
			t.Errorf("%s: got tag %d, want %d", tt.conf, uint8(tt.conf), tt.want)
		}
	}
}

func TestCommandTagValues(t *testing.T) {
	tests := []struct {
		cmd  Command
		want uint8
	}{
		{NoCommand, 0},
		{SubscribeToAnnouncement, 1},
		{RegisterKeyloadMessage, 2},
		{StartSendingMessages, 3},
		{CommandClearClientState, 4},
		{PrintlnSubscriberStatus, 5},
		{StopFetching, 6},
	}
	for _, tt := range tests {
		if uint8(tt.cmd) != tt.want {
			t.Errorf("%s: got tag %d, want %d", tt.cmd, uint8(tt.cmd), tt.want)
		}
	}
}

func TestSendMessagesCommandEncodeDecode(t *testing.T) {
	cmd := SendMessagesCommand{MessageBytes: [][]byte{
		[]byte("first"),
		{},
		bytes.Repeat([]byte{0xAB}, 64),
	}}
	buf := make([]byte, cmd.NeededSize())
	if _, err := cmd.ToBytes(buf); err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	got, err := SendMessagesCommandFromBytes(buf)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if len(got.MessageBytes) != len(cmd.MessageBytes) {
		t.Fatalf("got %d messages, want %d", len(got.MessageBytes), len(cmd.MessageBytes))
	}
	for i := range cmd.MessageBytes {
		if !bytes.Equal(got.MessageBytes[i], cmd.MessageBytes[i]) {
			t.Errorf("message %d mismatch: got %x, want %x", i, got.MessageBytes[i], cmd.MessageBytes[i])
		}
	}
}

func TestSubscribeToAnnouncementCommandEncodeDecode(t *testing.T) {
	cmd := SubscribeToAnnouncementCommand{AnnouncementLink: "cbd12e732e3c6df93c6fc189bf0d0553c2219d644402bae7caa8968aa5ba15dc0000000000000000"}
	buf := make([]byte, cmd.NeededSize())
	if _, err := cmd.ToBytes(buf); err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	got, err := SubscribeToAnnouncementCommandFromBytes(buf)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got != cmd {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, cmd)
	}
}

func TestTunnelledRequestEncodeDecode(t *testing.T) {
	req := TunnelledRequest{
		Method:  MethodPost,
		URI:     "/lorawan-rest/binary_request?deveui=0011223344556677",
		Body:    []byte{0x01, 0x02, 0x03},
		Headers: "content-type: application/octet-stream",
	}
	buf := make([]byte, req.NeededSize())
	if _, err := req.ToBytes(buf); err != nil {
		t.Fatalf("ToBytes: %v", err)
	}
	got, err := TunnelledRequestFromBytes(buf)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got.Method != req.Method || got.URI != req.URI || got.Headers != req.Headers || !bytes.Equal(got.Body, req.Body) {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, req)
	}
}

func TestTunnelledRequestRejectsUnknownMethod(t *testing.T) {
	buf := []byte{0xFF, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	if _, err := TunnelledRequestFromBytes(buf); err == nil {
		t.Fatal("expected error for unknown method tag")
	}
}

func TestBufferTooSmall(t *testing.T) {
	conf := SubscriptionConfirmation{SubscriptionLink: "link", PupKey: "key"}
	buf := make([]byte, conf.NeededSize()-1)
	if _, err := conf.ToBytes(buf); err == nil {
		t.Fatal("expected error writing into undersized buffer")
	}
}
