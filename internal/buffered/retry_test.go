package buffered

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/iotaledger/meter-bridge/internal/channel"
	"github.com/iotaledger/meter-bridge/internal/storage"
)

type fakeManagers struct {
	factory  *channel.FakeFactory
	managers map[string]*channel.Manager
}

func (f *fakeManagers) ManagerFor(channelID string) (*channel.Manager, error) {
	if m, ok := f.managers[channelID]; ok {
		return m, nil
	}
	m := channel.New(f.factory, func([]byte, uint32) error { return nil })
	if _, err := m.Announce(context.Background()); err != nil {
		return nil, err
	}
	f.managers[channelID] = m
	return m, nil
}

func setupTestDB(t *testing.T) *storage.DB {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "buffered-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	db, err := storage.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTickResendsInArrivalOrderAtMostOncePerChannel(t *testing.T) {
	db := setupTestDB(t)
	store := storage.NewBufferedMessageStore(db)

	if _, err := store.Write(storage.BufferedMessage{ChannelID: "chan-a", WireBytes: []byte("first")}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	if _, err := store.Write(storage.BufferedMessage{ChannelID: "chan-a", WireBytes: []byte("second")}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Write(storage.BufferedMessage{ChannelID: "chan-b", WireBytes: []byte("third")}); err != nil {
		t.Fatal(err)
	}

	managers := &fakeManagers{factory: channel.NewFakeFactory(), managers: make(map[string]*channel.Manager)}
	loop, err := New(store, managers, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}

	loop.tick()

	remaining, err := store.FindAllByArrival()
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected exactly one message left (chan-a's second), got %d", len(remaining))
	}
	if string(remaining[0].WireBytes) != "second" {
		t.Fatalf("expected chan-a's second message to remain, got %q", remaining[0].WireBytes)
	}
}
