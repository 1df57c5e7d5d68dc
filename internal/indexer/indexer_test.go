package indexer

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

type fakeLister struct{ ids []string }

func (f *fakeLister) ListChannelIDs() ([]string, error) { return f.ids, nil }

func setupTestDB(t *testing.T) *storage.DB {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "indexer-*.db")
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

func TestTickCachesEveryMessageAcrossKnownChannels(t *testing.T) {
	db := setupTestDB(t)
	cached := storage.NewCachedMessageStore(db)

	managers := &fakeManagers{factory: channel.NewFakeFactory(), managers: make(map[string]*channel.Manager)}
	mgrA, err := managers.ManagerFor("chan-a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgrA.SendSignedPacket(context.Background(), []byte("a1")); err != nil {
		t.Fatal(err)
	}
	if _, err := mgrA.SendSignedPacket(context.Background(), []byte("a2")); err != nil {
		t.Fatal(err)
	}
	mgrB, err := managers.ManagerFor("chan-b")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mgrB.SendSignedPacket(context.Background(), []byte("b1")); err != nil {
		t.Fatal(err)
	}

	lister := &fakeLister{ids: []string{"chan-a", "chan-b"}}
	loop, err := New(lister, managers, cached, time.Hour, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}

	loop.tick()

	channels, err := ListChannels(cached)
	if err != nil {
		t.Fatal(err)
	}
	if len(channels) != 2 {
		t.Fatalf("expected 2 channels cached, got %d", len(channels))
	}

	aMessages, err := ListMessages(cached, "chan-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(aMessages) != 2 {
		t.Fatalf("expected 2 cached messages for chan-a, got %d", len(aMessages))
	}

	got, err := GetMessage(cached, aMessages[0].MessageID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || string(got.WireBytes) != "a1" {
		t.Fatalf("expected GetMessage to fetch the first chan-a message, got %+v", got)
	}
}

func TestTickAbandonsRemainingChannelsOnceBudgetExpires(t *testing.T) {
	db := setupTestDB(t)
	cached := storage.NewCachedMessageStore(db)

	managers := &fakeManagers{factory: channel.NewFakeFactory(), managers: make(map[string]*channel.Manager)}
	if _, err := managers.ManagerFor("chan-a"); err != nil {
		t.Fatal(err)
	}

	lister := &fakeLister{ids: []string{"chan-a", "chan-b"}}
	loop, err := New(lister, managers, cached, time.Hour, time.Nanosecond, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Should not panic or error even though the budget is already expired
	// by the time the loop checks it; it simply defers every channel.
	loop.tick()

	channels, err := ListChannels(cached)
	if err != nil {
		t.Fatal(err)
	}
	if len(channels) != 0 {
		t.Fatalf("expected no channels synced once the budget expired immediately, got %d", len(channels))
	}
}
