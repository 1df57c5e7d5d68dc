// Package indexer implements the explorer-host sync loop: per channel, walk
// the channel library's message history to completion and cache each
// (MessageId, wire bytes) pair, plus the read-only DAO functions the
// (out-of-scope) explorer UI consumes.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/iotaledger/meter-bridge/internal/channel"
	"github.com/iotaledger/meter-bridge/internal/storage"
)

// DefaultInterval is how often the sync loop walks every known channel.
const DefaultInterval = 3600 * time.Second

// DefaultBudget is the hard stop-before-next-run budget: once exceeded, the
// current tick abandons any remaining channels rather than risk overlapping
// the next scheduled tick.
const DefaultBudget = 600 * time.Second

// ManagerProvider is the seam into the dispatcher's single-instance-per-
// channel Manager cache; the sync loop never constructs its own Manager so
// a walk always observes the same state an HTTP handler would.
type ManagerProvider interface {
	ManagerFor(channelID string) (*channel.Manager, error)
}

// ChannelLister discovers which channels exist to be walked.
type ChannelLister interface {
	ListChannelIDs() ([]string, error)
}

// Loop owns the scheduled sync job.
type Loop struct {
	channels ChannelLister
	managers ManagerProvider
	cached   *storage.CachedMessageStore
	log      *slog.Logger
	interval time.Duration
	budget   time.Duration

	scheduler gocron.Scheduler
}

// New builds a Loop. interval and budget of zero use their defaults.
func New(channels ChannelLister, managers ManagerProvider, cached *storage.CachedMessageStore, interval, budget time.Duration, log *slog.Logger) (*Loop, error) {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("indexer: new scheduler: %w", err)
	}
	return &Loop{channels: channels, managers: managers, cached: cached, log: log, interval: interval, budget: budget, scheduler: s}, nil
}

// Start registers the recurring sync job and begins running it.
func (l *Loop) Start() error {
	_, err := l.scheduler.NewJob(
		gocron.DurationJob(l.interval),
		gocron.NewTask(l.tick),
	)
	if err != nil {
		return fmt.Errorf("indexer: schedule tick: %w", err)
	}
	l.scheduler.Start()
	return nil
}

// Shutdown stops the scheduler, waiting for an in-flight tick to finish.
func (l *Loop) Shutdown() error {
	return l.scheduler.Shutdown()
}

// tick walks every known channel in turn, abandoning the remainder once the
// budget deadline passes so a slow scan cannot cascade into the next tick.
func (l *Loop) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), l.budget)
	defer cancel()

	channelIDs, err := l.channels.ListChannelIDs()
	if err != nil {
		l.log.Error("indexer: failed to list channels", "error", err)
		return
	}

	for i, id := range channelIDs {
		select {
		case <-ctx.Done():
			l.log.Warn("indexer: sync budget exhausted, deferring remaining channels to next tick",
				"synced", i, "remaining", len(channelIDs)-i)
			return
		default:
		}
		if err := l.syncChannel(ctx, id); err != nil {
			l.log.Error("indexer: sync failed", "channel_id", id, "error", err)
		}
	}
}

func (l *Loop) syncChannel(ctx context.Context, channelID string) error {
	mgr, err := l.managers.ManagerFor(channelID)
	if err != nil {
		return fmt.Errorf("acquire manager: %w", err)
	}
	messages, err := mgr.Walk(ctx)
	if err != nil {
		return fmt.Errorf("walk history: %w", err)
	}
	for _, m := range messages {
		if err := l.cached.Write(storage.CachedMessage{
			MessageID: m.Link,
			ChannelID: channelID,
			WireBytes: m.Body,
		}); err != nil {
			return fmt.Errorf("cache message %q: %w", m.Link, err)
		}
	}
	l.log.Info("indexer: synced channel", "channel_id", channelID, "messages", len(messages))
	return nil
}

// ChannelSummary describes one channel as listed for the explorer.
type ChannelSummary struct {
	ChannelID    string
	MessageCount int
}

// ListChannels returns every channel with at least one cached message,
// alongside its message count. Grounded on the explorer's nodes_controller
// channel listing.
func ListChannels(cached *storage.CachedMessageStore) ([]ChannelSummary, error) {
	ids, err := cached.DistinctChannels()
	if err != nil {
		return nil, fmt.Errorf("indexer: list channels: %w", err)
	}
	out := make([]ChannelSummary, 0, len(ids))
	for _, id := range ids {
		messages, err := cached.ListForChannel(id)
		if err != nil {
			return nil, fmt.Errorf("indexer: count messages for %q: %w", id, err)
		}
		out = append(out, ChannelSummary{ChannelID: id, MessageCount: len(messages)})
	}
	return out, nil
}

// ListMessages returns every cached message for channelID, oldest first.
// Grounded on the explorer's messages_controller channel message listing.
func ListMessages(cached *storage.CachedMessageStore, channelID string) ([]storage.CachedMessage, error) {
	messages, err := cached.ListForChannel(channelID)
	if err != nil {
		return nil, fmt.Errorf("indexer: list messages for %q: %w", channelID, err)
	}
	return messages, nil
}

// GetMessage fetches one cached message by id, or (nil, nil) if none exists.
// Grounded on the explorer's payload_controller single-message fetch.
func GetMessage(cached *storage.CachedMessageStore, messageID string) (*storage.CachedMessage, error) {
	m, err := cached.Get(messageID)
	if err != nil {
		return nil, fmt.Errorf("indexer: get message %q: %w", messageID, err)
	}
	return m, nil
}
