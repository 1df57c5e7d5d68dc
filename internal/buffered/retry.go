// Package buffered implements the retry loop that drains messages the
// ledger rejected while the Bridge was configured with the
// BufferMessagesOnValidationErrors strategy: one scheduled tick,
// arrival-ordered re-send, at most one attempt per ChannelId per tick so a
// channel stuck behind a persistent conflict never starves the others.
package buffered

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/iotaledger/meter-bridge/internal/channel"
	"github.com/iotaledger/meter-bridge/internal/storage"
)

// DefaultInterval is how often the retry loop scans for buffered messages
// when the caller does not configure one explicitly.
const DefaultInterval = 30 * time.Second

// ManagerProvider is the seam into the dispatcher's single-instance-per-
// channel Manager cache; Loop never constructs its own Manager so a resend
// is always serialized through the same instance an HTTP handler would use.
type ManagerProvider interface {
	ManagerFor(channelID string) (*channel.Manager, error)
}

// Loop owns the scheduled retry job.
type Loop struct {
	buffered *storage.BufferedMessageStore
	managers ManagerProvider
	log      *slog.Logger
	interval time.Duration

	scheduler gocron.Scheduler
}

// New builds a Loop bound to buffered and managers. interval of zero uses
// DefaultInterval.
func New(buffered *storage.BufferedMessageStore, managers ManagerProvider, interval time.Duration, log *slog.Logger) (*Loop, error) {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Loop{buffered: buffered, managers: managers, log: log, interval: interval, scheduler: s}, nil
}

// Start registers the recurring resend job and begins running it.
func (l *Loop) Start() error {
	_, err := l.scheduler.NewJob(
		gocron.DurationJob(l.interval),
		gocron.NewTask(l.tick),
	)
	if err != nil {
		return err
	}
	l.scheduler.Start()
	return nil
}

// Shutdown stops the scheduler, waiting for an in-flight tick to finish.
func (l *Loop) Shutdown() error {
	return l.scheduler.Shutdown()
}

// tick re-sends each buffered message in arrival order, skipping a channel
// once it has already had one attempt this tick.
func (l *Loop) tick() {
	messages, err := l.buffered.FindAllByArrival()
	if err != nil {
		l.log.Error("buffered: failed to list buffered messages", "error", err)
		return
	}

	attempted := make(map[string]bool, len(messages))
	for _, m := range messages {
		if attempted[m.ChannelID] {
			continue
		}
		attempted[m.ChannelID] = true
		l.resend(m)
	}
}

func (l *Loop) resend(m storage.BufferedMessage) {
	mgr, err := l.managers.ManagerFor(m.ChannelID)
	if err != nil {
		l.log.Error("buffered: failed to acquire channel manager", "channel_id", m.ChannelID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := mgr.SendSignedPacket(ctx, m.WireBytes); err != nil {
		l.log.Warn("buffered: resend failed, will retry next tick", "channel_id", m.ChannelID, "id", m.ID, "retry_count", m.RetryCount, "error", err)
		if ierr := l.buffered.IncrementRetry(m.ID); ierr != nil {
			l.log.Error("buffered: failed to record retry attempt", "id", m.ID, "error", ierr)
		}
		return
	}

	l.log.Info("buffered: resend succeeded", "channel_id", m.ChannelID, "id", m.ID)
	if err := l.buffered.Delete(m.ID); err != nil {
		l.log.Error("buffered: resend succeeded but failed to delete buffered row, will resend a duplicate next tick", "id", m.ID, "error", err)
	}
}
