package album

import (
	"context"
	"fmt"
	"sync"
	"time"

	"albumbot/internal/delivery"
	kit "albumbot/internal/transport"
	logx "albumbot/pkg/logx"
)

// DoneLabel is the reply-keyboard button the quiet-timer prompt offers.
// The router matches incoming text against it verbatim.
const DoneLabel = "Done✅, Make album!"

// Config tunes one controller instance.
type Config struct {
	// QuietPeriod is the debounce interval after the last received item.
	QuietPeriod time.Duration
	// MaxGroupSize caps items per album (1..10).
	MaxGroupSize int
	// Archive is the optional archive channel; ChatID 0 disables it.
	Archive kit.ChatTarget

	// Primary and ArchivePolicy are the per-destination delivery policies.
	Primary       delivery.Policy
	ArchivePolicy delivery.Policy
}

// Service is the per-chat conversation controller. Chats are fully
// independent: every handler keys into the shared store under its lock and
// never holds cross-chat state.
//
// Lifecycle per chat: idle → accumulating (items pending, quiet timer
// armed) → awaiting confirmation (prompt shown) → finalizing (confirmed;
// delivery runs on a drained snapshot) → idle. New items during an in-flight
// delivery open a fresh accumulation cycle without touching the snapshot.
type Service struct {
	cfg     Config
	log     logx.Logger
	adapter kit.Adapter
	pipe    *delivery.Pipeline

	store    *Store
	deb      *debouncer
	composer Composer

	runMu  sync.Mutex
	runCtx context.Context

	// inflight tracks finalize runs so Stop can drain them.
	inflight sync.WaitGroup
}

func NewService(cfg Config, adapter kit.Adapter, pipe *delivery.Pipeline, log logx.Logger) *Service {
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = 2 * time.Second
	}
	if cfg.MaxGroupSize <= 0 || cfg.MaxGroupSize > MaxGroupSize {
		cfg.MaxGroupSize = MaxGroupSize
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:     cfg,
		log:     log,
		adapter: adapter,
		pipe:    pipe,
		store:   NewStore(),
	}
	s.deb = newDebouncer(cfg.QuietPeriod, s.onQuiet)
	if cfg.Archive.ChatID == 0 {
		log.Info("archive channel not configured, archive delivery disabled")
	}
	return s
}

// Start records the base context used for timer-initiated sends and for
// deliveries, which must outlive the update that confirmed them.
func (s *Service) Start(ctx context.Context) {
	s.runMu.Lock()
	s.runCtx = ctx
	s.runMu.Unlock()
}

// Stop waits for in-flight deliveries, best-effort until ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *Service) baseCtx() context.Context {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return context.Background()
}

// OnItemArrived appends the item to the chat's pending list and rearms the
// quiet timer.
func (s *Service) OnItemArrived(chat kit.ChatTarget, it MediaItem) {
	n := s.store.Append(chat, it)
	s.log.Debug("item accumulated",
		logx.Int64("chat_id", chat.ChatID), logx.String("kind", string(it.Kind)),
		logx.Int64("size", it.SizeBytes), logx.Int("pending", n))
	s.deb.Arm(chat)
}

// onQuiet runs when a chat's quiet timer fires. It re-checks the store: a
// clear racing the timer leaves nothing pending and the fire is a no-op.
func (s *Service) onQuiet(chat kit.ChatTarget) {
	n := s.store.Count(chat)
	if n == 0 {
		return
	}
	text := fmt.Sprintf("📦 Received %d media. Send more or tap %s", n, DoneLabel)
	opt := &kit.SendOptions{ReplyKeyboard: [][]string{{DoneLabel}}}
	s.notify(chat, text, opt)
}

// OnConfirm snapshots the pending list, resets the chat to idle, and runs
// the dual-destination delivery on the snapshot. Items arriving afterwards
// start a fresh cycle and never race the in-flight run.
func (s *Service) OnConfirm(chat kit.ChatTarget) {
	s.deb.Cancel(chat)
	items := s.store.Drain(chat)
	if len(items) == 0 {
		s.notify(chat, "No media found. Send media first.", &kit.SendOptions{RemoveKeyboard: true})
		return
	}

	s.notify(chat, fmt.Sprintf("📚 Creating album from %d media...", len(items)),
		&kit.SendOptions{RemoveKeyboard: true})

	batches := Partition(items, s.cfg.MaxGroupSize)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.finalize(s.baseCtx(), chat, batches, len(items))
	}()
}

// OnClear discards all pending state for the chat and suppresses any armed
// timer. An in-flight delivery (already snapshotted) is unaffected; once
// confirmed, a run always goes to completion.
func (s *Service) OnClear(chat kit.ChatTarget) {
	s.deb.Cancel(chat)
	n := s.store.Clear(chat)
	s.log.Info("pending media cleared", logx.Int64("chat_id", chat.ChatID), logx.Int("dropped", n))
	s.notify(chat, "🗑️ Cleared! Send new media when ready.", &kit.SendOptions{RemoveKeyboard: true})
}

// PruneIdle reaps idle empty chat entries; see Store.PruneIdle.
func (s *Service) PruneIdle(idleAfter time.Duration) int {
	return s.store.PruneIdle(idleAfter)
}

func (s *Service) finalize(ctx context.Context, chat kit.ChatTarget, batches []Batch, total int) {
	failed := make(map[int]bool)

	prim := s.pipe.Run(ctx, chat, toDeliveryBatches(batches, false, Composer{}), s.cfg.Primary, nil)
	for _, i := range prim.FailedBatches {
		failed[i] = true
	}

	if s.cfg.Archive.ChatID != 0 {
		progress := func(done, totalBatches int) {
			s.notify(chat, fmt.Sprintf("📤 Archiving... %d/%d batches done.", done, totalBatches), nil)
		}
		arch := s.pipe.Run(ctx, s.cfg.Archive, toDeliveryBatches(batches, true, s.composer),
			s.cfg.ArchivePolicy, progress)
		for _, i := range arch.FailedBatches {
			failed[i] = true
		}
	}

	failedItems := 0
	for i := range failed {
		failedItems += len(batches[i].Items)
	}
	sent := total - failedItems

	var summary string
	if failedItems == 0 {
		summary = fmt.Sprintf("✅ All %d/%d files forwarded.", sent, total)
	} else {
		summary = fmt.Sprintf("⚠️ Forwarded %d/%d files, %d failed.", sent, total, failedItems)
	}
	s.notify(chat, summary, nil)
}

// notify is fire-and-forget by contract: a failed user notification is
// logged and never influences pipeline state or control flow.
func (s *Service) notify(chat kit.ChatTarget, text string, opt *kit.SendOptions) {
	if _, err := s.adapter.SendText(s.baseCtx(), chat, text, opt); err != nil {
		s.log.Warn("notification send failed",
			logx.Int64("chat_id", chat.ChatID), logx.Err(err))
	}
}

// toDeliveryBatches projects domain batches onto the wire shape the
// pipeline sends. On the archive path each batch gets a composed caption on
// its first item.
func toDeliveryBatches(batches []Batch, withCaptions bool, composer Composer) []delivery.Batch {
	now := time.Now()
	out := make([]delivery.Batch, 0, len(batches))
	for _, b := range batches {
		items := make([]kit.OutMedia, 0, len(b.Items))
		for _, it := range b.Items {
			items = append(items, kit.OutMedia{Kind: it.Kind, FileID: it.FileID})
		}
		if withCaptions && len(items) > 0 {
			items[0].Caption = composer.Compose(b, now)
		}
		out = append(out, delivery.Batch{Items: items})
	}
	return out
}
