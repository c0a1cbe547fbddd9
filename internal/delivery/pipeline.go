package delivery

import (
	"context"
	"time"

	kit "albumbot/internal/transport"
	logx "albumbot/pkg/logx"
)

// Sender is the slice of the transport adapter the pipeline needs.
type Sender interface {
	SendAlbum(ctx context.Context, to kit.ChatTarget, items []kit.OutMedia, opt *kit.SendOptions) error
	SendMedia(ctx context.Context, to kit.ChatTarget, item kit.OutMedia, opt *kit.SendOptions) error
}

// Batch is one unit of delivery: either a run of groupable items that goes
// out as a single album, or exactly one singular item. The caption, if any,
// sits on the first element.
type Batch struct {
	Items []kit.OutMedia
}

func (b Batch) Groupable() bool {
	return len(b.Items) > 0 && b.Items[0].Kind.Groupable()
}

// Policy is the per-destination delivery tuning. The primary chat and the
// archive channel have materially different rate-limit sensitivity, so they
// run under different policies.
type Policy struct {
	// MaxAttempts is the total number of attempts per batch.
	MaxAttempts int
	// RetryBase is the base of the exponential backoff between attempts
	// (base * 2^n after the n-th failed attempt). Zero retries immediately.
	RetryBase time.Duration

	// Fixed pacing after each successful send.
	GroupPause  time.Duration
	SinglePause time.Duration

	// TieredPause switches pacing to run-size tiers instead: runs of at
	// least LargeRun batches pause PauseLarge, at least MediumRun pause
	// PauseMedium, smaller runs pause PauseSmall.
	TieredPause bool
	LargeRun    int
	MediumRun   int
	PauseLarge  time.Duration
	PauseMedium time.Duration
	PauseSmall  time.Duration

	// Progress notifications fire every ProgressEvery batches, but only for
	// runs longer than ProgressThreshold batches.
	ProgressThreshold int
	ProgressEvery     int

	// ParseMode applies to every send of the run (captions are composed in
	// HTML on the archive path).
	ParseMode string
}

// PrimaryPolicy paces gently and retries without backoff, matching the
// destination the user is actively watching.
func PrimaryPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		GroupPause:  300 * time.Millisecond,
		SinglePause: 200 * time.Millisecond,
	}
}

// ArchivePolicy backs off exponentially and paces by run size; the archive
// channel is shared and far more rate-limit sensitive.
func ArchivePolicy(retryBase time.Duration) Policy {
	if retryBase <= 0 {
		retryBase = 2 * time.Second
	}
	return Policy{
		MaxAttempts:       3,
		RetryBase:         retryBase,
		TieredPause:       true,
		LargeRun:          50,
		MediumRun:         20,
		PauseLarge:        time.Second,
		PauseMedium:       700 * time.Millisecond,
		PauseSmall:        500 * time.Millisecond,
		ProgressThreshold: 10,
		ProgressEvery:     5,
		ParseMode:         "HTML",
	}
}

func (pol Policy) pauseAfter(b Batch, total int) time.Duration {
	if pol.TieredPause {
		switch {
		case pol.LargeRun > 0 && total >= pol.LargeRun:
			return pol.PauseLarge
		case pol.MediumRun > 0 && total >= pol.MediumRun:
			return pol.PauseMedium
		default:
			return pol.PauseSmall
		}
	}
	if b.Groupable() {
		return pol.GroupPause
	}
	return pol.SinglePause
}

// Report accumulates one run's outcome. Counts are items, not batches; only
// aggregates ever reach the end user, reasons stay in the logs.
type Report struct {
	Sent          int
	Failed        int
	FailedBatches []int
	Reasons       []string
}

type Pipeline struct {
	sender Sender
	log    logx.Logger
}

func New(sender Sender, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{sender: sender, log: log}
}

// Run delivers every batch to dest in order. A batch that exhausts its
// attempts is counted as failed and the run continues; nothing here is fatal
// to the caller. progress, when non-nil, is invoked per the policy's cadence
// (fire-and-forget from the caller's point of view).
func (p *Pipeline) Run(ctx context.Context, dest kit.ChatTarget, batches []Batch, pol Policy, progress func(done, total int)) Report {
	var rep Report
	total := len(batches)
	if total == 0 {
		return rep
	}
	if pol.MaxAttempts <= 0 {
		pol.MaxAttempts = 1
	}

	start := time.Now()
	p.log.Info("delivery run started",
		logx.Int64("chat_id", dest.ChatID), logx.Int("batches", total))

	for i, b := range batches {
		if err := p.sendWithRetry(ctx, dest, b, pol); err != nil {
			rep.Failed += len(b.Items)
			rep.FailedBatches = append(rep.FailedBatches, i)
			rep.Reasons = append(rep.Reasons, err.Error())
			p.log.Warn("batch delivery exhausted",
				logx.Int64("chat_id", dest.ChatID), logx.Int("batch", i),
				logx.Int("items", len(b.Items)), logx.Err(err))
		} else {
			rep.Sent += len(b.Items)
			if i+1 < total {
				sleepCtx(ctx, pol.pauseAfter(b, total))
			}
		}
		if progress != nil && pol.ProgressEvery > 0 && total > pol.ProgressThreshold &&
			(i+1)%pol.ProgressEvery == 0 && i+1 < total {
			progress(i+1, total)
		}
	}

	fields := []logx.Field{
		logx.Int64("chat_id", dest.ChatID), logx.Int("batches", total),
		logx.Int("sent", rep.Sent), logx.Int("failed", rep.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	if rep.Failed > 0 {
		p.log.Warn("delivery run finished with failures", fields...)
	} else {
		p.log.Info("delivery run finished", fields...)
	}
	return rep
}

func (p *Pipeline) sendWithRetry(ctx context.Context, dest kit.ChatTarget, b Batch, pol Policy) error {
	if len(b.Items) == 0 {
		return nil
	}
	opt := &kit.SendOptions{ParseMode: pol.ParseMode}

	var last error
	for attempt := 0; attempt < pol.MaxAttempts; attempt++ {
		if attempt > 0 && pol.RetryBase > 0 {
			if err := sleepCtx(ctx, pol.RetryBase<<(attempt-1)); err != nil {
				return err
			}
		}
		var err error
		if b.Groupable() {
			err = p.sender.SendAlbum(ctx, dest, b.Items, opt)
		} else {
			err = p.sender.SendMedia(ctx, dest, b.Items[0], opt)
		}
		if err == nil {
			return nil
		}
		last = err
		p.log.Warn("send attempt failed",
			logx.Int64("chat_id", dest.ChatID), logx.String("kind", string(b.Items[0].Kind)),
			logx.Int("attempt", attempt+1), logx.Int("max_attempts", pol.MaxAttempts),
			logx.Err(err))
	}
	return last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
