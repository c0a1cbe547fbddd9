package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"albumbot/internal/album"
	"albumbot/internal/delivery"
	kit "albumbot/internal/transport"
	"albumbot/pkg/logx"
)

type recordingAdapter struct {
	mu     sync.Mutex
	texts  []string
	albums int
	medias int
}

func (a *recordingAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *recordingAdapter) Stop(context.Context) error                     { return nil }

func (a *recordingAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (a *recordingAdapter) SendAlbum(_ context.Context, _ kit.ChatTarget, _ []kit.OutMedia, _ *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.albums++
	return nil
}

func (a *recordingAdapter) SendMedia(_ context.Context, _ kit.ChatTarget, _ kit.OutMedia, _ *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.medias++
	return nil
}

func (a *recordingAdapter) snapshot() ([]string, int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.texts...), a.albums, a.medias
}

func runRouter(t *testing.T, ad *recordingAdapter, updates []kit.Update) {
	t.Helper()
	ctrl := album.NewService(album.Config{
		QuietPeriod: time.Hour, // never fires during the test
		Primary:     delivery.Policy{MaxAttempts: 1},
	}, ad, delivery.New(ad, logx.Nop()), logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	ctrl.Start(ctx)

	ch := make(chan kit.Update, len(updates))
	for _, up := range updates {
		ch <- up
	}
	close(ch)

	r := New(ad, ctrl, logx.Nop())
	r.Run(ctx, ch) // returns when the channel drains

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := ctrl.Stop(stopCtx); err != nil {
		t.Fatalf("controller stop: %v", err)
	}
	cancel()
}

func textMsg(chatID int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chatID, Text: text}}
}

func mediaMsg(chatID int64, kind kit.MediaKind, fileID string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: chatID,
		Media:  &kit.InboundMedia{Kind: kind, FileID: fileID, FileName: fileID},
	}}
}

func TestRouterCommands(t *testing.T) {
	t.Parallel()
	ad := &recordingAdapter{}
	runRouter(t, ad, []kit.Update{
		textMsg(1, "/start"),
		textMsg(1, "/help"),
		textMsg(1, "random chatter"),
	})

	texts, albums, medias := ad.snapshot()
	if len(texts) != 2 {
		t.Fatalf("texts = %d, want 2 (start + help, chatter ignored)", len(texts))
	}
	if !strings.Contains(texts[0], "Welcome!") {
		t.Fatalf("start reply = %q", texts[0])
	}
	if !strings.Contains(texts[1], "/clear") {
		t.Fatalf("help reply = %q", texts[1])
	}
	if albums != 0 || medias != 0 {
		t.Fatalf("unexpected media sends: %d albums, %d singles", albums, medias)
	}
}

func TestRouterMediaThenDone(t *testing.T) {
	t.Parallel()
	ad := &recordingAdapter{}
	runRouter(t, ad, []kit.Update{
		mediaMsg(1, kit.MediaPhoto, "p1"),
		mediaMsg(1, kit.MediaPhoto, "p2"),
		textMsg(1, album.DoneLabel),
	})

	texts, albums, medias := ad.snapshot()
	if albums != 1 || medias != 0 {
		t.Fatalf("sends = %d albums, %d singles, want one album", albums, medias)
	}
	var sawAck, sawSummary bool
	for _, s := range texts {
		if strings.Contains(s, "Creating album from 2 media") {
			sawAck = true
		}
		if strings.Contains(s, "All 2/2 files forwarded") {
			sawSummary = true
		}
	}
	if !sawAck || !sawSummary {
		t.Fatalf("texts = %q, want ack and summary", texts)
	}
}

func TestRouterClear(t *testing.T) {
	t.Parallel()
	ad := &recordingAdapter{}
	runRouter(t, ad, []kit.Update{
		mediaMsg(1, kit.MediaPhoto, "p1"),
		textMsg(1, "/clear"),
		textMsg(1, album.DoneLabel),
	})

	texts, albums, medias := ad.snapshot()
	if albums != 0 || medias != 0 {
		t.Fatalf("sends after clear: %d albums, %d singles, want none", albums, medias)
	}
	var sawNoMedia bool
	for _, s := range texts {
		if strings.Contains(s, "No media found") {
			sawNoMedia = true
		}
	}
	if !sawNoMedia {
		t.Fatalf("texts = %q, want no-media notice after cleared confirm", texts)
	}
}
