package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "albumbot/internal/runtime/supervisor"
	kit "albumbot/internal/transport"
	logx "albumbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool

	// sup owns the adapter's goroutines (poll loop, drop reporter, stop
	// watcher); created on Start, cancelled on Stop.
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer fell
	// behind the poll loop; reported periodically instead of per update.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: a.baseMessage(m)})
		return nil
	})

	media := []string{
		tele.OnPhoto, tele.OnVideo, tele.OnDocument,
		tele.OnAnimation, tele.OnAudio, tele.OnVoice,
	}
	for _, endpoint := range media {
		a.bot.Handle(endpoint, func(c tele.Context) error {
			m := c.Message()
			if m == nil {
				return nil
			}
			in := inboundMedia(m)
			if in == nil {
				return nil
			}
			msg := a.baseMessage(m)
			msg.Media = in
			a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: msg})
			return nil
		})
	}
}

func (a *Adapter) baseMessage(m *tele.Message) *kit.Message {
	msg := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ThreadID: m.ThreadID,
		Text:     m.Text,
		Caption:  m.Caption,
		IsGroup:  m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
	}
	if m.Sender != nil {
		msg.FromID = m.Sender.ID
		msg.FromUsername = m.Sender.Username
		msg.FromName = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
	}
	return msg
}

// inboundMedia maps the platform attachment to the adapter-neutral shape,
// deriving a stable fallback display name when the platform has none.
func inboundMedia(m *tele.Message) *kit.InboundMedia {
	switch {
	case m.Photo != nil:
		return &kit.InboundMedia{
			Kind: kit.MediaPhoto, FileID: m.Photo.FileID, UniqueID: m.Photo.UniqueID,
			FileName:  "photo_" + m.Photo.UniqueID + ".jpg",
			SizeBytes: m.Photo.FileSize,
		}
	case m.Video != nil:
		return &kit.InboundMedia{
			Kind: kit.MediaVideo, FileID: m.Video.FileID, UniqueID: m.Video.UniqueID,
			FileName:  fallbackName(m.Video.FileName, "video_"+m.Video.UniqueID+".mp4"),
			SizeBytes: m.Video.FileSize,
		}
	case m.Animation != nil:
		return &kit.InboundMedia{
			Kind: kit.MediaAnimation, FileID: m.Animation.FileID, UniqueID: m.Animation.UniqueID,
			FileName:  fallbackName(m.Animation.FileName, "animation_"+m.Animation.UniqueID+".gif"),
			SizeBytes: m.Animation.FileSize,
		}
	case m.Document != nil:
		return &kit.InboundMedia{
			Kind: kit.MediaDocument, FileID: m.Document.FileID, UniqueID: m.Document.UniqueID,
			FileName:  fallbackName(m.Document.FileName, "document_"+m.Document.UniqueID),
			SizeBytes: m.Document.FileSize,
		}
	case m.Audio != nil:
		return &kit.InboundMedia{
			Kind: kit.MediaAudio, FileID: m.Audio.FileID, UniqueID: m.Audio.UniqueID,
			FileName:  fallbackName(m.Audio.FileName, "audio_"+m.Audio.UniqueID+".mp3"),
			SizeBytes: m.Audio.FileSize,
		}
	case m.Voice != nil:
		return &kit.InboundMedia{
			Kind: kit.MediaVoice, FileID: m.Voice.FileID, UniqueID: m.Voice.UniqueID,
			FileName:  "voice_" + m.Voice.UniqueID + ".ogg",
			SizeBytes: m.Voice.FileSize,
		}
	}
	return nil
}

func fallbackName(name, fallback string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return fallback
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// Adapter errors must never take the whole app down.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)",
					logx.Any("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if a.bot != nil {
			a.bot.Stop()
		}
	})

	// Telebot's Start() blocks until Stop(); if it ever returns while the
	// context is still live, restart it so the adapter self-heals.
	sup.GoRestart("telebot.poll", 500*time.Millisecond, 10*time.Second, func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return nil
	})

	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if sup != nil {
		sup.Cancel()
	}

	// Keep shutdown snappy even if getUpdates is mid long-poll.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if sup != nil {
		if err := sup.Wait(wctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop incomplete", logx.Err(err))
		}
	}
	return nil
}

const textLimit = 4000

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if err := ctxErr(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := tele.ChatID(to.ChatID)
	var ref kit.MessageRef
	for i, chunk := range splitText(text, textLimit) {
		sendOpt := a.sendOptions(to, opt)
		if i > 0 {
			// Keyboard changes only ride on the first chunk.
			sendOpt.ReplyMarkup = nil
		}
		m, err := a.bot.Send(chat, chunk, sendOpt)
		if err != nil {
			return ref, err
		}
		if i == 0 && m != nil {
			ref = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: m.ID}
		}
	}
	return ref, nil
}

func (a *Adapter) SendAlbum(ctx context.Context, to kit.ChatTarget, items []kit.OutMedia, opt *kit.SendOptions) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	album := make(tele.Album, 0, len(items))
	for _, it := range items {
		switch it.Kind {
		case kit.MediaPhoto:
			album = append(album, &tele.Photo{File: tele.File{FileID: it.FileID}, Caption: it.Caption})
		case kit.MediaVideo:
			album = append(album, &tele.Video{File: tele.File{FileID: it.FileID}, Caption: it.Caption})
		default:
			return errors.New("album element kind is not groupable: " + string(it.Kind))
		}
	}
	_, err := a.bot.SendAlbum(tele.ChatID(to.ChatID), album, a.sendOptions(to, opt))
	return err
}

func (a *Adapter) SendMedia(ctx context.Context, to kit.ChatTarget, item kit.OutMedia, opt *kit.SendOptions) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	file := tele.File{FileID: item.FileID}
	var what interface{}
	switch item.Kind {
	case kit.MediaPhoto:
		what = &tele.Photo{File: file, Caption: item.Caption}
	case kit.MediaVideo:
		what = &tele.Video{File: file, Caption: item.Caption}
	case kit.MediaDocument:
		what = &tele.Document{File: file, Caption: item.Caption}
	case kit.MediaAnimation:
		what = &tele.Animation{File: file, Caption: item.Caption}
	case kit.MediaAudio:
		what = &tele.Audio{File: file, Caption: item.Caption}
	case kit.MediaVoice:
		what = &tele.Voice{File: file, Caption: item.Caption}
	default:
		return errors.New("unknown media kind: " + string(item.Kind))
	}
	_, err := a.bot.Send(tele.ChatID(to.ChatID), what, a.sendOptions(to, opt))
	return err
}

// SendLogText satisfies the logx sink: plain text, no options, errors are
// the caller's problem to ignore.
func (a *Adapter) SendLogText(chatID int64, text string) error {
	_, err := a.bot.Send(tele.ChatID(chatID), text)
	return err
}

func (a *Adapter) sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
	switch {
	case len(opt.ReplyKeyboard) > 0:
		rows := make([][]tele.ReplyButton, 0, len(opt.ReplyKeyboard))
		for _, labels := range opt.ReplyKeyboard {
			row := make([]tele.ReplyButton, 0, len(labels))
			for _, l := range labels {
				row = append(row, tele.ReplyButton{Text: l})
			}
			rows = append(rows, row)
		}
		sendOpt.ReplyMarkup = &tele.ReplyMarkup{ReplyKeyboard: rows, ResizeKeyboard: true}
	case opt.RemoveKeyboard:
		sendOpt.ReplyMarkup = &tele.ReplyMarkup{RemoveKeyboard: true}
	}
	return sendOpt
}

func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// splitText chunks long messages at the platform text limit, preferring
// newline boundaries so lists stay readable.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}
		if end < len(rs) {
			for i := end - 1; i > start+limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, string(rs[start:end]))
		start = end
	}
	return out
}
