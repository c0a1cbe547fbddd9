package router

import (
	"context"
	"strings"

	"albumbot/internal/album"
	kit "albumbot/internal/transport"
	logx "albumbot/pkg/logx"
)

const startText = "🐱 Neko Album Maker\n\n" +
	"Welcome! Send your media and I'll create beautiful albums for you.\n\n" +
	"📸 How to use:\n" +
	"1. Send as many media files as you want (photos, videos, etc.)\n" +
	"2. Tap '" + album.DoneLabel + "'\n" +
	"3. Your media will be organized into albums (max 10 items per group)\n\n" +
	"Let's go! Send your media! 🚀"

const helpText = "🐱 Neko Album Maker Help\n\n" +
	"📸 How to use:\n" +
	"1. Send any media (photos, videos, documents, etc.)\n" +
	"2. Keep sending as much as you want\n" +
	"3. Wait ~2 seconds or tap '" + album.DoneLabel + "'\n" +
	"4. Your media will be organized into albums (max 10 per group)\n\n" +
	"/clear - Clear all pending media\n" +
	"/help - Show this help"

// Router turns inbound transport updates into controller calls. The command
// surface is fixed: /start, /help, /clear, the done button, and media.
type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	ctrl    *album.Service
}

func New(adapter kit.Adapter, ctrl *album.Service, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{log: log, adapter: adapter, ctrl: ctrl}
}

// Run consumes updates until ctx is done.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			r.handle(ctx, up)
		}
	}
}

func (r *Router) handle(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	m := up.Message
	chat := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}

	if m.Media != nil {
		r.ctrl.OnItemArrived(chat, album.MediaItem{
			Kind:        m.Media.Kind,
			FileID:      m.Media.FileID,
			DisplayName: m.Media.FileName,
			SizeBytes:   m.Media.SizeBytes,
			Annotation:  m.Caption,
			Sender:      album.Sender{ID: m.FromID, Name: m.FromName, Username: m.FromUsername},
		})
		return
	}

	switch text := strings.TrimSpace(m.Text); {
	case text == "/start":
		r.reply(ctx, chat, startText)
	case text == "/help":
		r.reply(ctx, chat, helpText)
	case text == "/clear":
		r.ctrl.OnClear(chat)
	case text == album.DoneLabel:
		r.ctrl.OnConfirm(chat)
	default:
		// Plain chatter outside the flow is ignored.
	}
}

func (r *Router) reply(ctx context.Context, chat kit.ChatTarget, text string) {
	if _, err := r.adapter.SendText(ctx, chat, text, nil); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", chat.ChatID), logx.Err(err))
	}
}
