// Package logx wires the bot's structured logging.
//
// It is a thin layer over zerolog that keeps console output readable
// (short timestamps, short callers), file output JSON-structured, and
// optionally forwards warnings to a Telegram chat with rate limiting.
package logx
