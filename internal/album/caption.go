package album

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	kit "albumbot/internal/transport"
)

// captionRule separates caption sections, same divider the bot has always
// rendered between a preserved user caption and the info block.
const captionRule = "━━━━━━━━━━━━━━━━━━━━━━"

const (
	defaultCaptionLimit  = 1024 // platform caption ceiling
	defaultAnnotationCap = 100
	defaultMaxAnnotation = 3
)

// Composer builds the archive caption for a batch. Sections are assembled
// in priority order (header, file listing, sender, date, annotations); when
// the result would exceed the caption limit, the lowest-priority sections
// are dropped whole before anything gets cut mid-text.
type Composer struct {
	Limit          int // rune cap, default 1024
	AnnotationCap  int // runes per annotation, default 100
	MaxAnnotations int // distinct annotations included, default 3
}

// Compose renders the caption for b, dated at now. Output is Telegram HTML
// (the file listing sits in an expandable quote) and never exceeds the
// limit; a truncated caption ends in an ellipsis marker.
func (c Composer) Compose(b Batch, now time.Time) string {
	limit := c.Limit
	if limit <= 0 {
		limit = defaultCaptionLimit
	}

	sections := make([]string, 0, 5)
	sections = append(sections, header(b))
	if l := listing(b); l != "" {
		sections = append(sections, l)
	}
	if s := senderLine(b); s != "" {
		sections = append(sections, s)
	}
	sections = append(sections, "📅 "+now.Format("2006-01-02"))
	if a := c.annotations(b); a != "" {
		sections = append(sections, a)
	}

	join := func(ss []string) string {
		return strings.Join(ss, "\n"+captionRule+"\n")
	}

	out := join(sections)
	// Drop trailing sections whole first; the header and the file listing
	// survive as long as possible.
	for utf8.RuneCountInString(out) > limit && len(sections) > 2 {
		sections = sections[:len(sections)-1]
		out = join(sections)
	}
	if utf8.RuneCountInString(out) > limit {
		out = truncateCaption(out, limit)
	}
	return out
}

func header(b Batch) string {
	n := len(b.Items)
	noun := "files"
	if n == 1 {
		noun = "file"
	}
	return fmt.Sprintf("📦 %d %s · %s", n, noun, kindSummary(b.Items))
}

// kindSummary lists the distinct kinds in arrival order with their counts,
// e.g. "photo ×7, video ×3".
func kindSummary(items []MediaItem) string {
	counts := make(map[kit.MediaKind]int, 2)
	var order []kit.MediaKind
	for _, it := range items {
		if counts[it.Kind] == 0 {
			order = append(order, it.Kind)
		}
		counts[it.Kind]++
	}
	parts := make([]string, 0, len(order))
	for _, k := range order {
		if len(order) == 1 {
			parts = append(parts, string(k))
			break
		}
		parts = append(parts, fmt.Sprintf("%s ×%d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

func listing(b Batch) string {
	if len(b.Items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<blockquote expandable>")
	for i, it := range b.Items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("📄 ")
		sb.WriteString(html.EscapeString(it.DisplayName))
		sb.WriteString(" (")
		sb.WriteString(FormatSize(it.SizeBytes))
		sb.WriteString(")")
	}
	sb.WriteString("</blockquote>")
	return sb.String()
}

func senderLine(b Batch) string {
	if len(b.Items) == 0 {
		return ""
	}
	s := b.Items[0].Sender
	if s.Name == "" && s.ID == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("👤 ")
	sb.WriteString(html.EscapeString(s.Name))
	if s.Username != "" {
		sb.WriteString(" (@")
		sb.WriteString(html.EscapeString(s.Username))
		sb.WriteString(")")
	}
	fmt.Fprintf(&sb, " · %d", s.ID)
	return sb.String()
}

func (c Composer) annotations(b Batch) string {
	annCap := c.AnnotationCap
	if annCap <= 0 {
		annCap = defaultAnnotationCap
	}
	maxAnn := c.MaxAnnotations
	if maxAnn <= 0 {
		maxAnn = defaultMaxAnnotation
	}

	seen := make(map[string]bool)
	var lines []string
	for _, it := range b.Items {
		a := strings.TrimSpace(it.Annotation)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		if utf8.RuneCountInString(a) > annCap {
			a = truncateRunes(a, annCap-1) + "…"
		}
		lines = append(lines, "💬 "+html.EscapeString(a))
		if len(lines) == maxAnn {
			break
		}
	}
	return strings.Join(lines, "\n")
}

// FormatSize renders a byte count the way the archive listing expects:
// B below 1 KiB, then KB/MB/GB with two decimals at 1024 boundaries.
func FormatSize(n int64) string {
	switch {
	case n < 1<<10:
		return fmt.Sprintf("%d B", n)
	case n < 1<<20:
		return fmt.Sprintf("%.2f KB", float64(n)/(1<<10))
	case n < 1<<30:
		return fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/(1<<30))
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// truncateCaption cuts s so that the result, ellipsis marker included,
// fits in limit runes, taking care not to leave a dangling tag or an
// unclosed expandable quote.
func truncateCaption(s string, limit int) string {
	t := stripDanglingTag(truncateRunes(s, limit-1))
	if strings.Count(t, "<blockquote") > strings.Count(t, "</blockquote>") {
		const suffix = "…</blockquote>"
		t = stripDanglingTag(truncateRunes(t, limit-utf8.RuneCountInString(suffix)))
		// The opening tag itself may have been cut away at tiny limits.
		if strings.Count(t, "<blockquote") > strings.Count(t, "</blockquote>") {
			return t + suffix
		}
	}
	return t + "…"
}

func stripDanglingTag(s string) string {
	if i := strings.LastIndex(s, "<"); i > strings.LastIndex(s, ">") {
		return s[:i]
	}
	return s
}
