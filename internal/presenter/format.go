package presenter

import (
	"html"
	"strings"

	"dayplan/internal/alerts"
	"dayplan/internal/calendar"
)

// Text renders a one-line plain reminder, e.g. "09:00 Standup: in 15 minutes".
func Text(ev calendar.Event, label string) string {
	var b strings.Builder
	b.WriteString(timeRange(ev))
	b.WriteByte(' ')
	b.WriteString(title(ev))
	b.WriteString(": ")
	b.WriteString(label)
	return b.String()
}

// HTML renders the reminder for Telegram's HTML parse mode.
func HTML(ev calendar.Event, kind alerts.Kind, label string) string {
	var b strings.Builder
	b.WriteString(icon(kind))
	b.WriteString(" <b>")
	b.WriteString(html.EscapeString(title(ev)))
	b.WriteString("</b> ")
	b.WriteString(html.EscapeString(label))
	b.WriteString("\n<code>")
	b.WriteString(html.EscapeString(timeRange(ev)))
	b.WriteString("</code>")
	if d := strings.TrimSpace(ev.Description); d != "" {
		b.WriteString("\n<i>")
		b.WriteString(html.EscapeString(d))
		b.WriteString("</i>")
	}
	return b.String()
}

func title(ev calendar.Event) string {
	if t := strings.TrimSpace(ev.Title); t != "" {
		return t
	}
	return "(untitled)"
}

func timeRange(ev calendar.Event) string {
	if ev.End == "" {
		return ev.Start
	}
	return ev.Start + "-" + ev.End
}

func icon(kind alerts.Kind) string {
	if kind == alerts.KindAtStart {
		return "🔔"
	}
	return "⏰"
}
