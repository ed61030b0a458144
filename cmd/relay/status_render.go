package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"relay/internal/api"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

var labelCaser = cases.Title(language.English)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// statusLines renders a daemon status snapshot. now anchors relative times.
func statusLines(status api.Status, now time.Time, colorize bool) []string {
	lines := renderSectionHeader("Relay", colorize)
	lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))

	responder := statusError
	detail := "Disconnected"
	if status.Connected {
		responder = statusOK
		detail = "Connected"
	}
	if contact, ok := api.ParseTime(status.LastContactAt); ok {
		detail += fmt.Sprintf(" (last contact %s", humanize.RelTime(contact, now, "ago", "from now"))
		if source := strings.TrimSpace(status.LastContactSource); source != "" {
			detail += " via " + source
		}
		detail += ")"
	} else if !status.Connected {
		detail += " (never seen)"
	}
	lines = append(lines, renderStatusLine("Responder", responder, detail, colorize))

	sockets := statusInfo
	if status.SocketConnections > 1 {
		sockets = statusWarn
	}
	lines = append(lines, renderStatusLine("Socket connections", sockets, fmt.Sprintf("%d", status.SocketConnections), colorize))

	queueKind := statusInfo
	if status.QueueDepth > 0 && !status.Connected {
		queueKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Queue", queueKind,
		fmt.Sprintf("%s pending, %s in flight", humanize.Comma(int64(status.QueueDepth)), humanize.Comma(int64(status.InFlight))), colorize))

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Calls", colorize)...)
	for _, c := range counterRows(status.Counters) {
		lines = append(lines, renderStatusLine(c.label, c.kind, humanize.Comma(int64(c.value)), colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Streams", colorize)...)
	logKind := statusInfo
	if status.LogDropped > 0 {
		logKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Log ring", logKind,
		fmt.Sprintf("%s/%s buffered, %d subscribers, %s dropped",
			humanize.Comma(int64(status.LogBuffered)), humanize.Comma(int64(status.LogCapacity)),
			status.LogSubscribers, humanize.Comma(int64(status.LogDropped))), colorize))
	if status.HistoryPath != "" {
		historyKind := statusInfo
		if status.HistoryDropped > 0 {
			historyKind = statusWarn
		}
		lines = append(lines, renderStatusLine("History writer", historyKind,
			fmt.Sprintf("%s written, %s dropped", humanize.Comma(int64(status.HistoryWritten)), humanize.Comma(int64(status.HistoryDropped))), colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Endpoints", colorize)...)
	for _, e := range []struct{ key, value string }{
		{"http bind", status.HTTPBind},
		{"socket bind", status.SocketBind},
		{"history path", status.HistoryPath},
		{"lock file", status.LockFilePath},
	} {
		value := e.value
		kind := statusInfo
		if value == "" {
			value = "disabled"
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(labelCaser.String(e.key), kind, value, colorize))
	}
	return lines
}

type counterRow struct {
	label string
	kind  statusKind
	value uint64
}

func counterRows(c api.Counters) []counterRow {
	warnIf := func(v uint64) statusKind {
		if v > 0 {
			return statusWarn
		}
		return statusInfo
	}
	return []counterRow{
		{labelCaser.String("total"), statusInfo, c.Total},
		{labelCaser.String("succeeded"), statusOK, c.Succeeded},
		{labelCaser.String("failed"), warnIf(c.Failed), c.Failed},
		{labelCaser.String("timed out"), warnIf(c.TimedOut), c.TimedOut},
		{labelCaser.String("unmatched"), warnIf(c.Unmatched), c.Unmatched},
		{labelCaser.String("delivered"), statusInfo, c.Delivered},
	}
}
