package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

// palette wraps text in ANSI codes, or passes it through when off.
type palette bool

func (p palette) paint(code, s string) string {
	if !p || code == "" {
		return s
	}
	return code + s + ansiReset
}

// Enumerated values worth a colour of their own. Unknown values print plain.
var valueColors = map[string]map[string]string{
	"method": {"GET": ansiGreen, "POST": ansiYellow, "DELETE": ansiRed, "PUT": ansiMagenta, "PATCH": ansiMagenta},
	"class":  {"2xx": ansiGreen, "3xx": ansiCyan, "4xx": ansiYellow, "5xx": ansiRed},
	"result": {"success": ansiGreen, "redirect": ansiCyan, "client_error": ansiYellow, "server_error": ansiRed},
	"decision": {
		"main": ansiGreen, "login": ansiYellow, "welcome": ansiCyan, "complete-profile": ansiMagenta,
	},
	"outcome": {"JOINED": ansiGreen, "ALREADY_MEMBER": ansiCyan, "FAILED": ansiRed},
}

var levelColors = map[slog.Level]string{
	slog.LevelDebug: ansiMagenta,
	slog.LevelInfo:  ansiBlue,
	slog.LevelWarn:  ansiYellow,
	slog.LevelError: ansiRed,
}

// keyAliases shortens the request-log keys on a terminal.
var keyAliases = map[string]string{
	"status_class": "class",
	"duration_ms":  "duration",
}

// scopedAttr is an attr bound with WithAttrs, plus the group path open at
// the time.
type scopedAttr struct {
	prefix string
	attr   slog.Attr
}

// prettyHandler writes one logfmt-like line per record for humans at a
// terminal. Machines get the JSON handler instead.
type prettyHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	source bool
	pal    palette
	bound  []scopedAttr
	groups []string
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{w: w, mu: &sync.Mutex{}, level: slog.LevelInfo, pal: palette(color)}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.source = opts.AddSource
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ts=%s lvl=%s msg=%s",
		h.pal.paint(ansiDim, ts.Format("15:04:05.000")),
		h.levelTag(r.Level),
		h.pal.paint(ansiBright, r.Message))

	if h.source && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if frame.File != "" {
			b.WriteString(" src=")
			b.WriteString(h.pal.paint(ansiDim, filepath.Base(frame.File)+":"+strconv.Itoa(frame.Line)))
		}
	}

	for _, sa := range h.bound {
		h.writeAttr(&b, sa.prefix, sa.attr)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&b, prefix, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	prefix := strings.Join(h.groups, ".")
	next.bound = make([]scopedAttr, 0, len(h.bound)+len(attrs))
	next.bound = append(next.bound, h.bound...)
	for _, a := range attrs {
		next.bound = append(next.bound, scopedAttr{prefix: prefix, attr: a})
	}
	return &next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

func (h *prettyHandler) levelTag(l slog.Level) string {
	base := slog.LevelInfo
	switch {
	case l >= slog.LevelError:
		base = slog.LevelError
	case l >= slog.LevelWarn:
		base = slog.LevelWarn
	case l < slog.LevelInfo:
		base = slog.LevelDebug
	}
	return h.pal.paint(levelColors[base], "["+base.String()+"]")
}

func (h *prettyHandler) writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)
	if key == "" {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			h.writeAttr(b, joinKey(prefix, key), ga)
		}
		return
	}

	if alias, ok := keyAliases[key]; ok {
		key = alias
	}
	b.WriteByte(' ')
	b.WriteString(joinKey(prefix, key))
	b.WriteByte('=')
	b.WriteString(h.formatValue(key, a.Value))
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// formatValue renders v, colouring well-known leaf keys.
func (h *prettyHandler) formatValue(key string, v slog.Value) string {
	switch key {
	case "status":
		if n, ok := valueToInt64(v); ok {
			return h.pal.paint(statusColor(int(n)), strconv.FormatInt(n, 10))
		}
	case "duration":
		if n, ok := valueToInt64(v); ok {
			return h.pal.paint(durationColor(n), strconv.FormatInt(n, 10)+"ms")
		}
	case "path":
		return h.pal.paint(ansiCyan, strings.TrimSpace(v.String()))
	case "method":
		m := strings.ToUpper(strings.TrimSpace(v.String()))
		return h.pal.paint(enumColor(key, m, ansiMagenta), m)
	case "class", "result", "decision", "outcome":
		s := strings.TrimSpace(v.String())
		return h.pal.paint(enumColor(key, s, ""), s)
	}
	return quoteIfNeeded(valueText(v))
}

func enumColor(key, val, fallback string) string {
	if c, ok := valueColors[key][val]; ok {
		return c
	}
	return fallback
}

func statusColor(code int) string {
	switch {
	case code >= 500:
		return ansiRed
	case code >= 400:
		return ansiYellow
	case code >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func durationColor(ms int64) string {
	switch {
	case ms >= 1000:
		return ansiRed
	case ms >= 250:
		return ansiYellow
	default:
		return ansiDim
	}
}

func valueText(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		// String() covers the numeric, bool and duration kinds.
		return v.String()
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true // #nosec G115 -- status codes and durations fit.
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
