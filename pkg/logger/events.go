package logger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// EventLog is the process-wide audit trail: every write lands in the ring,
// is forwarded to the console slog sink, and is offered to active stream
// subscribers. Writes never block on a slow subscriber.
type EventLog struct {
	ring    *Ring
	console *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	nextSub int
	subs    map[int]chan Entry
	dropped atomic.Uint64
}

// Options configures an EventLog. A nil Console falls back to the process
// default logger.
type Options struct {
	RingSize int
	Console  *slog.Logger
}

func NewEventLog(opts Options) *EventLog {
	console := opts.Console
	if console == nil {
		console = GetLogger()
	}
	return &EventLog{
		ring:    NewRing(opts.RingSize),
		console: console,
		metrics: NewMetrics(),
		subs:    make(map[int]chan Entry),
	}
}

// Log records one entry. Unknown categories are coerced to system so the
// closed category set holds for every stored entry.
func (l *EventLog) Log(level Level, category Category, traceID, message string, metadata map[string]any) {
	if !category.Valid() {
		category = CategorySystem
	}

	entry := Entry{
		TimestampMS: time.Now().UnixMilli(),
		Level:       level,
		Category:    category,
		Message:     message,
		Metadata:    metadata,
		TraceID:     traceID,
	}

	l.ring.Append(entry)
	l.emitConsole(entry)
	l.publish(entry)
}

func (l *EventLog) Debug(category Category, traceID, message string, metadata map[string]any) {
	l.Log(LevelDebug, category, traceID, message, metadata)
}

func (l *EventLog) Info(category Category, traceID, message string, metadata map[string]any) {
	l.Log(LevelInfo, category, traceID, message, metadata)
}

func (l *EventLog) Success(category Category, traceID, message string, metadata map[string]any) {
	l.Log(LevelSuccess, category, traceID, message, metadata)
}

func (l *EventLog) Warn(category Category, traceID, message string, metadata map[string]any) {
	l.Log(LevelWarn, category, traceID, message, metadata)
}

func (l *EventLog) Error(category Category, traceID, message string, metadata map[string]any) {
	l.Log(LevelError, category, traceID, message, metadata)
}

// Snapshot reads the ring with the given filter.
func (l *EventLog) Snapshot(f Filter) []Entry {
	return l.ring.Snapshot(f)
}

// Metrics returns the component counter registry attached to this log.
func (l *EventLog) Metrics() *Metrics {
	return l.metrics
}

// Subscribe registers a stream consumer. The returned cancel func must be
// called when the consumer goes away; after cancel the channel is closed.
func (l *EventLog) Subscribe(buffer int) (<-chan Entry, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Entry, buffer)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if existing, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Dropped reports entries not delivered to a subscriber because its buffer
// was full.
func (l *EventLog) Dropped() uint64 {
	return l.dropped.Load()
}

func (l *EventLog) publish(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
			l.dropped.Add(1)
		}
	}
}

func (l *EventLog) emitConsole(e Entry) {
	attrs := make([]slog.Attr, 0, len(e.Metadata)+2)
	attrs = append(attrs, slog.String("category", string(e.Category)))
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs = append(attrs, slog.Any(k, e.Metadata[k]))
		}
	}

	l.console.LogAttrs(context.Background(), e.Level.slogLevel(), e.Message, attrs...)
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelSuccess:
		return SlogLevelSuccess
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
