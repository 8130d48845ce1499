package powermap

import (
	"context"
	"log/slog"
)

// LogEntry is a single diagnostic produced while building a grid. ItemID is
// empty for entries that concern the grid as a whole.
type LogEntry struct {
	ItemID  string     `json:"item_id,omitempty"`
	Level   slog.Level `json:"level"`
	Message string     `json:"message"`
}

// ItemizedLog collects diagnostics in emission order and mirrors them to a
// structured logger. Entries are never modified once appended.
type ItemizedLog struct {
	entries []LogEntry
	logger  *slog.Logger
}

// NewItemizedLog returns an empty log. A nil logger discards the mirror output.
func NewItemizedLog(logger *slog.Logger) *ItemizedLog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ItemizedLog{logger: logger}
}

func (l *ItemizedLog) add(itemID string, level slog.Level, msg string) {
	l.logger.Log(context.Background(), level, msg, "item", itemID)
	l.entries = append(l.entries, LogEntry{ItemID: itemID, Level: level, Message: msg})
}

func (l *ItemizedLog) Debug(itemID, msg string) { l.add(itemID, slog.LevelDebug, msg) }
func (l *ItemizedLog) Info(itemID, msg string)  { l.add(itemID, slog.LevelInfo, msg) }
func (l *ItemizedLog) Warn(itemID, msg string)  { l.add(itemID, slog.LevelWarn, msg) }
func (l *ItemizedLog) Error(itemID, msg string) { l.add(itemID, slog.LevelError, msg) }

// Entries returns a copy of all entries.
func (l *ItemizedLog) Entries() []LogEntry {
	return append([]LogEntry(nil), l.entries...)
}

// Filter returns the entries at or above min.
func (l *ItemizedLog) Filter(min slog.Level) []LogEntry {
	var out []LogEntry
	for _, e := range l.entries {
		if e.Level >= min {
			out = append(out, e)
		}
	}
	return out
}

// ForItem returns the entries that reference itemID.
func (l *ItemizedLog) ForItem(itemID string) []LogEntry {
	var out []LogEntry
	for _, e := range l.entries {
		if e.ItemID == itemID {
			out = append(out, e)
		}
	}
	return out
}

// Len is the number of entries.
func (l *ItemizedLog) Len() int { return len(l.entries) }
