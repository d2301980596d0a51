package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/renameio/v2"

	"github.com/conorfennell/studyhub/internal/domain"
)

// CardLookup resolves a card id to the card, for category denormalization.
type CardLookup interface {
	Card(id int) (domain.Flashcard, bool)
}

// Ledger is the append-only log of study events backed by a JSON file.
// Every append rewrites the file atomically, so the file on disk is always
// a complete ledger.
type Ledger struct {
	mu     sync.Mutex
	path   string
	events []domain.StudyEvent // insertion order
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger used for append and load records.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithLocation sets the time zone that decides which calendar day an event
// belongs to. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.loc = loc }
}

// WithClock replaces time.Now for events appended without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Open loads the ledger stored at path. A missing or zero-length file is an
// empty ledger; the file is created by the first Append. Content that fails
// to decode or validate returns a *CorruptLedgerError; a file that cannot be
// read at all returns a plain wrapped error.
func Open(path string, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		path:   path,
		logger: slog.Default(),
		loc:    time.Local,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		l.logger.Info("No ledger file yet, starting empty", "path", path)
		return l, nil
	case err != nil:
		// An unreadable file is not a corrupt one; never offer it for quarantine.
		return nil, fmt.Errorf("failed to read ledger %s: %w", path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		l.logger.Info("Ledger file is empty, starting empty", "path", path)
		return l, nil
	}

	var events []domain.StudyEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, &CorruptLedgerError{Path: path, Err: err}
	}
	for i, ev := range events {
		if err := validate.Struct(ev); err != nil {
			return nil, &CorruptLedgerError{Path: path, Err: fmt.Errorf("event #%d: %w", i, err)}
		}
	}
	l.events = events

	l.logger.Info("Ledger loaded", "path", path, "events", len(events))
	return l, nil
}

// Quarantine moves a corrupt ledger file aside so a fresh ledger can be
// started at path. It returns the new location of the old file.
func Quarantine(path string, now time.Time) (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%s", path, now.UTC().Format("20060102T150405Z"))
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("failed to quarantine ledger %s: %w", path, err)
	}
	return dst, nil
}

// Path returns the backing file of the ledger.
func (l *Ledger) Path() string { return l.path }

// Len returns the number of recorded events.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Append records ev and persists the ledger before returning.
//
// The event's category is taken from cards; when the card is unknown the
// event is still recorded, with an empty category. A zero timestamp is
// replaced with the current time. If the write fails a *PersistenceError is
// returned and the event is not kept in memory either.
func (l *Ledger) Append(ev domain.StudyEvent, cards CardLookup) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	ev.Category = domain.AnyCategory
	if cards != nil {
		if card, ok := cards.Card(ev.CardID); ok {
			ev.Category = card.Category
		}
	}
	if err := validate.Struct(ev); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := append(l.events[:len(l.events):len(l.events)], ev)
	if err := l.write(next); err != nil {
		l.logger.Error("Failed to persist study event", "path", l.path, "card_id", ev.CardID, "error", err)
		return &PersistenceError{Path: l.path, Err: err}
	}
	l.events = next

	if ev.Category == domain.AnyCategory {
		l.logger.Warn("Recorded event for unknown card", "card_id", ev.CardID)
	}
	l.logger.Debug("Recorded study event", "card_id", ev.CardID, "category", ev.Category, "correct", ev.Correct)
	return nil
}

func (l *Ledger) write(events []domain.StudyEvent) error {
	if events == nil {
		events = []domain.StudyEvent{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}
	if err := renameio.WriteFile(l.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}
	return nil
}

// AllEvents returns a copy of the ledger ordered by timestamp, ties broken
// by insertion order.
func (l *Ledger) AllEvents() []domain.StudyEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sorted()
}

func (l *Ledger) sorted() []domain.StudyEvent {
	out := append([]domain.StudyEvent(nil), l.events...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (l *Ledger) day(t time.Time) string {
	return t.In(l.loc).Format(time.DateOnly)
}
