package session

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/studyhub/internal/domain"
	"github.com/conorfennell/studyhub/internal/ledger"
)

// ErrEmptySession is returned by Current and RecordOutcome when the session
// filter matched no cards. Callers recover by starting a wider session.
var ErrEmptySession = errors.New("session: no cards match the session filter")

// ErrStaleTicket is returned when an outcome is submitted for a card
// presentation that is no longer on screen. Nothing is recorded.
var ErrStaleTicket = errors.New("session: card is no longer current")

// ErrSessionComplete is returned once a timed session has shown its last
// card.
var ErrSessionComplete = errors.New("session: timed session is complete")

// Deck is the part of the card store a session draws from.
type Deck interface {
	ledger.CardLookup
	Filter(category domain.Category) []domain.Flashcard
	RandomSubset(n int, category domain.Category) []domain.Flashcard
}

// Recorder receives the events produced by RecordOutcome.
type Recorder interface {
	Append(ev domain.StudyEvent, cards ledger.CardLookup) error
}

// Options selects the cards of a session.
type Options struct {
	Category domain.Category
	Shuffle  bool
	// Limit caps the number of cards; zero means every matching card.
	Limit int
	// CardTime makes the session timed when positive. Each card must be
	// answered within CardTime or it is recorded as incorrect, and the
	// session ends after the last card instead of wrapping.
	CardTime time.Duration
}

// Timed reports whether the options describe a timed session.
func (o Options) Timed() bool { return o.CardTime > 0 }

// Ticket identifies one presentation of a card. An outcome is accepted only
// for the ticket currently on screen, and only once.
type Ticket struct {
	CardID int
	Turn   int
}

// Score counts the self-assessments made in this session.
type Score struct {
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
}

// Total is the number of assessments.
func (s Score) Total() int { return s.Correct + s.Incorrect }

// Controller is an in-memory cursor over the cards of one study session.
// Nothing it holds is persisted except the events it forwards to the
// recorder.
type Controller struct {
	mu        sync.Mutex
	deck      Deck
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
	intn      func(n int) int
	id        uuid.UUID
	opts      Options
	cards     []domain.Flashcard
	pos       int
	laps      int
	turn      int
	deadline  time.Time
	finished  bool
	score     Score
	bookmarks map[int]bool
}

// New returns a controller with no cards; call Start before use.
func New(deck Deck, recorder Recorder, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		deck:      deck,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
		intn:      rand.IntN,
		bookmarks: make(map[int]bool),
	}
}

// Start begins a new session, discarding the cursor, lap count and score of
// the previous one. Bookmarks survive for the life of the controller.
func (c *Controller) Start(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case opts.Shuffle:
		n := opts.Limit
		if n <= 0 {
			n = len(c.deck.Filter(opts.Category))
		}
		c.cards = c.deck.RandomSubset(n, opts.Category)
	default:
		c.cards = c.deck.Filter(opts.Category)
		if opts.Limit > 0 && opts.Limit < len(c.cards) {
			c.cards = c.cards[:opts.Limit]
		}
	}

	c.id = uuid.New()
	c.opts = opts
	c.pos = 0
	c.laps = 0
	c.finished = false
	c.score = Score{}
	c.moved()

	c.logger.Info("Session started",
		"session_id", c.id,
		"category", opts.Category,
		"shuffle", opts.Shuffle,
		"card_time", opts.CardTime,
		"cards", len(c.cards),
	)
}

// moved invalidates the ticket on screen and restarts the card clock.
func (c *Controller) moved() {
	c.turn++
	if c.opts.Timed() {
		c.deadline = c.now().Add(c.opts.CardTime)
	}
}

// ID returns the identifier stamped on events of the current session.
func (c *Controller) ID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Options returns the options the current session was started with.
func (c *Controller) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// Current returns the card under the cursor.
func (c *Controller) Current() (domain.Flashcard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current()
}

func (c *Controller) current() (domain.Flashcard, error) {
	if len(c.cards) == 0 {
		return domain.Flashcard{}, ErrEmptySession
	}
	if c.finished {
		return domain.Flashcard{}, ErrSessionComplete
	}
	return c.cards[c.pos], nil
}

// Ticket returns the ticket of the card on screen.
func (c *Controller) Ticket() (Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	card, err := c.current()
	if err != nil {
		return Ticket{}, err
	}
	return Ticket{CardID: card.ID, Turn: c.turn}, nil
}

// Advance moves to the next card. Past the last card an untimed session
// wraps to the first one and the lap counter increases; a timed session
// is complete instead.
func (c *Controller) Advance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance()
}

func (c *Controller) advance() {
	if len(c.cards) == 0 || c.finished {
		return
	}
	c.pos++
	if c.pos == len(c.cards) {
		if c.opts.Timed() {
			c.pos = len(c.cards) - 1
			c.finished = true
			c.turn++
			c.logger.Info("Timed session complete", "session_id", c.id, "correct", c.score.Correct, "incorrect", c.score.Incorrect)
			return
		}
		c.pos = 0
		c.laps++
		c.logger.Info("Session lap complete", "session_id", c.id, "lap", c.laps, "cards", len(c.cards))
	}
	c.moved()
}

// Back moves to the previous card. It stops at the first card and does
// nothing in a timed session.
func (c *Controller) Back() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cards) == 0 || c.opts.Timed() || c.pos == 0 {
		return
	}
	c.pos--
	c.moved()
}

// Jump moves to a random card of the session. It does nothing in a timed
// session.
func (c *Controller) Jump() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cards) == 0 || c.opts.Timed() {
		return
	}
	c.pos = c.intn(len(c.cards))
	c.moved()
}

// Finished reports whether a timed session has shown its last card.
func (c *Controller) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// Remaining returns the time left on the current card of a timed session.
// ok is false for untimed, empty or finished sessions.
func (c *Controller) Remaining() (d time.Duration, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opts.Timed() || len(c.cards) == 0 || c.finished {
		return 0, false
	}
	return max(c.deadline.Sub(c.now()), 0), true
}

// Expire records an incorrect outcome for the current card of a timed
// session whose clock has run out, then advances. It reports whether a
// card timed out.
func (c *Controller) Expire() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.opts.Timed() || len(c.cards) == 0 || c.finished || c.now().Before(c.deadline) {
		return false, nil
	}
	card := c.cards[c.pos]
	if err := c.record(card, false); err != nil {
		return false, err
	}
	c.logger.Info("Card timed out", "session_id", c.id, "card_id", card.ID)
	c.advance()
	return true, nil
}

// Position reports the zero-based cursor index, the number of cards and the
// number of completed laps.
func (c *Controller) Position() (index, total, laps int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos, len(c.cards), c.laps
}

// RecordOutcome builds a study event for the current card and forwards it to
// the recorder. The score only changes when the recorder accepts the event;
// recorder errors are returned unchanged. In a timed session an outcome
// given after the card's deadline is recorded as incorrect.
func (c *Controller) RecordOutcome(correct bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	card, err := c.current()
	if err != nil {
		return err
	}
	return c.record(card, correct)
}

// RecordOutcomeFor is RecordOutcome guarded by the ticket the outcome was
// given for. A ticket that is not the one on screen, or that was already
// used, returns ErrStaleTicket and records nothing.
func (c *Controller) RecordOutcomeFor(t Ticket, correct bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	card, err := c.current()
	if err != nil {
		return err
	}
	if t.CardID != card.ID || t.Turn != c.turn {
		c.logger.Warn("Rejected outcome for stale card", "session_id", c.id, "card_id", t.CardID, "current_card_id", card.ID)
		return ErrStaleTicket
	}
	return c.record(card, correct)
}

func (c *Controller) record(card domain.Flashcard, correct bool) error {
	if c.opts.Timed() && !c.now().Before(c.deadline) {
		correct = false
	}

	ev := domain.StudyEvent{
		Timestamp: c.now(),
		CardID:    card.ID,
		Category:  card.Category,
		Correct:   correct,
		SessionID: c.id.String(),
	}
	if err := c.recorder.Append(ev, c.deck); err != nil {
		return err
	}

	c.turn++
	if correct {
		c.score.Correct++
	} else {
		c.score.Incorrect++
	}
	return nil
}

// Score returns the assessments made since Start.
func (c *Controller) Score() Score {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.score
}

// ToggleBookmark flips the bookmark on the current card and reports the new
// state.
func (c *Controller) ToggleBookmark() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	card, err := c.current()
	if err != nil {
		return false, err
	}
	if c.bookmarks[card.ID] {
		delete(c.bookmarks, card.ID)
		return false, nil
	}
	c.bookmarks[card.ID] = true
	return true, nil
}

// Bookmarked reports whether the card with id is bookmarked.
func (c *Controller) Bookmarked(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bookmarks[id]
}
