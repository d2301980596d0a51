package cardstore

import (
	"log/slog"
	"math/rand/v2"

	"github.com/conorfennell/studyhub/internal/domain"
	"github.com/conorfennell/studyhub/internal/fingerprint"
	"github.com/conorfennell/studyhub/internal/parser"
)

// Store is the immutable in-memory deck. It is safe for concurrent reads.
type Store struct {
	cards       []domain.Flashcard
	byID        map[int]int
	categories  map[domain.Category]domain.CategoryInfo
	fingerprint string
	rng         *rand.Rand
}

// Option configures a Store.
type Option func(*Store)

// WithRand makes RandomSubset draw from r. The caller must not share r
// across goroutines.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) { s.rng = r }
}

// Load reads the card file at path and builds a Store from it.
func Load(path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	deck, err := parser.ParseFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	s := New(deck.Flashcards, deck.Categories, opts...)

	if logger == nil {
		logger = slog.Default()
	}
	// Same content under two ids is legal but usually an authoring slip.
	seen := make(map[string]int, len(s.cards))
	for _, c := range s.cards {
		h := fingerprint.Card(c)
		if first, ok := seen[h]; ok {
			logger.Warn("Duplicate card content", "id", c.ID, "duplicate_of", first)
			continue
		}
		seen[h] = c.ID
	}

	logger.Info("Card store loaded", "path", path, "cards", len(s.cards), "fingerprint", s.fingerprint)
	return s, nil
}

// New builds a Store from already-validated cards. Category metadata missing
// from infos falls back to the built-in names.
func New(cards []domain.Flashcard, infos []domain.CategoryInfo, opts ...Option) *Store {
	s := &Store{
		cards:      append([]domain.Flashcard(nil), cards...),
		byID:       make(map[int]int, len(cards)),
		categories: make(map[domain.Category]domain.CategoryInfo, len(domain.Categories)),
	}
	for i, c := range s.cards {
		s.byID[c.ID] = i
	}
	for _, c := range domain.Categories {
		s.categories[c] = domain.DefaultCategoryInfo(c)
	}
	for _, info := range infos {
		def := domain.DefaultCategoryInfo(info.ID)
		if info.Name == "" {
			info.Name = def.Name
		}
		if info.Icon == "" {
			info.Icon = def.Icon
		}
		s.categories[info.ID] = info
	}
	s.fingerprint = fingerprint.Deck(s.cards)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of cards in the store.
func (s *Store) Len() int { return len(s.cards) }

// Card looks up a card by id.
func (s *Store) Card(id int) (domain.Flashcard, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.Flashcard{}, false
	}
	return s.cards[i], true
}

// Filter returns the cards in category, or every card for AnyCategory,
// in store order. The returned slice is a copy.
func (s *Store) Filter(category domain.Category) []domain.Flashcard {
	if category == domain.AnyCategory {
		return append([]domain.Flashcard(nil), s.cards...)
	}
	var out []domain.Flashcard
	for _, c := range s.cards {
		if c.Category == category {
			out = append(out, c)
		}
	}
	return out
}

// RandomSubset samples up to n distinct cards from category. When fewer
// than n cards match, all matching cards are returned in random order.
func (s *Store) RandomSubset(n int, category domain.Category) []domain.Flashcard {
	if n <= 0 {
		return nil
	}
	pool := s.Filter(category)
	shuffle := rand.Shuffle
	if s.rng != nil {
		shuffle = s.rng.Shuffle
	}
	shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool
}

// HighYield counts the high-yield cards in category.
func (s *Store) HighYield(category domain.Category) int {
	var n int
	for _, c := range s.cards {
		if c.HighYield && (category == domain.AnyCategory || c.Category == category) {
			n++
		}
	}
	return n
}

// Categories returns display metadata for every known category, in
// catalogue order.
func (s *Store) Categories() []domain.CategoryInfo {
	out := make([]domain.CategoryInfo, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		out = append(out, s.categories[c])
	}
	return out
}

// Fingerprint identifies the loaded deck content.
func (s *Store) Fingerprint() string { return s.fingerprint }
