package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/studyhub/internal/domain"
)

// Normalize concatenates the card's content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them.
func Normalize(card domain.Flashcard) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	q := normalizePart(card.Question)
	a := normalizePart(card.Answer)

	// Joined with a newline so "question" and "answer" never run together.
	return strings.Join([]string{q, a}, "\n")
}

// Card returns the SHA-256 hex digest of the card's normalized content.
// Two cards with the same question and answer share a hash regardless of id.
func Card(card domain.Flashcard) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum)
}

// Deck hashes the ids and content hashes of cards in order. It changes
// whenever a card is added, removed, reordered or edited.
func Deck(cards []domain.Flashcard) string {
	h := sha256.New()
	for _, c := range cards {
		fmt.Fprintf(h, "%d:%s\n", c.ID, Card(c))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
