package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/studyhub/internal/domain"
)

// Deck is the decoded content of a card file.
type Deck struct {
	Categories []domain.CategoryInfo `json:"categories"`
	Flashcards []domain.Flashcard    `json:"flashcards"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseFile reads a card file from the given path and decodes its deck.
func ParseFile(path string) (*Deck, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse decodes a card file. Two layouts are accepted: a bare JSON array of
// flashcards, or an object with "categories" and "flashcards" keys.
// Every record is validated; the first invalid record fails the whole deck.
func Parse(r io.Reader) (*Deck, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty card file")
	}

	var deck Deck
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &deck.Flashcards); err != nil {
			return nil, fmt.Errorf("decode flashcards: %w", err)
		}
	case '{':
		if err := json.Unmarshal(trimmed, &deck); err != nil {
			return nil, fmt.Errorf("decode deck: %w", err)
		}
	default:
		return nil, errors.New("card file must hold a JSON array or object")
	}

	if err := check(&deck); err != nil {
		return nil, err
	}
	return &deck, nil
}

func check(deck *Deck) error {
	seenCategory := make(map[domain.Category]bool, len(deck.Categories))
	for i, info := range deck.Categories {
		if err := validate.Struct(info); err != nil {
			return fmt.Errorf("category #%d: %w", i, err)
		}
		if seenCategory[info.ID] {
			return fmt.Errorf("category #%d: duplicate category %q", i, info.ID)
		}
		seenCategory[info.ID] = true
	}

	seenID := make(map[int]bool, len(deck.Flashcards))
	for i, card := range deck.Flashcards {
		if err := validate.Struct(card); err != nil {
			return fmt.Errorf("flashcard #%d (id %d): %w", i, card.ID, err)
		}
		if seenID[card.ID] {
			return fmt.Errorf("flashcard #%d: duplicate id %d", i, card.ID)
		}
		seenID[card.ID] = true
	}
	return nil
}
