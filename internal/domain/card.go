package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category is one of the four exam sections a card belongs to.
type Category string

const (
	BioBiochem Category = "bio_biochem"
	Chem       Category = "chem"
	Physics    Category = "physics"
	PsychSoc   Category = "psych_soc"

	// AnyCategory is the zero value; filters treat it as "all categories".
	AnyCategory Category = ""
)

// Categories lists the known categories in display order.
var Categories = []Category{BioBiochem, Chem, Physics, PsychSoc}

// IsValid reports whether c is one of the enumerated categories.
// AnyCategory is not valid.
func (c Category) IsValid() bool {
	switch c {
	case BioBiochem, Chem, Physics, PsychSoc:
		return true
	}
	return false
}

// ParseCategory accepts a category id, or "" / "all" for AnyCategory.
func ParseCategory(s string) (Category, error) {
	if s == "" || s == "all" {
		return AnyCategory, nil
	}
	c := Category(s)
	if !c.IsValid() {
		return AnyCategory, fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Difficulty is the author-assigned difficulty of a card.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Flashcard is a single question/answer record from the card file.
type Flashcard struct {
	ID          int        `json:"id" validate:"gt=0"`
	Category    Category   `json:"category" validate:"oneof=bio_biochem chem physics psych_soc"`
	Subcategory string     `json:"subcategory"`
	Question    string     `json:"question" validate:"required"`
	Answer      string     `json:"answer" validate:"required"`
	Difficulty  Difficulty `json:"difficulty" validate:"oneof=easy medium hard"`
	HighYield   bool       `json:"high_yield"`
}

// CategoryInfo carries the display metadata of a category.
type CategoryInfo struct {
	ID   Category `json:"id" validate:"oneof=bio_biochem chem physics psych_soc"`
	Name string   `json:"name"`
	Icon string   `json:"icon"`
}

var defaultCategoryInfo = map[Category]CategoryInfo{
	BioBiochem: {ID: BioBiochem, Name: "Biology & Biochemistry", Icon: "🧬"},
	Chem:       {ID: Chem, Name: "Chemistry", Icon: "⚗️"},
	Physics:    {ID: Physics, Name: "Physics", Icon: "⚛️"},
	PsychSoc:   {ID: PsychSoc, Name: "Psychology & Sociology", Icon: "🧠"},
}

// DefaultCategoryInfo returns the built-in display metadata for c.
func DefaultCategoryInfo(c Category) CategoryInfo {
	if info, ok := defaultCategoryInfo[c]; ok {
		return info
	}
	return CategoryInfo{ID: c, Name: string(c)}
}

// StudyEvent records a single self-assessment of a card.
// Events are never edited once written.
type StudyEvent struct {
	Timestamp time.Time `json:"timestamp" validate:"required"`
	CardID    int       `json:"card_id" validate:"gt=0"`
	// Category is copied from the card at study time. It is empty when the
	// card was unknown when the event was appended.
	Category  Category `json:"category,omitempty" validate:"omitempty,oneof=bio_biochem chem physics psych_soc"`
	Correct   bool     `json:"correct"`
	SessionID string   `json:"session_id,omitempty" validate:"omitempty,uuid"`
}

// UnmarshalJSON accepts an RFC 3339 timestamp or a bare YYYY-MM-DD date.
// A bare date is read as local midnight.
func (e *StudyEvent) UnmarshalJSON(data []byte) error {
	type plain StudyEvent
	aux := struct {
		Timestamp string `json:"timestamp"`
		*plain
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	e.Timestamp = time.Time{}
	if aux.Timestamp == "" {
		return nil
	}
	if ts, err := time.Parse(time.RFC3339, aux.Timestamp); err == nil {
		e.Timestamp = ts
		return nil
	}
	ts, err := time.ParseInLocation(time.DateOnly, aux.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("timestamp %q is neither RFC 3339 nor a date", aux.Timestamp)
	}
	e.Timestamp = ts
	return nil
}
