package ledger

import (
	"sort"
	"time"

	"github.com/conorfennell/studyhub/internal/domain"
)

// DailySummary aggregates the attempts made on one calendar day.
type DailySummary struct {
	Date      string  `json:"date"`
	Attempts  int     `json:"attempts"`
	Correct   int     `json:"correct"`
	Incorrect int     `json:"incorrect"`
	Accuracy  float64 `json:"accuracy"`
}

// CategorySummary aggregates attempts in one category, joined against the
// card store for coverage.
type CategorySummary struct {
	Category  domain.Category `json:"category"`
	Attempts  int             `json:"attempts"`
	Correct   int             `json:"correct"`
	Accuracy  float64         `json:"accuracy"`
	Cards     int             `json:"cards"`
	HighYield int             `json:"high_yield"`
	Attempted int             `json:"attempted"`
	Coverage  float64         `json:"coverage"`
}

// Overview holds the headline totals of the progress screen.
type Overview struct {
	Attempts      int     `json:"attempts"`
	Correct       int     `json:"correct"`
	Accuracy      float64 `json:"accuracy"`
	StudyDays     int     `json:"study_days"`
	Sessions      int     `json:"sessions"`
	Uncategorized int     `json:"uncategorized"`
	Streak        int     `json:"streak"`
}

// CardIndex lists the cards of a category for the coverage join.
type CardIndex interface {
	Filter(category domain.Category) []domain.Flashcard
}

func accuracy(correct, attempts int) float64 {
	if attempts == 0 {
		return 0
	}
	return float64(correct) / float64(attempts)
}

// DailySummary groups events by calendar day in a single pass.
func (l *Ledger) DailySummary() map[string]DailySummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]DailySummary)
	for _, ev := range l.events {
		key := l.day(ev.Timestamp)
		s := out[key]
		s.Date = key
		s.Attempts++
		if ev.Correct {
			s.Correct++
		}
		out[key] = s
	}
	for key, s := range out {
		s.Incorrect = s.Attempts - s.Correct
		s.Accuracy = accuracy(s.Correct, s.Attempts)
		out[key] = s
	}
	return out
}

// Days returns the daily summaries ordered by date.
func (l *Ledger) Days() []DailySummary {
	daily := l.DailySummary()
	out := make([]DailySummary, 0, len(daily))
	for _, s := range daily {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// CategorySummary reports every catalogue category. Attempts and accuracy
// follow the category stored on each event; coverage counts distinct card
// ids from cards.Filter(category) that have at least one event.
func (l *Ledger) CategorySummary(cards CardIndex) map[domain.Category]CategorySummary {
	out := make(map[domain.Category]CategorySummary, len(domain.Categories))
	owner := make(map[int]domain.Category)
	for _, c := range domain.Categories {
		s := CategorySummary{Category: c}
		if cards != nil {
			for _, card := range cards.Filter(c) {
				owner[card.ID] = c
				s.Cards++
				if card.HighYield {
					s.HighYield++
				}
			}
		}
		out[c] = s
	}

	attempted := make(map[int]bool)

	l.mu.Lock()
	for _, ev := range l.events {
		if s, ok := out[ev.Category]; ok {
			s.Attempts++
			if ev.Correct {
				s.Correct++
			}
			out[ev.Category] = s
		}
		if c, ok := owner[ev.CardID]; ok && !attempted[ev.CardID] {
			attempted[ev.CardID] = true
			s := out[c]
			s.Attempted++
			out[c] = s
		}
	}
	l.mu.Unlock()

	for c, s := range out {
		s.Accuracy = accuracy(s.Correct, s.Attempts)
		if s.Cards > 0 {
			s.Coverage = float64(s.Attempted) / float64(s.Cards)
		}
		out[c] = s
	}
	return out
}

// Accuracy is the share of correct events over the whole ledger.
func (l *Ledger) Accuracy() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var correct int
	for _, ev := range l.events {
		if ev.Correct {
			correct++
		}
	}
	return accuracy(correct, len(l.events))
}

// RunningAccuracy is the share of correct events among the last window
// events in timestamp order. It is 0 for a non-positive window or an empty
// ledger.
func (l *Ledger) RunningAccuracy(window int) float64 {
	if window <= 0 {
		return 0
	}
	l.mu.Lock()
	events := l.sorted()
	l.mu.Unlock()

	if len(events) > window {
		events = events[len(events)-window:]
	}
	var correct int
	for _, ev := range events {
		if ev.Correct {
			correct++
		}
	}
	return accuracy(correct, len(events))
}

// Streak counts consecutive study days ending today, or ending yesterday
// when nothing has been studied yet today.
func (l *Ledger) Streak(now time.Time) int {
	l.mu.Lock()
	days := make(map[string]bool)
	for _, ev := range l.events {
		days[l.day(ev.Timestamp)] = true
	}
	l.mu.Unlock()

	local := now.In(l.loc)
	cursor := time.Date(local.Year(), local.Month(), local.Day(), 12, 0, 0, 0, l.loc)
	if !days[cursor.Format(time.DateOnly)] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	var streak int
	for days[cursor.Format(time.DateOnly)] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

// Overview computes the headline totals as of now.
func (l *Ledger) Overview(now time.Time) Overview {
	l.mu.Lock()
	var o Overview
	days := make(map[string]bool)
	sessions := make(map[string]bool)
	for _, ev := range l.events {
		o.Attempts++
		if ev.Correct {
			o.Correct++
		}
		if ev.Category == domain.AnyCategory {
			o.Uncategorized++
		}
		days[l.day(ev.Timestamp)] = true
		if ev.SessionID != "" {
			sessions[ev.SessionID] = true
		}
	}
	l.mu.Unlock()

	o.Accuracy = accuracy(o.Correct, o.Attempts)
	o.StudyDays = len(days)
	o.Sessions = len(sessions)
	o.Streak = l.Streak(now)
	return o
}
