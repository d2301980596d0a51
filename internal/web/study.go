package web

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/conorfennell/studyhub/internal/domain"
	"github.com/conorfennell/studyhub/internal/ledger"
	"github.com/conorfennell/studyhub/internal/session"
)

type studyView struct {
	Categories []domain.CategoryInfo
	Selected   domain.Category
	Shuffle    bool
	Empty      bool
	Complete   bool
	Timed      bool
	Remaining  int
	Ticket     session.Ticket
	Card       domain.Flashcard
	Info       domain.CategoryInfo
	ShowAnswer bool
	Bookmarked bool
	Index      int
	Total      int
	Laps       int
	Progress   float64
	Score      session.Score
	Accuracy   float64
	Error      string
}

func (s *Server) studyView(showAnswer bool) studyView {
	opts := s.session.Options()
	v := studyView{
		Categories: s.cards.Categories(),
		Selected:   opts.Category,
		Shuffle:    opts.Shuffle,
		ShowAnswer: showAnswer,
		Score:      s.session.Score(),
	}
	v.Index, v.Total, v.Laps = s.session.Position()
	if v.Total > 0 {
		v.Progress = float64(v.Index+1) / float64(v.Total)
	}
	if v.Score.Total() > 0 {
		v.Accuracy = float64(v.Score.Correct) / float64(v.Score.Total())
	}

	v.Timed = opts.Timed()
	if d, ok := s.session.Remaining(); ok {
		v.Remaining = int(math.Ceil(d.Seconds()))
	}

	ticket, err := s.session.Ticket()
	switch {
	case errors.Is(err, session.ErrEmptySession):
		v.Empty = true
		return v
	case errors.Is(err, session.ErrSessionComplete):
		v.Complete = true
		return v
	}
	v.Ticket = ticket
	card, _ := s.cards.Card(ticket.CardID)
	v.Card = card
	v.Info = domain.DefaultCategoryInfo(card.Category)
	for _, info := range v.Categories {
		if info.ID == card.Category {
			v.Info = info
		}
	}
	v.Bookmarked = s.session.Bookmarked(card.ID)
	return v
}

// handleGetStudy renders the current card, front only or with its answer.
// In a timed session a card whose clock ran out is scored first, and the
// page asks the browser to reload when the next clock runs out.
func (s *Server) handleGetStudy(showAnswer bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reveal := showAnswer
		var saveErr error
		if expired, err := s.session.Expire(); err != nil {
			s.logger.Error("Timed out card was not saved", "error", err)
			saveErr = err
		} else if expired {
			reveal = false
		}

		v := s.studyView(reveal)
		status := http.StatusOK
		if saveErr != nil {
			v.Error = "Your answer was not saved: " + saveErr.Error()
			status = http.StatusInternalServerError
		}
		if v.Timed && !v.Complete && !v.Empty {
			w.Header().Set("Refresh", strconv.Itoa(v.Remaining+1))
		}
		s.render(w, status, "study", v)
	}
}

// handlePostStart starts a new session for the submitted filter.
func (s *Server) handlePostStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category, err := domain.ParseCategory(r.PostFormValue("category"))
		if err != nil {
			http.Error(w, "Invalid category", http.StatusBadRequest)
			return
		}
		shuffle, _ := strconv.ParseBool(r.PostFormValue("shuffle"))

		s.session.Start(session.Options{Category: category, Shuffle: shuffle, Limit: s.limit})
		http.Redirect(w, r, "/study", http.StatusSeeOther)
	}
}

// Timed practice bounds, in cards and seconds per card.
const (
	minTimedCards   = 1
	maxTimedCards   = 30
	minTimedSeconds = 10
	maxTimedSeconds = 600
)

// handlePostTimed starts a timed practice session of random cards.
func (s *Server) handlePostTimed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category, err := domain.ParseCategory(r.PostFormValue("category"))
		if err != nil {
			http.Error(w, "Invalid category", http.StatusBadRequest)
			return
		}
		cards, err := formInt(r, "cards", minTimedCards, maxTimedCards)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		seconds, err := formInt(r, "seconds", minTimedSeconds, maxTimedSeconds)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.session.Start(session.Options{
			Category: category,
			Shuffle:  true,
			Limit:    cards,
			CardTime: time.Duration(seconds) * time.Second,
		})
		http.Redirect(w, r, "/study", http.StatusSeeOther)
	}
}

func formInt(r *http.Request, key string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(r.PostFormValue(key))
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be between %d and %d", key, lo, hi)
	}
	return n, nil
}

// handlePostOutcome records the self-assessment and moves to the next card.
// The form names the card presentation it answers; an answer for a card that
// is no longer on screen is rejected with 409 and nothing is recorded. A
// failed write keeps the card on screen so the answer can be resubmitted.
func (s *Server) handlePostOutcome() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		correct, err := strconv.ParseBool(r.PostFormValue("correct"))
		if err != nil {
			http.Error(w, "Invalid outcome", http.StatusBadRequest)
			return
		}
		cardID, err := strconv.Atoi(r.PostFormValue("card_id"))
		if err != nil {
			http.Error(w, "Invalid card", http.StatusBadRequest)
			return
		}
		turn, err := strconv.Atoi(r.PostFormValue("turn"))
		if err != nil {
			http.Error(w, "Invalid card", http.StatusBadRequest)
			return
		}

		err = s.session.RecordOutcomeFor(session.Ticket{CardID: cardID, Turn: turn}, correct)
		switch {
		case errors.Is(err, session.ErrEmptySession), errors.Is(err, session.ErrSessionComplete):
			http.Redirect(w, r, "/study", http.StatusSeeOther)
			return
		case errors.Is(err, session.ErrStaleTicket):
			v := s.studyView(false)
			v.Error = "That card is no longer on screen, so the answer was not recorded."
			s.render(w, http.StatusConflict, "study", v)
			return
		case errors.Is(err, ledger.ErrPersistence):
			s.logger.Error("Study event was not saved", "error", err)
			v := s.studyView(true)
			v.Error = "Your answer was not saved: " + err.Error()
			s.render(w, http.StatusInternalServerError, "study", v)
			return
		case err != nil:
			s.logger.Error("Failed to record outcome", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		s.session.Advance()
		http.Redirect(w, r, "/study", http.StatusSeeOther)
	}
}

// handlePostNext skips to the next card without recording anything.
func (s *Server) handlePostNext() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.session.Advance()
		http.Redirect(w, r, "/study", http.StatusSeeOther)
	}
}

// handlePostBack returns to the previous card.
func (s *Server) handlePostBack() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.session.Back()
		http.Redirect(w, r, "/study", http.StatusSeeOther)
	}
}

// handlePostRandom jumps to a random card of the session.
func (s *Server) handlePostRandom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.session.Jump()
		http.Redirect(w, r, "/study", http.StatusSeeOther)
	}
}

// handlePostBookmark toggles the bookmark on the current card.
func (s *Server) handlePostBookmark() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := s.session.ToggleBookmark()
		if err != nil && !errors.Is(err, session.ErrEmptySession) && !errors.Is(err, session.ErrSessionComplete) {
			s.logger.Error("Failed to toggle bookmark", "error", err)
		}
		target := "/study"
		if r.PostFormValue("answer") == "1" {
			target = "/study/answer"
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}
