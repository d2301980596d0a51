package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/conorfennell/studyhub/internal/domain"
	"github.com/conorfennell/studyhub/internal/export"
	"github.com/conorfennell/studyhub/internal/ledger"
)

type categoryRow struct {
	domain.CategoryInfo
	ledger.CategorySummary
}

type overviewView struct {
	ledger.Overview
	RunningAccuracy float64 `json:"running_accuracy"`
	Window          int     `json:"window"`
}

func (s *Server) categoryRows() []categoryRow {
	summaries := s.ledger.CategorySummary(s.cards)
	infos := s.cards.Categories()
	rows := make([]categoryRow, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, categoryRow{CategoryInfo: info, CategorySummary: summaries[info.ID]})
	}
	return rows
}

func (s *Server) overview() overviewView {
	return overviewView{
		Overview:        s.ledger.Overview(s.now()),
		RunningAccuracy: s.ledger.RunningAccuracy(s.window),
		Window:          s.window,
	}
}

// handleGetProgress renders the statistics page.
func (s *Server) handleGetProgress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := map[string]interface{}{
			"Overview":    s.overview(),
			"Days":        s.ledger.Days(),
			"Categories":  s.categoryRows(),
			"Score":       s.session.Score(),
			"Fingerprint": s.cards.Fingerprint(),
		}
		s.render(w, http.StatusOK, "progress", data)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// handleGetDaily serves the daily summaries for charting.
func (s *Server) handleGetDaily() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, s.ledger.Days())
	}
}

// handleGetCategories serves the per-category summaries for charting.
func (s *Server) handleGetCategories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type item struct {
			Name string `json:"name"`
			Icon string `json:"icon"`
			ledger.CategorySummary
		}
		rows := s.categoryRows()
		out := make([]item, 0, len(rows))
		for _, row := range rows {
			out = append(out, item{Name: row.Name, Icon: row.Icon, CategorySummary: row.CategorySummary})
		}
		s.writeJSON(w, out)
	}
}

// handleGetOverview serves the headline totals.
func (s *Server) handleGetOverview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, s.overview())
	}
}

// handleGetExport downloads the derived views as a workbook. The workbook is
// built in memory so a failure can still be reported as a plain error.
func (s *Server) handleGetExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := export.Progress{
			Days:       s.ledger.Days(),
			Categories: s.ledger.CategorySummary(s.cards),
			Info:       s.cards.Categories(),
		}
		var buf bytes.Buffer
		if err := s.writeProgress(&buf, p); err != nil {
			s.logger.Error("Failed to export progress", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="progress.xlsx"`)
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		if _, err := buf.WriteTo(w); err != nil {
			s.logger.Error("Failed to send progress workbook", "error", err)
		}
	}
}
