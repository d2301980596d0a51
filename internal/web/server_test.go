package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/conorfennell/studyhub/internal/cardstore"
	"github.com/conorfennell/studyhub/internal/config"
	"github.com/conorfennell/studyhub/internal/domain"
	"github.com/conorfennell/studyhub/internal/export"
	"github.com/conorfennell/studyhub/internal/ledger"
	"github.com/conorfennell/studyhub/internal/session"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	server  *Server
	ledger  *ledger.Ledger
	session *session.Controller
}

func newFixture(t *testing.T, ledgerPath string, auth config.Auth) *fixture {
	t.Helper()
	store := cardstore.New([]domain.Flashcard{
		{ID: 1, Category: domain.Physics, Question: "What is F?", Answer: "mass times acceleration", Difficulty: domain.Easy, HighYield: true},
		{ID: 2, Category: domain.Physics, Question: "What is p?", Answer: "mv", Difficulty: domain.Medium},
		{ID: 3, Category: domain.Chem, Question: "What is pH?", Answer: "-log[H+]", Difficulty: domain.Easy},
	}, nil)

	if ledgerPath == "" {
		ledgerPath = filepath.Join(t.TempDir(), "progress.json")
	}
	l, err := ledger.Open(ledgerPath, ledger.WithLogger(discard))
	if err != nil {
		t.Fatalf("ledger.Open() returned an unexpected error: %v", err)
	}
	sc := session.New(store, l, discard)
	sc.Start(session.Options{})

	s, err := NewServer(store, l, sc, Options{Auth: auth, StatsWindow: 10, Logger: discard})
	if err != nil {
		t.Fatalf("NewServer() returned an unexpected error: %v", err)
	}
	return &fixture{server: s, ledger: l, session: sc}
}

func (f *fixture) do(method, target string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

var (
	cardIDField = regexp.MustCompile(`name="card_id" value="(\d+)"`)
	turnField   = regexp.MustCompile(`name="turn" value="(\d+)"`)
)

// answerForm renders the answer view and returns the outcome form it shows.
func (f *fixture) answerForm(t *testing.T, correct bool) url.Values {
	t.Helper()
	body := f.do(http.MethodGet, "/study/answer", nil).Body.String()
	id := cardIDField.FindStringSubmatch(body)
	turn := turnField.FindStringSubmatch(body)
	if id == nil || turn == nil {
		t.Fatalf("Expected an outcome form on the answer view, but got:\n%s", body)
	}
	return url.Values{"card_id": {id[1]}, "turn": {turn[1]}, "correct": {strconv.FormatBool(correct)}}
}

func TestLoginGate(t *testing.T) {
	f := newFixture(t, "", config.Auth{Email: "me@example.com", AccessCode: "secret"})

	rec := f.do(http.MethodGet, "/study", nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Fatalf("Expected a redirect to /login, but got %d %s", rec.Code, rec.Header().Get("Location"))
	}

	rec = f.do(http.MethodPost, "/login", url.Values{"email": {"me@example.com"}, "access_code": {"wrong"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for bad credentials, but got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid credentials") {
		t.Error("Expected the login page to show an error message")
	}

	rec = f.do(http.MethodPost, "/login", url.Values{"email": {"me@example.com"}, "access_code": {"secret"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected a redirect after login, but got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != authCookie {
		t.Fatalf("Expected the auth cookie to be set, but got %v", cookies)
	}

	rec = f.do(http.MethodGet, "/study", nil, cookies[0])
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected the study page after login, but got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "What is F?") {
		t.Error("Expected the first card on the study page")
	}
}

func TestNoGateWhenAuthDisabled(t *testing.T) {
	f := newFixture(t, "", config.Auth{})
	if rec := f.do(http.MethodGet, "/progress", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected the progress page without login, but got %d", rec.Code)
	}
}

func TestStudyFlow(t *testing.T) {
	f := newFixture(t, "", config.Auth{})

	rec := f.do(http.MethodGet, "/study/answer", nil)
	if !strings.Contains(rec.Body.String(), "mass times acceleration") {
		t.Error("Expected the answer to be shown")
	}

	rec = f.do(http.MethodPost, "/study/outcome", f.answerForm(t, true))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected a redirect after recording, but got %d", rec.Code)
	}
	rec = f.do(http.MethodPost, "/study/outcome", f.answerForm(t, false))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected a redirect after recording, but got %d", rec.Code)
	}

	events := f.ledger.AllEvents()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, but got %d", len(events))
	}
	if events[0].CardID != 1 || !events[0].Correct || events[1].CardID != 2 || events[1].Correct {
		t.Errorf("Unexpected events %+v", events)
	}

	rec = f.do(http.MethodGet, "/study", nil)
	if !strings.Contains(rec.Body.String(), "What is pH?") {
		t.Error("Expected the cursor to have advanced to the third card")
	}

	badOutcome := f.answerForm(t, true)
	badOutcome.Set("correct", "maybe")
	if rec := f.do(http.MethodPost, "/study/outcome", badOutcome); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an invalid outcome, but got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/study/outcome", url.Values{"correct": {"true"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an outcome without a card, but got %d", rec.Code)
	}
	if f.ledger.Len() != 2 {
		t.Errorf("Expected rejected outcomes to record nothing, but got %d events", f.ledger.Len())
	}
}

func TestDuplicateOutcome(t *testing.T) {
	f := newFixture(t, "", config.Auth{})

	form := f.answerForm(t, true)
	if rec := f.do(http.MethodPost, "/study/outcome", form); rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected a redirect after recording, but got %d", rec.Code)
	}

	rec := f.do(http.MethodPost, "/study/outcome", form)
	if rec.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for a resubmitted answer, but got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "no longer on screen") {
		t.Error("Expected the user to be told the answer was not recorded")
	}

	events := f.ledger.AllEvents()
	if len(events) != 1 || events[0].CardID != 1 {
		t.Errorf("Expected 1 event for the one card shown, but got %+v", events)
	}
	if card, _ := f.session.Current(); card.ID != 2 {
		t.Errorf("Expected the cursor to stay on card 2, but got %d", card.ID)
	}
}

func TestNavigation(t *testing.T) {
	f := newFixture(t, "", config.Auth{})

	f.do(http.MethodPost, "/study/next", url.Values{})
	f.do(http.MethodPost, "/study/next", url.Values{})
	rec := f.do(http.MethodPost, "/study/back", url.Values{})
	if rec.Header().Get("Location") != "/study" {
		t.Errorf("Expected a redirect to /study, but got %q", rec.Header().Get("Location"))
	}
	if card, _ := f.session.Current(); card.ID != 2 {
		t.Errorf("Expected Previous to return to card 2, but got %d", card.ID)
	}

	f.do(http.MethodPost, "/study/random", url.Values{})
	if card, err := f.session.Current(); err != nil || card.ID < 1 || card.ID > 3 {
		t.Errorf("Expected Random to land on a session card, but got %+v, %v", card, err)
	}
}

func TestTimedPractice(t *testing.T) {
	f := newFixture(t, "", config.Auth{})

	rec := f.do(http.MethodPost, "/study/timed", url.Values{"category": {"physics"}, "cards": {"2"}, "seconds": {"60"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected a redirect, but got %d", rec.Code)
	}
	if opts := f.session.Options(); !opts.Timed() || opts.Category != domain.Physics {
		t.Fatalf("Expected a timed physics session, but got %+v", opts)
	}

	rec = f.do(http.MethodGet, "/study", nil)
	if rec.Header().Get("Refresh") == "" {
		t.Error("Expected the timed page to schedule a reload")
	}
	if !strings.Contains(rec.Body.String(), "60s") {
		t.Error("Expected the countdown on the timed page")
	}
	if strings.Contains(rec.Body.String(), `action="/study/back"`) {
		t.Error("Expected no Previous button in a timed session")
	}

	for i := 0; i < 2; i++ {
		if rec := f.do(http.MethodPost, "/study/outcome", f.answerForm(t, i == 0)); rec.Code != http.StatusSeeOther {
			t.Fatalf("Expected a redirect after answer %d, but got %d", i+1, rec.Code)
		}
	}
	rec = f.do(http.MethodGet, "/study", nil)
	if !strings.Contains(rec.Body.String(), "Timed session complete") {
		t.Error("Expected the completion summary after the last card")
	}
	if rec.Header().Get("Refresh") != "" {
		t.Error("Expected no reload once the session is complete")
	}
	if f.ledger.Len() != 2 {
		t.Errorf("Expected 2 events, but got %d", f.ledger.Len())
	}

	bad := []url.Values{
		{"cards": {"0"}, "seconds": {"60"}},
		{"cards": {"10"}, "seconds": {"5"}},
		{"cards": {"ten"}, "seconds": {"60"}},
		{"category": {"art"}, "cards": {"10"}, "seconds": {"60"}},
	}
	for _, form := range bad {
		if rec := f.do(http.MethodPost, "/study/timed", form); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %v, but got %d", form, rec.Code)
		}
	}
}

func TestStartSession(t *testing.T) {
	f := newFixture(t, "", config.Auth{})

	rec := f.do(http.MethodPost, "/study/start", url.Values{"category": {"chem"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("Expected a redirect, but got %d", rec.Code)
	}
	if card, err := f.session.Current(); err != nil || card.ID != 3 {
		t.Errorf("Expected the chem card, but got %+v, %v", card, err)
	}

	f.do(http.MethodPost, "/study/start", url.Values{"category": {"psych_soc"}})
	rec = f.do(http.MethodGet, "/study", nil)
	if !strings.Contains(rec.Body.String(), "No cards found in this category") {
		t.Error("Expected the empty-category warning")
	}

	if rec := f.do(http.MethodPost, "/study/start", url.Values{"category": {"art"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an unknown category, but got %d", rec.Code)
	}
}

func TestOutcomePersistenceFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	f := newFixture(t, filepath.Join(dir, "progress.json"), config.Auth{})
	if err := os.WriteFile(dir, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	rec := f.do(http.MethodPost, "/study/outcome", f.answerForm(t, true))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500 when the ledger cannot be written, but got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Your answer was not saved") {
		t.Error("Expected the user to be told the answer was not saved")
	}
	if card, _ := f.session.Current(); card.ID != 1 {
		t.Errorf("Expected the cursor to stay on card 1, but got %d", card.ID)
	}
}

func TestBookmark(t *testing.T) {
	f := newFixture(t, "", config.Auth{})
	f.do(http.MethodPost, "/study/bookmark", url.Values{})
	if !f.session.Bookmarked(1) {
		t.Error("Expected card 1 to be bookmarked")
	}
	rec := f.do(http.MethodPost, "/study/bookmark", url.Values{"answer": {"1"}})
	if rec.Header().Get("Location") != "/study/answer" {
		t.Errorf("Expected to return to the answer view, but got %s", rec.Header().Get("Location"))
	}
}

func TestAPI(t *testing.T) {
	f := newFixture(t, "", config.Auth{})
	f.do(http.MethodPost, "/study/outcome", f.answerForm(t, true))

	rec := f.do(http.MethodGet, "/api/daily", nil)
	var days []ledger.DailySummary
	if err := json.NewDecoder(rec.Body).Decode(&days); err != nil {
		t.Fatalf("Failed to decode /api/daily: %v", err)
	}
	if len(days) != 1 || days[0].Attempts != 1 || days[0].Accuracy != 1 {
		t.Errorf("Unexpected daily summaries %+v", days)
	}

	rec = f.do(http.MethodGet, "/api/categories", nil)
	var cats []map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&cats); err != nil {
		t.Fatalf("Failed to decode /api/categories: %v", err)
	}
	if len(cats) != len(domain.Categories) {
		t.Fatalf("Expected %d categories, but got %d", len(domain.Categories), len(cats))
	}
	if cats[2]["category"] != "physics" || cats[2]["coverage"] != 0.5 {
		t.Errorf("Expected physics coverage 0.5, but got %v", cats[2])
	}

	rec = f.do(http.MethodGet, "/api/overview", nil)
	var overview map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&overview); err != nil {
		t.Fatalf("Failed to decode /api/overview: %v", err)
	}
	if overview["attempts"] != 1.0 || overview["window"] != 10.0 || overview["running_accuracy"] != 1.0 {
		t.Errorf("Unexpected overview %v", overview)
	}
}

func TestProgressPageAndExport(t *testing.T) {
	f := newFixture(t, "", config.Auth{})
	f.do(http.MethodPost, "/study/outcome", f.answerForm(t, false))

	rec := f.do(http.MethodGet, "/progress", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Study history") {
		t.Errorf("Expected the progress page, but got %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/export/progress.xlsx", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected the export to succeed, but got %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "progress.xlsx") {
		t.Error("Expected an attachment named progress.xlsx")
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Error("Expected a zip-based XLSX body")
	}
}

func TestExportFailure(t *testing.T) {
	f := newFixture(t, "", config.Auth{})
	f.server.writeProgress = func(io.Writer, export.Progress) error { return errors.New("disk full") }

	rec := f.do(http.MethodGet, "/export/progress.xlsx", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500 when the workbook cannot be built, but got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "" {
		t.Errorf("Expected no attachment header on failure, but got %q", cd)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Expected a plain-text error, but got Content-Type %q", ct)
	}
}

func TestRootRedirectsAndStatic(t *testing.T) {
	f := newFixture(t, "", config.Auth{})
	if rec := f.do(http.MethodGet, "/", nil); rec.Header().Get("Location") != "/study" {
		t.Errorf("Expected / to redirect to /study, got %q", rec.Header().Get("Location"))
	}
	if rec := f.do(http.MethodGet, "/static/style.css", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected the stylesheet to be served, but got %d", rec.Code)
	}
}
