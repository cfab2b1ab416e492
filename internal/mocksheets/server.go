// Package mocksheets serves the subset of the Google Sheets v4 REST API that the
// scraper uses, backed by memory.
package mocksheets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
}

// Server holds spreadsheets keyed by id, each a set of tabs holding rows.
type Server struct {
	mu    sync.Mutex
	calls []Call
	books map[string]*book

	// failures queued per operation ("append", "clear", "get").
	failures map[string][]int
}

type book struct {
	title string
	order []string
	tabs  map[string][][]string
}

func New() *Server {
	return &Server{
		books:    make(map[string]*book),
		failures: make(map[string][]int),
	}
}

// CreateSpreadsheet registers a spreadsheet with the given tabs. With no tabs it gets
// a single "Sheet1".
func (s *Server) CreateSpreadsheet(id, title string, tabs ...string) {
	if len(tabs) == 0 {
		tabs = []string{"Sheet1"}
	}
	b := &book{title: title, tabs: make(map[string][][]string)}
	for _, t := range tabs {
		b.order = append(b.order, t)
		b.tabs[t] = nil
	}
	s.mu.Lock()
	s.books[id] = b
	s.mu.Unlock()
}

// FailNext makes the next len(codes) requests for op answer with those status codes.
func (s *Server) FailNext(op string, codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], codes...)
}

// Rows returns a snapshot of a tab's rows.
func (s *Server) Rows(id, tab string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return nil
	}
	src := b.tabs[tab]
	out := make([][]string, len(src))
	for i, r := range src {
		out[i] = append([]string(nil), r...)
	}
	return out
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v4/spreadsheets/", s.handleSpreadsheets)
	return mux
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
}

func (s *Server) injectedFailure(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.failures[op]
	if len(q) == 0 {
		return 0
	}
	s.failures[op] = q[1:]
	return q[0]
}

func (s *Server) handleSpreadsheets(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)

	// /v4/spreadsheets/{id}
	// /v4/spreadsheets/{id}/values/{range}:append
	// /v4/spreadsheets/{id}/values/{range}:clear
	rest := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/")
	id, valuesPath, hasValues := strings.Cut(rest, "/values/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	if !hasValues {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.fail(w, "get") {
			return
		}
		s.handleGet(w, id)
		return
	}

	i := strings.LastIndex(valuesPath, ":")
	if i < 0 {
		http.NotFound(w, r)
		return
	}
	rng, verb := valuesPath[:i], valuesPath[i+1:]
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch verb {
	case "append":
		if s.fail(w, "append") {
			return
		}
		s.handleAppend(w, r, id, rng)
	case "clear":
		if s.fail(w, "clear") {
			return
		}
		s.handleClear(w, id, rng)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) fail(w http.ResponseWriter, op string) bool {
	code := s.injectedFailure(op)
	if code == 0 {
		return false
	}
	writeError(w, code, fmt.Sprintf("injected %s failure", op))
	return true
}

type sheetProps struct {
	Title string `json:"title"`
}

type sheetEntry struct {
	Properties sheetProps `json:"properties"`
}

type spreadsheetResp struct {
	SpreadsheetID string       `json:"spreadsheetId"`
	Properties    sheetProps   `json:"properties"`
	Sheets        []sheetEntry `json:"sheets"`
}

func (s *Server) handleGet(w http.ResponseWriter, id string) {
	s.mu.Lock()
	b, ok := s.books[id]
	var resp spreadsheetResp
	if ok {
		resp = spreadsheetResp{SpreadsheetID: id, Properties: sheetProps{Title: b.title}}
		for _, t := range b.order {
			resp.Sheets = append(resp.Sheets, sheetEntry{Properties: sheetProps{Title: t}})
		}
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	writeJSON(w, resp)
}

type valueRange struct {
	Range          string  `json:"range"`
	MajorDimension string  `json:"majorDimension"`
	Values         [][]any `json:"values"`
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request, id, rng string) {
	if got := r.URL.Query().Get("valueInputOption"); got == "" {
		writeError(w, http.StatusBadRequest, "valueInputOption is required")
		return
	}
	var req valueRange
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	tab := tabName(rng)

	s.mu.Lock()
	b, ok := s.books[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Requested entity was not found.")
		return
	}
	if _, ok := b.tabs[tab]; !ok {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "Unable to parse range: "+rng)
		return
	}
	for _, row := range req.Values {
		out := make([]string, len(row))
		for i, v := range row {
			out[i] = fmt.Sprint(v)
		}
		b.tabs[tab] = append(b.tabs[tab], out)
	}
	total := len(b.tabs[tab])
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"spreadsheetId": id,
		"tableRange":    rng,
		"updates": map[string]any{
			"spreadsheetId": id,
			"updatedRows":   len(req.Values),
			"updatedRange":  fmt.Sprintf("%s!A%d", tab, total),
		},
	})
}

func (s *Server) handleClear(w http.ResponseWriter, id, rng string) {
	tab := tabName(rng)
	s.mu.Lock()
	b, ok := s.books[id]
	if ok {
		if _, exists := b.tabs[tab]; exists {
			b.tabs[tab] = nil
		} else {
			ok = false
		}
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Unable to parse range: "+rng)
		return
	}
	writeJSON(w, map[string]any{"spreadsheetId": id, "clearedRange": rng})
}

// tabName extracts the sheet title from an A1 range such as 'My Tab'!A1.
func tabName(rng string) string {
	t, _, _ := strings.Cut(rng, "!")
	if len(t) >= 2 && strings.HasPrefix(t, "'") && strings.HasSuffix(t, "'") {
		t = strings.ReplaceAll(t[1:len(t)-1], "''", "'")
	}
	return t
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg, "status": http.StatusText(code)},
	})
}
