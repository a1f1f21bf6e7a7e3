// Package supabasetest provides an in-memory stand-in for the supabase REST
// endpoint, good enough for insert / select / order / limit round trips.
package supabasetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

type failure struct {
	status int
	body   string
}

type Server struct {
	*httptest.Server
	Key string

	mu              sync.Mutex
	tables          map[string][]map[string]any
	baseTime        time.Time
	seq             int
	failure         *failure
	emptyInsertEcho bool
	requests        int
}

func NewServer(key string) *Server {
	s := &Server{
		Key:      key,
		tables:   make(map[string][]map[string]any),
		baseTime: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// FailWith makes every following request fail with the given status/body.
func (s *Server) FailWith(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = &failure{status: status, body: body}
}

func (s *Server) ClearFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = nil
}

// EchoNothingOnInsert makes inserts succeed without returning the stored rows.
func (s *Server) EchoNothingOnInsert(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emptyInsertEcho = v
}

func (s *Server) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]map[string]any, len(s.tables[table]))
	copy(rows, s.tables[table])
	return rows
}

func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	if s.failure != nil {
		w.WriteHeader(s.failure.status)
		_, _ = w.Write([]byte(s.failure.body))
		return
	}

	if r.Header.Get("apikey") != s.Key || r.Header.Get("Authorization") != "Bearer "+s.Key {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"message": "Invalid API key",
			"hint":    "Double check your Supabase `anon` or `service_role` API key.",
		})
		return
	}

	table, ok := strings.CutPrefix(r.URL.Path, "/rest/v1/")
	if !ok || table == "" || strings.Contains(table, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handleInsert(w, r, table)
	case http.MethodGet:
		s.handleSelect(w, r, table)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
	}
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request, table string) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "PGRST102", "message": "Empty or invalid json"})
		return
	}

	var rows []map[string]any
	if err := json.Unmarshal(raw, &rows); err != nil {
		var row map[string]any
		if err := json.Unmarshal(raw, &row); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"code": "PGRST102", "message": "Empty or invalid json"})
			return
		}
		rows = []map[string]any{row}
	}

	inserted := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		stored := make(map[string]any, len(row)+2)
		for k, v := range row {
			stored[k] = v
		}
		s.seq++
		stored["id"] = uuid.NewString()
		// strictly increasing, so ordering by created_at is deterministic
		stored["created_at"] = s.baseTime.Add(time.Duration(s.seq) * time.Millisecond).Format(timestampLayout)
		s.tables[table] = append(s.tables[table], stored)
		inserted = append(inserted, stored)
	}

	if s.emptyInsertEcho || !strings.Contains(r.Header.Get("Prefer"), "return=representation") {
		writeJSON(w, http.StatusCreated, []map[string]any{})
		return
	}
	writeJSON(w, http.StatusCreated, inserted)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, table string) {
	query := r.URL.Query()

	rows := make([]map[string]any, len(s.tables[table]))
	copy(rows, s.tables[table])

	if order := query.Get("order"); order != "" {
		// column.direction[.nullsfirst|.nullslast]
		column, direction, _ := strings.Cut(order, ".")
		desc := strings.HasPrefix(direction, "desc")
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := fmt.Sprint(rows[i][column]), fmt.Sprint(rows[j][column])
			if desc {
				return a > b
			}
			return a < b
		})
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"code": "PGRST103", "message": "invalid limit"})
			return
		}
		if limit < len(rows) {
			rows = rows[:limit]
		}
	}

	if sel := query.Get("select"); sel != "" && sel != "*" {
		columns := strings.Split(sel, ",")
		projected := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			p := make(map[string]any, len(columns))
			for _, c := range columns {
				p[c] = row[c]
			}
			projected = append(projected, p)
		}
		rows = projected
	}

	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
