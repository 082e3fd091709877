package remotetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// reserved query parameters that are not column filters.
var reserved = map[string]bool{"select": true, "order": true, "limit": true, "on_conflict": true}

// ownedTables require the row id to match the caller's account on write.
var ownedTables = map[string]bool{"profiles": true}

func (s *Server) serveRows(w http.ResponseWriter, r *http.Request, table string) {
	subject, ok := s.subject(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "PGRST301", "JWT expired")
		return
	}
	q := r.URL.Query()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		rows := s.match(table, q)
		sortRows(rows, q["order"])
		if n, err := strconv.Atoi(q.Get("limit")); err == nil && n >= 0 && n < len(rows) {
			rows = rows[:n]
		}
		writeJSON(w, http.StatusOK, project(rows, q.Get("select")))

	case http.MethodPost:
		if subject == "" {
			writeError(w, http.StatusUnauthorized, "42501", "new row violates row-level security policy")
			return
		}
		incoming, err := decodeRows(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "PGRST102", err.Error())
			return
		}
		merge := strings.Contains(r.Header.Get("Prefer"), "resolution=merge-duplicates")
		conflict := q.Get("on_conflict")
		if conflict == "" {
			conflict = "id"
		}

		var written []map[string]any
		for _, row := range incoming {
			if ownedTables[table] && fmt.Sprint(row["id"]) != subject {
				writeError(w, http.StatusForbidden, "42501", "new row violates row-level security policy")
				return
			}
			written = append(written, s.put(table, row, conflict, merge))
		}
		if s.UpsertReturnsEmpty.Load() {
			written = nil
		}
		s.respondWrite(w, r, http.StatusCreated, written)

	case http.MethodPatch:
		if subject == "" {
			writeError(w, http.StatusUnauthorized, "42501", "permission denied")
			return
		}
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "PGRST102", err.Error())
			return
		}
		var written []map[string]any
		for _, row := range s.tables[table] {
			if !matches(row, q) {
				continue
			}
			if ownedTables[table] && fmt.Sprint(row["id"]) != subject {
				continue
			}
			for k, v := range patch {
				row[k] = v
			}
			written = append(written, copyRow(row))
		}
		s.respondWrite(w, r, http.StatusOK, written)

	case http.MethodDelete:
		if subject == "" {
			writeError(w, http.StatusUnauthorized, "42501", "permission denied")
			return
		}
		kept := s.tables[table][:0]
		for _, row := range s.tables[table] {
			if !matches(row, q) {
				kept = append(kept, row)
			}
		}
		s.tables[table] = kept
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "PGRST000", "method not allowed")
	}
}

func (s *Server) respondWrite(w http.ResponseWriter, r *http.Request, status int, rows []map[string]any) {
	if !strings.Contains(r.Header.Get("Prefer"), "return=representation") {
		w.WriteHeader(status)
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	writeJSON(w, status, project(rows, r.URL.Query().Get("select")))
}

// put inserts row, or merges it into the row sharing its conflict columns.
func (s *Server) put(table string, row map[string]any, conflict string, merge bool) map[string]any {
	if merge {
		cols := strings.Split(conflict, ",")
		for _, existing := range s.tables[table] {
			same := true
			for _, c := range cols {
				if fmt.Sprint(existing[c]) != fmt.Sprint(row[c]) {
					same = false
					break
				}
			}
			if same {
				for k, v := range row {
					existing[k] = v
				}
				return copyRow(existing)
			}
		}
	}
	row = normalizeRow(row)
	s.tables[table] = append(s.tables[table], row)
	return copyRow(row)
}

func (s *Server) match(table string, q url.Values) []map[string]any {
	var out []map[string]any
	for _, row := range s.tables[table] {
		if matches(row, q) {
			out = append(out, copyRow(row))
		}
	}
	return out
}

func matches(row map[string]any, q url.Values) bool {
	for col, filters := range q {
		if reserved[col] {
			continue
		}
		for _, f := range filters {
			want, ok := strings.CutPrefix(f, "eq.")
			if !ok {
				continue
			}
			if fmt.Sprint(row[col]) != want {
				return false
			}
		}
	}
	return true
}

func sortRows(rows []map[string]any, orders []string) {
	for i := len(orders) - 1; i >= 0; i-- {
		col, dir, _ := strings.Cut(orders[i], ".")
		desc := dir == "desc"
		sort.SliceStable(rows, func(a, b int) bool {
			if desc {
				return less(rows[b][col], rows[a][col])
			}
			return less(rows[a][col], rows[b][col])
		})
	}
}

func less(a, b any) bool {
	af, aok := number(a)
	bf, bok := number(b)
	if aok && bok {
		return af < bf
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// project keeps the selected columns. Embedded relations are kept as
// seeded.
func project(rows []map[string]any, sel string) []map[string]any {
	cols := splitSelect(sel)
	if len(cols) == 0 {
		return rows
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		p := make(map[string]any, len(cols))
		for _, c := range cols {
			if c == "*" {
				for k, v := range row {
					p[k] = v
				}
				continue
			}
			if v, ok := row[c]; ok {
				p[c] = v
			}
		}
		out = append(out, p)
	}
	return out
}

// splitSelect returns the top-level column or relation names of a select
// list. An alias takes precedence over the relation name.
func splitSelect(sel string) []string {
	var cols []string
	depth, start := 0, 0
	flush := func(end int) {
		item := strings.TrimSpace(sel[start:end])
		if item == "" {
			return
		}
		if i := strings.Index(item, "("); i >= 0 {
			item = item[:i]
		}
		if alias, _, ok := strings.Cut(item, ":"); ok {
			item = alias
		}
		item, _, _ = strings.Cut(item, "!")
		cols = append(cols, strings.TrimSpace(item))
	}
	for i, ch := range sel {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(sel))
	return cols
}

func decodeRows(r *http.Request) ([]map[string]any, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding body: %w", err)
	}
	if len(raw) > 0 && raw[0] == '[' {
		var rows []map[string]any
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decoding rows: %w", err)
		}
		return rows, nil
	}
	var row map[string]any
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("decoding row: %w", err)
	}
	return []map[string]any{row}, nil
}

// normalizeRow fills the columns the database would default.
func normalizeRow(row map[string]any) map[string]any {
	row = copyRow(row)
	if _, ok := row["id"]; !ok {
		row["id"] = uuid.NewString()
	}
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = time.Now().UTC().Format(time.RFC3339)
	}
	return row
}

func copyRow(row map[string]any) map[string]any {
	cp := make(map[string]any, len(row))
	for k, v := range row {
		cp[k] = v
	}
	return cp
}
