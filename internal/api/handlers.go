package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/maildex/maildex/internal/search"
)

// searchResponse is the wire shape for /search results.
type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
	Total   int            `json:"total"`
}

type searchResult struct {
	ID           string  `json:"id"`
	Subject      string  `json:"subject"`
	Snippet      string  `json:"snippet"`
	SenderName   string  `json:"sender_name"`
	SenderEmail  string  `json:"sender_email"`
	ReceivedOn   string  `json:"received_on"`
	Labels       string  `json:"labels"`
	HasUnread    bool    `json:"has_unread"`
	IsStarred    bool    `json:"is_starred"`
	TotalReplies int     `json:"total_replies"`
	Score        float64 `json:"score"`
}

type contactResult struct {
	Email            string `json:"email"`
	Name             string `json:"name"`
	InteractionCount int64  `json:"interaction_count"`
	LastSeen         string `json:"last_seen"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	limit := queryInt(r, "limit", search.DefaultLimit)

	results, err := s.core.Search(q, &search.Options{Limit: limit})
	if err != nil {
		s.logger.Error("search failed", "query", q, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	resp := searchResponse{Query: q, Results: make([]searchResult, 0, len(results)), Total: len(results)}
	for _, res := range results {
		t := res.Thread
		resp.Results = append(resp.Results, searchResult{
			ID:           t.ID,
			Subject:      t.Subject,
			Snippet:      t.Snippet,
			SenderName:   t.SenderName,
			SenderEmail:  t.SenderEmail,
			ReceivedOn:   t.ReceivedOn,
			Labels:       t.Labels,
			HasUnread:    t.HasUnread,
			IsStarred:    t.IsStarred,
			TotalReplies: t.TotalReplies,
			Score:        res.Score,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 10)

	contacts := s.core.SearchContacts(q, limit)
	out := make([]contactResult, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, contactResult{
			Email:            c.Email,
			Name:             c.Name,
			InteractionCount: c.InteractionCount,
			LastSeen:         c.LastSeen.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.core.GetStats()
	if err != nil {
		s.logger.Error("stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := s.core.TriggerSync(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}

func queryInt(r *http.Request, name string, fallback int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
