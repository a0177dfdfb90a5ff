package server

import (
	"net/http"
	"time"

	"github.com/desertthunder/clipsync/internal/services"
)

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req services.SyncRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.svc.Clipboard.Sync(r.Context(), Device(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	// Duplicates are not errors, so both outcomes answer 200 and Created tells them apart.
	writeJSON(w, http.StatusOK, result)
}

// handlePoll serves GET /clipboard/sync?since=&limit=&excludeDevice=&wait= where wait is in seconds.
func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	since, err := queryInt(r, "since", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	exclude, err := queryBool(r, "excludeDevice", true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	wait, err := queryInt(r, "wait", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.svc.Clipboard.Poll(r.Context(), Device(r.Context()), services.PollOptions{
		Since:       since,
		Limit:       int(limit),
		ExcludeSelf: exclude,
		Wait:        time.Duration(wait) * time.Second,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	since, err := queryInt(r, "since", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	items, err := s.svc.Clipboard.List(r.Context(), UserID(r.Context()), since, int(limit))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req services.CreateRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	item, err := s.svc.Clipboard.Create(r.Context(), UserID(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.svc.Clipboard.Get(r.Context(), UserID(r.Context()), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.Clipboard.Delete(r.Context(), UserID(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleClearItems(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Clipboard.Clear(r.Context(), UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deletedCount": n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Clipboard.Stats(UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
