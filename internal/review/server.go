// Package review exposes the clip records over a small JSON API for the
// review front-end: list, inspect, edit promotional text, approve, and
// trigger iteration. Rendering the UI itself is out of scope here.
package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clipforge/clipforge/internal/store"
	"github.com/clipforge/clipforge/internal/types"
	"github.com/clipforge/clipforge/internal/usecase"
)

type Server struct {
	uc          usecase.Usecase
	store       *store.Store
	episode     string
	sourceMedia string
	router      chi.Router
	port        int
}

func NewServer(uc usecase.Usecase, st *store.Store, episode, sourceMedia string, port int) *Server {
	s := &Server{
		uc:          uc,
		store:       st,
		episode:     episode,
		sourceMedia: sourceMedia,
		port:        port,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/clips", s.handleListClips)
		r.Get("/clips/{hook}", s.handleGetClip)
		r.Put("/clips/{hook}/tweet", s.handleSaveTweet)
		r.Post("/clips/{hook}/approve", s.handleApprove)
		r.Post("/clips/{hook}/iterate", s.handleIterate)
	})
	r.Get("/video/{hook}.mp4", s.handleVideo)
	r.Get("/video/{hook}.ass", s.handleSubtitles)

	s.router = r
	return s
}

// Router exposes the handler tree, used by tests and embedding callers.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("starting review API", "addr", addr, "episode", s.episode)
	return http.ListenAndServe(addr, s.router)
}

type clipSummary struct {
	Hook        string `json:"hook"`
	Status      string `json:"status"`
	DurationMS  int64  `json:"duration_ms"`
	NumSegments int    `json:"num_segments"`
}

func (s *Server) handleListClips(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.List(s.episode)
	if err != nil {
		s.writeError(w, err)
		return
	}

	draft := []clipSummary{}
	approved := []clipSummary{}
	for _, rec := range recs {
		sum := clipSummary{
			Hook:        rec.Hook,
			Status:      rec.Status,
			DurationMS:  rec.TotalDurationMS(),
			NumSegments: len(rec.SegmentTranscripts),
		}
		if rec.Status == types.StatusApproved {
			approved = append(approved, sum)
		} else {
			draft = append(draft, sum)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"episode":  s.episode,
		"draft":    draft,
		"approved": approved,
	})
}

func (s *Server) handleGetClip(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Load(s.episode, chi.URLParam(r, "hook"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSaveTweet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TweetText string `json:"tweet_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	rec, err := s.uc.SaveTweet(s.episode, chi.URLParam(r, "hook"), body.TweetText)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	rec, err := s.uc.Approve(s.episode, chi.URLParam(r, "hook"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleIterate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Feedback == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "feedback is required"})
		return
	}

	rec, err := s.uc.Iterate(r.Context(), usecase.IterateInput{
		Episode:     s.episode,
		Hook:        chi.URLParam(r, "hook"),
		Feedback:    body.Feedback,
		SourceMedia: s.sourceMedia,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.store.VideoPath(s.episode, chi.URLParam(r, "hook")))
}

func (s *Server) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.store.SubtitlePath(s.episode, chi.URLParam(r, "hook")))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "clip not found"})
	case errors.Is(err, store.ErrLocked):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "clip is locked by another process"})
	default:
		slog.Error("review API error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
