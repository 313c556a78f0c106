package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"turnstile/internal/api"
	"turnstile/internal/logging"
	"turnstile/internal/schedule"
	"turnstile/internal/services"
	"turnstile/internal/store"
	"turnstile/internal/vision"
)

type unknownListResponse struct {
	Success bool `json:"success"`
	api.UnknownListResponse
	Count int `json:"count"`
}

type unknownEntryResponse struct {
	Success bool             `json:"success"`
	Entry   api.UnknownEntry `json:"entry"`
}

type unknownStatsResponse struct {
	Success bool             `json:"success"`
	Stats   api.UnknownStats `json:"stats"`
}

func (s *Server) handleUnknownList(w http.ResponseWriter, r *http.Request) {
	query := store.UnknownQuery{}
	params := r.URL.Query()

	if date := params.Get("date"); date != "" {
		if _, err := time.Parse(schedule.DateLayout, date); err != nil {
			s.writeError(w, r, services.Wrap(services.ErrValidation, "web", "list unknown entries",
				fmt.Sprintf("invalid date %q, want YYYY-MM-DD", date), nil))
			return
		}
		query.Date = date
	}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, r, services.Wrap(services.ErrValidation, "web", "list unknown entries",
				fmt.Sprintf("invalid limit %q", raw), nil))
			return
		}
		query.Limit = limit
	}
	onlyProcessed := false
	if raw := params.Get("processed"); raw != "" {
		processed, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, r, services.Wrap(services.ErrValidation, "web", "list unknown entries",
				fmt.Sprintf("invalid processed flag %q", raw), nil))
			return
		}
		if processed {
			onlyProcessed = true
		} else {
			query.OnlyUnprocessed = true
		}
	}

	entries, err := s.store.UnknownEntries(r.Context(), query)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if onlyProcessed {
		kept := entries[:0]
		for _, entry := range entries {
			if entry.Processed {
				kept = append(kept, entry)
			}
		}
		entries = kept
	}

	converted := api.FromUnknownEntries(entries)
	writeJSON(w, http.StatusOK, unknownListResponse{
		Success:             true,
		UnknownListResponse: api.UnknownListResponse{Entries: converted},
		Count:               len(converted),
	})
}

func (s *Server) handleUnknownGet(w http.ResponseWriter, r *http.Request) {
	id, err := entryIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.store.UnknownEntryByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entry == nil {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "web", "get unknown entry",
			fmt.Sprintf("entry %d not found", id), nil))
		return
	}
	writeJSON(w, http.StatusOK, unknownEntryResponse{Success: true, Entry: api.FromUnknownEntry(*entry)})
}

// handleUnknownImage serves the stored capture as JPEG. An optional max
// parameter bounds the longer side for thumbnail use.
func (s *Server) handleUnknownImage(w http.ResponseWriter, r *http.Request) {
	id, err := entryIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	image, err := s.store.UnknownEntryImage(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(image) == 0 {
		s.writeError(w, r, services.Wrap(services.ErrNotFound, "web", "unknown entry image",
			fmt.Sprintf("entry %d has no image", id), nil))
		return
	}

	if raw := r.URL.Query().Get("max"); raw != "" {
		maxSize, err := strconv.Atoi(raw)
		if err != nil || maxSize <= 0 {
			s.writeError(w, r, services.Wrap(services.ErrValidation, "web", "unknown entry image",
				fmt.Sprintf("invalid max %q", raw), nil))
			return
		}
		image, err = s.thumbnail(image, maxSize)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(image)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}

func (s *Server) handleUnknownMarkProcessed(w http.ResponseWriter, r *http.Request) {
	id, err := entryIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.MarkUnknownProcessed(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("unknown entry marked processed", logging.Int64(logging.FieldEntryID, id))
	writeJSON(w, http.StatusOK, struct {
		Success   bool  `json:"success"`
		ID        int64 `json:"id"`
		Processed bool  `json:"processed"`
	}{Success: true, ID: id, Processed: true})
}

func (s *Server) handleUnknownRecheck(w http.ResponseWriter, r *http.Request) {
	id, err := entryIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := api.RecheckStaff(r.Context(), api.RecheckStaffRequest{
		Config:  s.cfg,
		Store:   s.store,
		Faces:   s.faces,
		Logger:  s.logger,
		EntryID: id,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUnknownDelete(w http.ResponseWriter, r *http.Request) {
	id, err := entryIDParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteUnknownEntry(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("unknown entry deleted", logging.Int64(logging.FieldEntryID, id))
	writeJSON(w, http.StatusOK, struct {
		Success bool  `json:"success"`
		ID      int64 `json:"id"`
	}{Success: true, ID: id})
}

func (s *Server) handleUnknownStats(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.store.UnknownStatsForDate(r.Context(), date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unknownStatsResponse{Success: true, Stats: api.FromUnknownStats(stats)})
}

func (s *Server) thumbnail(image []byte, maxSize int) ([]byte, error) {
	decoded, err := vision.Decode(image)
	if err != nil {
		return nil, services.Wrap(services.ErrCorruptData, "web", "unknown entry image",
			"decode stored image", err)
	}
	quality := s.cfg.Engine.CaptureJPEGQuality
	if quality <= 0 {
		quality = 85
	}
	resized, err := vision.EncodeJPEG(vision.ResizeToFit(decoded, maxSize), quality)
	if err != nil {
		return nil, services.Wrap(services.ErrCorruptData, "web", "unknown entry image",
			"encode thumbnail", err)
	}
	return resized, nil
}

func entryIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, services.Wrap(services.ErrValidation, "web", "parse entry id",
			fmt.Sprintf("invalid entry id %q", raw), nil)
	}
	return id, nil
}
