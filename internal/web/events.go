package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"turnstile/internal/api"
	"turnstile/internal/logging"
)

type eventsResponse struct {
	Success bool `json:"success"`
	api.LogStreamResponse
}

// handleEvents serves the daemon's structured log stream. Clients poll with
// since=<cursor>; follow long-polls until a record arrives or the request
// times out. Cursors that have scrolled out of the in-memory buffer are
// replayed from the on-disk archive.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil && s.archive == nil {
		writeJSON(w, http.StatusOK, eventsResponse{
			Success:           true,
			LogStreamResponse: api.LogStreamResponse{Events: api.FromLogEvents(nil)},
		})
		return
	}

	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")
	tail := query.Get("tail") == "1" || strings.EqualFold(query.Get("tail"), "true")
	component := strings.TrimSpace(query.Get("component"))
	track := strings.TrimSpace(query.Get("track"))

	var (
		events []logging.LogEvent
		next   uint64
	)

	if s.archive != nil && since > 0 {
		firstSeq := uint64(0)
		if s.stream != nil {
			firstSeq = s.stream.FirstSequence()
		}
		if s.stream == nil || (firstSeq > 0 && since < firstSeq) {
			archived, cursor, err := s.archive.ReadSince(since, limit)
			if err != nil {
				s.logger.Warn("event archive read failed", logging.Error(err))
			} else if len(archived) > 0 {
				events = archived
				next = cursor
			}
		}
	}

	switch {
	case tail && since == 0 && !follow && s.stream != nil:
		events, next = s.stream.Tail(limit)
	case len(events) == 0 && s.stream != nil:
		raw, cursor, err := s.stream.Fetch(r.Context(), since, limit, follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.writeError(w, r, err)
			return
		}
		events = raw
		next = cursor
	}

	filtered := make([]logging.LogEvent, 0, len(events))
	for _, evt := range events {
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		if track != "" && track != evt.TrackID {
			continue
		}
		filtered = append(filtered, evt)
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Success: true,
		LogStreamResponse: api.LogStreamResponse{
			Events: api.FromLogEvents(filtered),
			Next:   next,
		},
	})
}
