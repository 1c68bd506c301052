/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/smartlyhq/smartly-bridge/pkg/acl"
	"github.com/smartlyhq/smartly-bridge/pkg/history"
	"github.com/smartlyhq/smartly-bridge/pkg/hub"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

const (
	historyDefaultWindow = 24 * time.Hour
	historyMaxSpan       = 30 * 24 * time.Hour
	historyDefaultLimit  = 1000
	defaultPageSize      = 100
	maxPageSize          = 1000
	maxBatchEntities     = 50
)

var validPeriods = map[string]bool{
	"5minute": true,
	"hour":    true,
	"day":     true,
	"week":    true,
	"month":   true,
}

type timeRange struct {
	start time.Time
	end   time.Time
}

// parseTimeRange applies the default window and the span constraints.
func parseTimeRange(startRaw, endRaw string) (timeRange, string) {
	now := time.Now().UTC()

	end := now

	if endRaw != "" {
		parsed, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return timeRange{}, models.ErrInvalidTimeRange
		}

		end = parsed
	}

	start := end.Add(-historyDefaultWindow)

	if startRaw != "" {
		parsed, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return timeRange{}, models.ErrInvalidTimeRange
		}

		start = parsed
	}

	if !end.After(start) || end.Sub(start) > historyMaxSpan {
		return timeRange{}, models.ErrInvalidTimeRange
	}

	return timeRange{start: start, end: end}, ""
}

// queryRecorder runs one recorder query through the bounded gate and
// returns the states newest-first by (last_updated, last_changed).
func (s *Server) queryRecorder(ctx context.Context, entityID string, tr timeRange, significantOnly bool) ([]*hub.State, error) {
	select {
	case s.historyGate <- struct{}{}:
		defer func() { <-s.historyGate }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	states, err := s.hub.SignificantStates(ctx, entityID, tr.start, tr.end, significantOnly)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(states, func(i, j int) bool {
		if !states[i].LastUpdated.Equal(states[j].LastUpdated) {
			return states[i].LastUpdated.After(states[j].LastUpdated)
		}

		return states[i].LastChanged.After(states[j].LastChanged)
	})

	return states, nil
}

// afterCursor keeps only entries strictly after the cursor key in
// newest-first order, i.e. strictly older than the cursor's timestamps.
func afterCursor(states []*hub.State, c history.Cursor) ([]*hub.State, bool) {
	ts, err := time.Parse(time.RFC3339Nano, c.Timestamp)
	if err != nil {
		return nil, false
	}

	lc, err := time.Parse(time.RFC3339Nano, c.LastChanged)
	if err != nil {
		return nil, false
	}

	var out []*hub.State

	for _, s := range states {
		if s.LastUpdated.After(ts) {
			continue
		}

		if s.LastUpdated.Equal(ts) && !s.LastChanged.Before(lc) {
			continue
		}

		out = append(out, s)
	}

	return out, true
}

func jsonType(v interface{}) string {
	switch v.(type) {
	case float64, int:
		return "number"
	default:
		return "string"
	}
}

// formatEntries applies the attribute-economy rule: the first entry
// carries attributes, later ones only when the state value changed type.
func formatEntries(states []*hub.State, places int) []history.Entry {
	entries := make([]history.Entry, 0, len(states))

	prevType := ""

	for i, st := range states {
		entry := history.FormatEntry(st, places, false)

		entryType := jsonType(entry.State)
		if i == 0 || entryType != prevType {
			entry = history.FormatEntry(st, places, true)
		}

		prevType = entryType
		entries = append(entries, entry)
	}

	return entries
}

// handleHistory implements GET /api/smartly/history/{entity_id}.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, actx *authContext) {
	entityID := mux.Vars(r)["entity_id"]

	if _, ok := s.hub.Entity(entityID); !ok {
		writeError(w, models.ErrEntityNotFound, http.StatusNotFound)
		return
	}

	if !acl.EntityAllowed(s.hub, entityID) {
		s.aud.Deny(actx.ClientID, entityID, "history", models.ErrEntityNotAllowed, actx.SourceIP, nil)
		writeError(w, models.ErrEntityNotAllowed, http.StatusForbidden)

		return
	}

	query := r.URL.Query()

	tr, errKind := parseTimeRange(query.Get("start_time"), query.Get("end_time"))
	if errKind != "" {
		writeError(w, errKind, http.StatusBadRequest)
		return
	}

	var cursor *history.Cursor

	if raw := query.Get("cursor"); raw != "" {
		decoded, err := history.DecodeCursor(raw)
		if err != nil {
			writeError(w, models.ErrInvalidCursor, http.StatusBadRequest)
			return
		}

		cursor = &decoded
	}

	_, pageSizeSet := query["page_size"]
	usePagination := cursor != nil || pageSizeSet

	pageSize := defaultPageSize
	if pageSizeSet {
		if n, err := strconv.Atoi(query.Get("page_size")); err == nil {
			pageSize = clamp(n, 1, maxPageSize)
		}
	}

	significantOnly := query.Get("significant_changes_only") != "false"

	states, err := s.queryRecorder(r.Context(), entityID, tr, significantOnly)
	if err != nil {
		s.logger.Error().Err(err).Str("entity_id", entityID).Msg("history query failed")
		writeError(w, models.ErrHistoryQueryFailed, http.StatusInternalServerError)

		return
	}

	live, _ := s.hub.State(entityID)
	total := len(states)

	response := map[string]interface{}{
		"entity_id":  entityID,
		"start_time": tr.start.UTC().Format(time.RFC3339Nano),
		"end_time":   tr.end.UTC().Format(time.RFC3339Nano),
	}

	if usePagination {
		if cursor != nil {
			filtered, ok := afterCursor(states, *cursor)
			if !ok {
				writeError(w, models.ErrInvalidCursor, http.StatusBadRequest)
				return
			}

			states = filtered
		}

		hasMore := len(states) > pageSize
		if hasMore {
			states = states[:pageSize]
		}

		meta := history.BuildMetadata(entityID, acl.EntityDomain(entityID), states, live)
		entries := formatEntries(states, meta.Places())

		response["history"] = entries
		response["count"] = len(entries)
		response["page_size"] = pageSize
		response["has_more"] = hasMore
		response["metadata"] = meta

		if hasMore && len(entries) > 0 {
			last := entries[len(entries)-1]
			response["next_cursor"] = history.Cursor{Timestamp: last.LastUpdated, LastChanged: last.LastChanged}.Encode()
		}

		writeJSON(w, http.StatusOK, response)

		return
	}

	limit := historyDefaultLimit

	if tr.end.Sub(tr.start) <= historyDefaultWindow {
		limit = total
	} else if raw := query.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = clamp(n, 1, historyDefaultLimit)
		}
	}

	truncated := total > limit
	if truncated {
		states = states[:limit]
	}

	meta := history.BuildMetadata(entityID, acl.EntityDomain(entityID), states, live)
	entries := formatEntries(states, meta.Places())
	entries = history.EnsureTimeBounds(entries, tr.start, tr.end, meta.IsNumeric)

	response["history"] = entries
	response["count"] = len(entries)
	response["truncated"] = truncated
	response["metadata"] = meta

	writeJSON(w, http.StatusOK, response)
}

type batchRequest struct {
	EntityIDs              []string `json:"entity_ids"`
	StartTime              string   `json:"start_time"`
	EndTime                string   `json:"end_time"`
	Limit                  int      `json:"limit"`
	SignificantChangesOnly *bool    `json:"significant_changes_only"`
}

// handleHistoryBatch implements POST /api/smartly/history/batch. Denied
// entities are partitioned out instead of failing the whole call.
func (s *Server) handleHistoryBatch(w http.ResponseWriter, r *http.Request, actx *authContext) {
	var req batchRequest

	if err := json.Unmarshal(actx.Body, &req); err != nil {
		writeError(w, models.ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	if len(req.EntityIDs) == 0 {
		writeError(w, models.ErrMissingRequiredFields, http.StatusBadRequest)
		return
	}

	if len(req.EntityIDs) > maxBatchEntities {
		writeError(w, models.ErrTooManyEntities, http.StatusBadRequest)
		return
	}

	tr, errKind := parseTimeRange(req.StartTime, req.EndTime)
	if errKind != "" {
		writeError(w, errKind, http.StatusBadRequest)
		return
	}

	significantOnly := req.SignificantChangesOnly == nil || *req.SignificantChangesOnly

	limit := historyDefaultLimit
	if req.Limit > 0 && req.Limit < historyDefaultLimit {
		limit = req.Limit
	}

	results := make(map[string]interface{}, len(req.EntityIDs))
	denied := []string{}

	for _, entityID := range req.EntityIDs {
		if !acl.EntityAllowed(s.hub, entityID) {
			s.aud.Deny(actx.ClientID, entityID, "history_batch", models.ErrEntityNotAllowed, actx.SourceIP, nil)
			denied = append(denied, entityID)

			continue
		}

		states, err := s.queryRecorder(r.Context(), entityID, tr, significantOnly)
		if err != nil {
			s.logger.Error().Err(err).Str("entity_id", entityID).Msg("batch history query failed")
			writeError(w, models.ErrHistoryQueryFailed, http.StatusInternalServerError)

			return
		}

		truncated := len(states) > limit
		if truncated {
			states = states[:limit]
		}

		live, _ := s.hub.State(entityID)
		meta := history.BuildMetadata(entityID, acl.EntityDomain(entityID), states, live)
		entries := formatEntries(states, meta.Places())

		results[entityID] = map[string]interface{}{
			"history":   entries,
			"count":     len(entries),
			"truncated": truncated,
			"metadata":  meta,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results":    results,
		"denied":     denied,
		"count":      len(results),
		"start_time": tr.start.UTC().Format(time.RFC3339Nano),
		"end_time":   tr.end.UTC().Format(time.RFC3339Nano),
	})
}

type statisticsRequest struct {
	EntityIDs []string `json:"entity_ids"`
	Period    string   `json:"period"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
}

// handleStatistics implements POST /api/smartly/history/statistics.
// Aggregation is delegated to the hub's recorder; only numeric sensors
// qualify.
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request, actx *authContext) {
	var req statisticsRequest

	if err := json.Unmarshal(actx.Body, &req); err != nil {
		writeError(w, models.ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	if len(req.EntityIDs) == 0 {
		writeError(w, models.ErrMissingRequiredFields, http.StatusBadRequest)
		return
	}

	if len(req.EntityIDs) > maxBatchEntities {
		writeError(w, models.ErrTooManyEntities, http.StatusBadRequest)
		return
	}

	if !validPeriods[req.Period] {
		writeError(w, models.ErrInvalidPeriod, http.StatusBadRequest)
		return
	}

	tr, errKind := parseTimeRange(req.StartTime, req.EndTime)
	if errKind != "" {
		writeError(w, errKind, http.StatusBadRequest)
		return
	}

	allowed := []string{}
	denied := []string{}

	for _, entityID := range req.EntityIDs {
		if acl.EntityAllowed(s.hub, entityID) {
			allowed = append(allowed, entityID)
		} else {
			s.aud.Deny(actx.ClientID, entityID, "statistics", models.ErrEntityNotAllowed, actx.SourceIP, nil)
			denied = append(denied, entityID)
		}
	}

	select {
	case s.historyGate <- struct{}{}:
	case <-r.Context().Done():
		writeError(w, models.ErrStatisticsQueryFailed, http.StatusInternalServerError)
		return
	}

	stats, err := s.hub.Statistics(r.Context(), allowed, tr.start, tr.end, req.Period)

	<-s.historyGate

	if err != nil {
		s.logger.Error().Err(err).Msg("statistics query failed")
		writeError(w, models.ErrStatisticsQueryFailed, http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"statistics": stats,
		"denied":     denied,
		"period":     req.Period,
		"start_time": tr.start.UTC().Format(time.RFC3339Nano),
		"end_time":   tr.end.UTC().Format(time.RFC3339Nano),
	})
}

func clamp(n, low, high int) int {
	if n < low {
		return low
	}

	if n > high {
		return high
	}

	return n
}
