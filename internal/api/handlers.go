// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jbqubit/ndsp-highfinesse/internal/history"
	"github.com/jbqubit/ndsp-highfinesse/internal/log"
	"github.com/jbqubit/ndsp-highfinesse/internal/wlm"
)

// InfoResponse describes the running controller.
type InfoResponse struct {
	Version     string `json:"version"`
	Target      string `json:"target"`
	Simulation  bool   `json:"simulation"`
	Device      string `json:"device,omitempty"`
	DeviceError string `json:"device_error,omitempty"`
}

// ChannelReading is the latest reading of one channel.
type ChannelReading struct {
	wlm.Reading
	Time time.Time `json:"time"`
}

// HistoryResponse lists stored readings of one channel, newest first.
type HistoryResponse struct {
	Channel int             `json:"channel"`
	Entries []history.Entry `json:"entries"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	resp := InfoResponse{Version: s.cfg.Version, Target: s.cfg.Target}
	if s.deps.Device != nil {
		resp.Simulation = s.deps.Device.Simulation()
		id, err := s.deps.Device.ID()
		if err != nil {
			logger := log.WithComponentFromContext(r.Context(), "api")
			logger.Warn().Err(err).Msg("device identification failed")
			resp.DeviceError = err.Error()
		} else {
			resp.Device = id
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReadings(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Readings == nil {
		writeServiceUnavailable(w, "monitor disabled")
		return
	}
	snap, ok := s.deps.Readings.Latest()
	if !ok {
		writeNotFound(w, "no readings yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleChannelReading(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelParam(w, r)
	if !ok {
		return
	}
	if s.deps.Readings == nil {
		writeServiceUnavailable(w, "monitor disabled")
		return
	}
	snap, ok := s.deps.Readings.Latest()
	if !ok {
		writeNotFound(w, "no readings yet")
		return
	}
	reading, ok := snap.Reading(ch)
	if !ok {
		writeNotFound(w, "channel not monitored")
		return
	}
	writeJSON(w, http.StatusOK, ChannelReading{Reading: reading, Time: snap.Time})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ch, ok := channelParam(w, r)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	if s.deps.History == nil {
		writeServiceUnavailable(w, "history disabled")
		return
	}

	entries, err := s.deps.History.RecentFrequency(r.Context(), ch, limit)
	if err != nil {
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Error().Err(err).Int(log.FieldChannel, ch).Msg("history query failed")
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Channel: ch, Entries: entries})
}

func channelParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	ch, err := strconv.Atoi(chi.URLParam(r, "channel"))
	if err != nil || ch < 1 {
		writeBadRequest(w, "channel must be a positive integer")
		return 0, false
	}
	return ch, true
}
