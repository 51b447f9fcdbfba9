package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"qr-gate/internal/result"
	"qr-gate/internal/store"
	"qr-gate/pkg/mq"
)

const (
	defaultLimit       = 300
	defaultActionLimit = 200
	maxLimit           = 5000
)

// parseLimit reads ?limit=, falling back to def when absent or not an
// integer, and clamps it to 1..maxLimit.
func parseLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	if err != nil {
		n = def
	}
	return max(1, min(n, maxLimit))
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// decodeBody reads a JSON object. A missing or malformed body reads as empty
// so the field checks produce the error.
func decodeBody(r *http.Request) map[string]any {
	var body map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil || body == nil {
		return map[string]any{}
	}
	return body
}

// stringField returns body[key] as text; def when the key is absent.
func stringField(body map[string]any, key, def string) string {
	v, ok := body[key]
	if !ok {
		return def
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	text := strings.TrimSpace(stringField(body, "qr_text", ""))
	source := store.NormalizeSource(stringField(body, "source", "MANUAL"))

	key := source + "\x00" + text
	if text != "" && !s.dedupe.SetIfAbsent(key, text) {
		s.metrics.duplicates.Inc()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "duplicate": true})
		return
	}

	res, err := s.store.AddScan(r.Context(), text, source)
	if err != nil {
		s.dedupe.Delete(key)
		s.writeStoreErr(w, r, err)
		return
	}
	s.metrics.scans.WithLabelValues(res.Scan.Source).Inc()
	s.publish(mq.TopicScanRecorded, res.Scan)
	for _, ev := range res.Actions {
		s.metrics.actions.WithLabelValues(strconv.FormatBool(ev.IsRedCard)).Inc()
		s.log.Info("gate sequence completed",
			zap.String("gate_code", ev.GateCode),
			zap.Int64("action_id", ev.ID),
			zap.Bool("red_card", ev.IsRedCard),
		)
		s.publish(mq.TopicActionCompleted, ev)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) publish(topic string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("encode event", zap.String("topic", topic), zap.Error(err))
		return
	}
	_ = s.bus.Publish(topic, b)
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	scans, err := s.store.ListScans(r.Context(), parseLimit(r, defaultLimit))
	if err != nil {
		s.writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scans)
}

func (s *Server) handleGateSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.GateSummary(r.Context(), parseLimit(r, defaultLimit))
	if err != nil {
		s.writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	includeClosed := parseBool(r.URL.Query().Get("include_closed"))
	events, err := s.store.ListActions(r.Context(), parseLimit(r, defaultActionLimit), includeClosed)
	if err != nil {
		s.writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCloseAction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeErr(w, http.StatusNotFound, "action event not found or already closed")
		return
	}
	ok, err := s.store.CloseAction(r.Context(), id)
	if err != nil {
		s.writeStoreErr(w, r, err)
		return
	}
	if !ok {
		writeErr(w, http.StatusNotFound, "action event not found or already closed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListGates(w http.ResponseWriter, r *http.Request) {
	gates, err := s.store.ListGates(r.Context(), parseLimit(r, defaultLimit))
	if err != nil {
		s.writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gates)
}

func (s *Server) handleCreateGate(w http.ResponseWriter, r *http.Request) {
	body := decodeBody(r)
	gate, err := s.store.CreateGate(r.Context(), stringField(body, "gate_code", ""))
	if err != nil {
		s.writeStoreErr(w, r, err)
		return
	}
	s.log.Info("gate created", zap.Int64("gate_id", gate.ID), zap.String("gate_code", gate.GateCode))
	writeJSON(w, http.StatusCreated, gate)
}

func (s *Server) handleSetGateDoors(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeErr(w, http.StatusBadRequest, store.ErrGateNotFound.Error())
		return
	}
	body := decodeBody(r)
	var numbers []string
	if raw, ok := body["door_numbers"]; ok {
		list, ok := raw.([]any)
		if !ok {
			writeErr(w, http.StatusBadRequest, "door_numbers must be a list")
			return
		}
		numbers = make([]string, len(list))
		for i, v := range list {
			numbers[i] = stringify(v)
		}
	}

	gate, err := s.store.SetGateDoors(r.Context(), id, numbers)
	if err != nil {
		s.writeStoreErr(w, r, err)
		return
	}
	s.log.Info("gate doors set", zap.Int64("gate_id", gate.ID), zap.Int("door_count", gate.DoorCount))
	writeJSON(w, http.StatusOK, gate)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := mux.Vars(r)["format"]
	mime, filename, err := result.ContentType(format)
	if err != nil {
		writeErr(w, http.StatusNotFound, err.Error())
		return
	}
	b, err := s.exporter.Export(r.Context(), format)
	if err != nil {
		s.writeStoreErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	_, _ = w.Write(b)
}
