package server

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"qr-gate/pkg/mq"
)

const (
	eventBuffer       = 32
	heartbeatInterval = 15 * time.Second
)

type event struct {
	topic string
	data  []byte
}

// handleEvents streams scan.recorded and action.completed as server-sent
// events. Slow clients lose events rather than stall publishers.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch := make(chan event, eventBuffer)
	forward := func(topic string) func([]byte) error {
		return func(b []byte) error {
			select {
			case ch <- event{topic: topic, data: b}:
			default:
				s.log.Debug("event dropped", zap.String("topic", topic))
			}
			return nil
		}
	}
	unsubScan := s.bus.Subscribe(mq.TopicScanRecorded, forward(mq.TopicScanRecorded))
	defer unsubScan()
	unsubAction := s.bus.Subscribe(mq.TopicActionCompleted, forward(mq.TopicActionCompleted))
	defer unsubAction()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.topic, ev.data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
