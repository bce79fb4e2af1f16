package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joseph-ayodele/contract-analyzer/internal/entity"
)

const watchWriteTimeout = 5 * time.Second

// handleWatch streams the job's status view over a websocket. A message is sent
// on connect and on every change; the stream closes after a terminal state.
func (s *HTTPServer) handleWatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	view, err := s.svc.Status(id)
	if err != nil {
		s.failure(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("http.watch.upgrade_failed", "job_id", id, "error", err)
		return
	}
	defer conn.Close()
	s.logger.Debug("http.watch.open", "job_id", id)

	// drain client frames so close and ping control messages are processed
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var last *entity.StatusView
	for {
		if last == nil || changed(*last, view) {
			_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
			if err := conn.WriteJSON(view); err != nil {
				s.logger.Debug("http.watch.write_failed", "job_id", id, "error", err)
				return
			}
			v := view
			last = &v
		}
		if view.Status.Terminal() {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(view.Status))
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(watchWriteTimeout))
			return
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		view, err = s.svc.Status(id)
		if err != nil {
			// deleted while watching
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "job removed")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(watchWriteTimeout))
			return
		}
	}
}

func changed(a, b entity.StatusView) bool {
	return a.Status != b.Status || a.ProgressPercent != b.ProgressPercent
}
