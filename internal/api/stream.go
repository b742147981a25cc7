package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fleetopt/internal/events"
	"fleetopt/internal/model"
)

var heartbeatEvery = 15 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// terminalEvent synthesizes the final event for a solve that already finished, so late
// subscribers do not wait forever.
func terminalEvent(rec model.SolveRecord) (events.Event, bool) {
	switch rec.Status {
	case model.SolveSucceeded:
		data := map[string]any{"id": rec.ID}
		if rec.Response != nil {
			data["totalCost"] = rec.Response.TotalCost
			data["unassigned"] = len(rec.Response.UnassignedJobs)
		}
		return events.Event{Type: events.SolveCompleted, Data: data}, true
	case model.SolveFailed:
		return events.Event{Type: events.SolveFailed, Data: map[string]any{"id": rec.ID, "error": rec.Error}}, true
	}
	return events.Event{}, false
}

// subscribe registers for events, then re-reads the record so a solve finishing in between
// is not missed.
func (s *Server) subscribe(r *http.Request, rec model.SolveRecord) (chan events.Event, model.SolveRecord) {
	ch := s.Broker.Subscribe(rec.ID)
	if cur, err := s.Store.GetSolve(r.Context(), rec.ID); err == nil {
		rec = cur
	}
	return ch, rec
}

// finished re-reads the record on heartbeat ticks, covering a terminal event that never
// reached the subscriber (a lost Redis message or a worker on another host).
func (s *Server) finished(r *http.Request, id string) (events.Event, bool) {
	cur, err := s.Store.GetSolve(r.Context(), id)
	if err != nil {
		return events.Event{}, false
	}
	return terminalEvent(cur)
}

func writeSSE(w http.ResponseWriter, evt events.Event) {
	b, _ := json.Marshal(evt.Data)
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	fmt.Fprintf(w, "data: %s\n\n", b)
}

func heartbeat(id string) events.Event {
	return events.Event{Type: "heartbeat", Data: map[string]any{"id": id, "ts": time.Now().UTC().Format(time.RFC3339)}}
}

// streamSSE serves GET /v1/solves/{id}/events until the solve finishes or the client leaves.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, rec model.SolveRecord) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch, rec := s.subscribe(r, rec)
	defer s.Broker.Unsubscribe(rec.ID, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	writeSSE(w, heartbeat(rec.ID))
	if evt, done := terminalEvent(rec); done {
		writeSSE(w, evt)
		flusher.Flush()
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, evt)
			flusher.Flush()
			if evt.Terminal() {
				return
			}
		case <-ticker.C:
			if evt, done := s.finished(r, rec.ID); done {
				writeSSE(w, evt)
				flusher.Flush()
				return
			}
			writeSSE(w, heartbeat(rec.ID))
			flusher.Flush()
		}
	}
}

// streamWS serves GET /v1/solves/{id}/ws: one JSON event per text message, closed normally
// after the terminal event.
func (s *Server) streamWS(w http.ResponseWriter, r *http.Request, rec model.SolveRecord) {
	ch, rec := s.subscribe(r, rec)
	defer s.Broker.Unsubscribe(rec.ID, ch)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// read loop only notices pongs and the client going away
	readWait := 4 * heartbeatEvery
	conn.SetReadLimit(1 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(readWait)) })
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(evt events.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(evt)
	}
	finish := func(evt events.Event) {
		if write(evt) == nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, evt.Type)
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
	}
	if evt, done := terminalEvent(rec); done {
		finish(evt)
		return
	}

	ticker := time.NewTicker(heartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if evt.Terminal() {
				finish(evt)
				return
			}
			if err := write(evt); err != nil {
				return
			}
		case <-ticker.C:
			if evt, done := s.finished(r, rec.ID); done {
				finish(evt)
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
