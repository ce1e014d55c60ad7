package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/mcvqe/internal/events"
	"github.com/aristath/mcvqe/internal/modules/runs"
	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// streamTypes are forwarded to progress stream clients.
var streamTypes = []events.EventType{
	events.RunStarted,
	events.IterationCompleted,
	events.RunCompleted,
	events.RunFailed,
}

// StreamMessage is one websocket frame of the progress stream.
type StreamMessage struct {
	Type      events.EventType       `json:"type"`
	RunID     string                 `json:"run_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// HandleStreamRun handles GET /api/mcvqe/runs/{id}/stream. Events of the run
// are pushed as JSON text frames until it completes or fails, or the client
// goes away. Finished runs get a single terminal frame.
func (h *Handler) HandleStreamRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.bus == nil {
		if _, err := h.service.Repository().Get(id); err != nil {
			h.writeError(w, err)
			return
		}
		http.Error(w, "Streaming not available", http.StatusServiceUnavailable)
		return
	}

	// Subscribe before the lookup: a terminal event is published only after
	// the outcome is stored, so either the lookup sees the final status or
	// the event reaches eventChan.
	eventChan := make(chan *events.Event, 256)
	var subs []events.SubscriptionID
	for _, t := range streamTypes {
		subs = append(subs, h.bus.Subscribe(t, func(e *events.Event) {
			if runID, _ := e.Data["run_id"].(string); runID != id {
				return
			}
			select {
			case eventChan <- e:
			default:
				h.log.Warn().Str("run_id", id).Str("event_type", string(e.Type)).Msg("Stream buffer full, dropping event")
			}
		}))
	}
	defer func() {
		for _, sub := range subs {
			h.bus.Unsubscribe(sub)
		}
	}()

	run, err := h.service.Repository().Get(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket handshake failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	// The client never sends; CloseRead handles control frames and cancels
	// ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())
	h.log.Debug().Str("run_id", id).Msg("Progress stream client connected")

	if run.Status == runs.StatusCompleted || run.Status == runs.StatusFailed {
		h.writeTerminal(ctx, conn, run)
		return
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-eventChan:
			msg := StreamMessage{Type: e.Type, RunID: id, Timestamp: e.Timestamp, Data: e.Data}
			if err := h.write(ctx, conn, msg); err != nil {
				return
			}
			if e.Type == events.RunCompleted || e.Type == events.RunFailed {
				conn.Close(websocket.StatusNormalClosure, "run finished")
				return
			}
		case <-heartbeat.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeTerminal(ctx context.Context, conn *websocket.Conn, run *runs.Run) {
	msg := StreamMessage{Type: events.RunCompleted, RunID: run.ID, Timestamp: run.UpdatedAt}
	if run.Status == runs.StatusFailed {
		msg.Type = events.RunFailed
		msg.Data = map[string]interface{}{"run_id": run.ID, "error": run.Error}
	} else if run.Result != nil {
		msg.Data = map[string]interface{}{
			"run_id":         run.ID,
			"average_energy": run.Result.AverageEnergy,
			"spectrum":       run.Result.Spectrum,
			"iterations":     run.Result.Iterations,
		}
	}
	if err := h.write(ctx, conn, msg); err == nil {
		conn.Close(websocket.StatusNormalClosure, "run finished")
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, msg StreamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := wsjson.Write(writeCtx, conn, msg)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log.Debug().Err(err).Str("run_id", msg.RunID).Msg("Progress stream write failed")
	}
	return err
}
