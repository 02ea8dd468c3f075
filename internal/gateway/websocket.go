package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/fluid-api/internal/auth"
	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
	"github.com/bizmatters/agent-builder/fluid-api/internal/orchestration"
)

const (
	writeWait      = 10 * time.Second
	requestTimeout = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the API is served behind a known frontend domain
		return true
	},
}

// eventWriter serializes writes to a websocket connection
type eventWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *eventWriter) write(event models.BatchEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(event)
}

func (w *eventWriter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// StreamBatch handles WebSocket /api/ws/batches. The client sends one BatchRequest; the server
// replies with one event per task as it finishes, then batch.completed. Closing the socket
// cancels the tasks not yet started.
// @Summary Stream batch progress
// @Tags requests
// @Param token query string false "JWT when the Authorization header cannot be set"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /ws/batches [get]
func (h *Handler) StreamBatch(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "gateway.stream_batch")
	defer span.End()

	userID := auth.UserID(c)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	writer := &eventWriter{conn: conn}
	batchID := uuid.NewString()
	span.SetAttributes(attribute.String("batch.id", batchID), attribute.String("user.id", userID))

	var req models.BatchRequest
	_ = conn.SetReadDeadline(time.Now().Add(requestTimeout))
	if err := conn.ReadJSON(&req); err != nil {
		h.logger.Warn("failed to read batch request", zap.String("batch_id", batchID), zap.Error(err))
		_ = writer.write(models.BatchEvent{EventType: models.EventTypeBatchError, BatchID: batchID, Error: "invalid batch request"})
		writer.close()
		return
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		_ = writer.write(models.BatchEvent{EventType: models.EventTypeBatchError, BatchID: batchID, Error: err.Error()})
		writer.close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the reader only watches for the client going away
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug("batch stream reader stopped", zap.String("batch_id", batchID), zap.Error(err))
				}
				cancel()
				return
			}
		}
	}()

	h.logger.Info("batch stream started", zap.String("batch_id", batchID), zap.Int("tasks", len(req.Tasks)))

	response := h.runBatch(ctx, batchID, userID, &req, func(item orchestration.BatchItem) {
		event := models.BatchEvent{BatchID: batchID, Index: item.Index}
		if item.Failure != nil {
			info := item.Failure.Info()
			event.EventType = models.EventTypeTaskFailed
			event.Failure = &info
		} else {
			event.EventType = models.EventTypeTaskCompleted
			event.Envelope = item.Envelope
		}
		if err := writer.write(event); err != nil {
			h.logger.Warn("failed to send batch event", zap.String("batch_id", batchID), zap.Error(err))
			cancel()
		}
	})

	if err := writer.write(models.BatchEvent{
		EventType: models.EventTypeBatchCompleted,
		BatchID:   batchID,
		Index:     len(req.Tasks),
		Succeeded: len(response.Envelopes),
		Failed:    len(response.Failures),
	}); err != nil {
		h.logger.Warn("failed to send batch completion", zap.String("batch_id", batchID), zap.Error(err))
	}
	writer.close()

	// the client answers the close frame, which ends the reader
	select {
	case <-readerDone:
	case <-time.After(writeWait):
		_ = conn.Close()
		<-readerDone
	}

	h.logger.Info("batch stream finished",
		zap.String("batch_id", batchID),
		zap.Int("succeeded", len(response.Envelopes)),
		zap.Int("failed", len(response.Failures)),
	)
}
