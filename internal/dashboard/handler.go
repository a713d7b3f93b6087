// Package dashboard provides event handling and message formatting for the dashboard.
package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/sleuthkit/drawsync/internal/gallery"
)

// Handler formats index sync events as dashboard messages. It bridges
// between a case controller and the WebSocket server: wire
// BulkRunNotifier into the controller's Notify hook and call
// PublishSnapshot on whatever cadence the caller wants.
type Handler struct {
	caseID string
	server *Server
	logger *log.Logger
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(caseID string, server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		caseID: caseID,
		server: server,
		logger: logger,
	}
}

// BulkRunNotifier returns a callback suitable for a controller's
// Notify hook.
func (h *Handler) BulkRunNotifier() func(gallery.BulkResult) {
	return h.OnBulkRunFinished
}

// OnBulkRunFinished broadcasts a finished bulk run
func (h *Handler) OnBulkRunFinished(res gallery.BulkResult) {
	h.logger.Printf("Bulk run %s finished: data source %d, %d files, %d batches, status %s",
		res.RunID, res.DataSourceID, res.Processed, res.Batches, res.Terminal)

	data := SyncRunData{
		CaseID:       h.caseID,
		RunID:        res.RunID,
		DataSourceID: res.DataSourceID,
		Processed:    res.Processed,
		Batches:      res.Batches,
		Status:       res.Terminal.String(),
		Cancelled:    res.Cancelled,
	}
	if res.Err != nil {
		data.Error = res.Err.Error()
	}

	h.send(MessageTypeSyncRun, data)
}

// OnQueueDepth broadcasts the current sync queue depth
func (h *Handler) OnQueueDepth(depth int) {
	h.send(MessageTypeQueueDepth, QueueDepthData{
		CaseID: h.caseID,
		Depth:  depth,
	})
}

// OnStaleNotice broadcasts a possibly-stale notice transition
func (h *Handler) OnStaleNotice(stale bool) {
	h.logger.Printf("Stale notice for case %s: %v", h.caseID, stale)
	h.send(MessageTypeStaleNotice, StaleNoticeData{
		CaseID: h.caseID,
		Stale:  stale,
	})
}

// OnIncrementalSync broadcasts a single-file sync
func (h *Handler) OnIncrementalSync(fileID int64, action string) {
	h.send(MessageTypeIncremental, IncrementalData{
		CaseID: h.caseID,
		FileID: fileID,
		Action: action,
	})
}

// PublishSnapshot reads the controller's build status snapshot and
// broadcasts it
func (h *Handler) PublishSnapshot(ctx context.Context, ctrl *gallery.Controller) error {
	snapshot, err := ctrl.StatusSnapshot(ctx)
	if err != nil {
		return err
	}

	statuses := make(map[int64]string, len(snapshot))
	for id, status := range snapshot {
		statuses[id] = status.String()
	}

	h.send(MessageTypeStatusSnapshot, StatusSnapshotData{
		CaseID:   h.caseID,
		Statuses: statuses,
	})
	return nil
}

func (h *Handler) send(typ MessageType, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}

	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
