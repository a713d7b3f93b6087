package gallery

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/sleuthkit/drawsync/internal/catalog"
	"github.com/sleuthkit/drawsync/internal/drawable"
)

// EventDispatcher consumes catalog notifications for one controller
// and translates each into a status transition or a queued sync task.
// Handlers stay short: anything that touches drawable file records is
// enqueued so the single worker remains the only writer, while build
// status rows may be updated inline.
type EventDispatcher struct {
	ctrl   *Controller
	src    catalog.EventSource
	logger *log.Logger

	mu      sync.Mutex
	events  <-chan catalog.Event
	done    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewEventDispatcher creates a dispatcher wired to one controller. It
// does not subscribe until Start is called.
func NewEventDispatcher(ctrl *Controller, src catalog.EventSource) *EventDispatcher {
	return &EventDispatcher{
		ctrl:   ctrl,
		src:    src,
		logger: ctrl.logger,
	}
}

// Start subscribes to the catalog and begins dispatching events.
func (d *EventDispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.events != nil {
		return fmt.Errorf("dispatcher already started")
	}
	if d.stopped {
		return fmt.Errorf("dispatcher already stopped")
	}

	d.events = d.src.Subscribe()
	d.done = make(chan struct{})
	d.wg.Add(1)
	go d.loop(d.events, d.done)
	return nil
}

// Stop unsubscribes and waits for the dispatch loop to drain.
func (d *EventDispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	events := d.events
	done := d.done
	d.mu.Unlock()

	if events == nil {
		return
	}
	d.src.Unsubscribe(events)
	close(done)
	d.wg.Wait()
}

func (d *EventDispatcher) loop(events <-chan catalog.Event, done chan struct{}) {
	defer d.wg.Done()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.handle(ev)
		case <-done:
			return
		}
	}
}

func (d *EventDispatcher) handle(ev catalog.Event) {
	switch ev.Kind {
	case catalog.EventAnalysisStarted:
		if ev.Local {
			d.handleAnalysisStarted(ev.DataSourceID)
		}
	case catalog.EventFileClassified:
		if ev.Local {
			d.handleFileClassified(ev.FileID)
		}
	case catalog.EventAnalysisCompleted:
		if ev.Local {
			d.handleAnalysisCompleted(ev.DataSourceID)
		} else {
			// A cooperating process finished analysis against the
			// shared catalog. Surface the notice; never rebuild on
			// another node's behalf.
			d.ctrl.SetStaleNotice(true)
		}
	case catalog.EventDataSourceAdded:
		if ev.Local {
			d.handleDataSourceAdded(ev.DataSourceID)
		}
	case catalog.EventDataSourceDeleted:
		if ev.Local {
			d.handleDataSourceDeleted(ev.DataSourceID)
		}
	case catalog.EventTagAdded:
		d.handleTagChange(ev.FileID, ev.TagName, true)
	case catalog.EventTagDeleted:
		d.handleTagChange(ev.FileID, ev.TagName, false)
	}
}

// handleAnalysisStarted marks the data source as being analyzed and
// installs the analysis-scoped metadata cache the incremental tasks
// share.
func (d *EventDispatcher) handleAnalysisStarted(dataSourceID int64) {
	ctx := context.Background()

	status, _, err := d.ctrl.db.LookupStatus(ctx, dataSourceID)
	if err != nil {
		d.logger.Printf("Failed to read build status for data source %d: %v", dataSourceID, err)
		return
	}
	if status != drawable.StatusComplete {
		if err := d.ctrl.db.SetStatusContext(ctx, dataSourceID, drawable.StatusInProgress); err != nil {
			d.logger.Printf("Failed to mark data source %d in progress: %v", dataSourceID, err)
			return
		}
	}

	d.ctrl.beginAnalysisCache()
}

// handleFileClassified enqueues an incremental sync for the classified
// file, but only while the controller is listening.
func (d *EventDispatcher) handleFileClassified(fileID int64) {
	if !d.ctrl.IsListeningEnabled() {
		return
	}
	task := NewIncrementalSyncTask(d.ctrl.db, d.ctrl.cat, fileID,
		d.ctrl.currentAnalysisCache(), d.logger, d.ctrl.config.Metrics)
	task.Notify = d.ctrl.config.NotifyIncremental
	d.ctrl.queue.Submit(task)
}

// handleAnalysisCompleted enqueues the status reconciliation step.
// Running it through the queue orders it after every incremental task
// the finished analysis produced.
func (d *EventDispatcher) handleAnalysisCompleted(dataSourceID int64) {
	ctrl := d.ctrl
	task := NewTask(fmt.Sprintf("reconcile-status-%d", dataSourceID), func(ctx context.Context) error {
		defer ctrl.endAnalysisCache()

		classified, err := ctrl.cat.HasClassifiedFiles(ctx, dataSourceID)
		if err != nil {
			return fmt.Errorf("checking classified files for data source %d: %w", dataSourceID, err)
		}

		terminal := drawable.StatusUnknown
		if classified {
			terminal = drawable.StatusComplete
		}
		if err := ctrl.db.SetStatusContext(ctx, dataSourceID, terminal); err != nil {
			return fmt.Errorf("setting build status for data source %d: %w", dataSourceID, err)
		}
		ctrl.logger.Printf("Analysis of data source %d complete, build status %s", dataSourceID, terminal)
		return nil
	})
	ctrl.queue.Submit(task)
}

// handleDataSourceAdded seeds a build status row so the data source
// shows up in snapshots before its first sync.
func (d *EventDispatcher) handleDataSourceAdded(dataSourceID int64) {
	ctx := context.Background()

	_, exists, err := d.ctrl.db.LookupStatus(ctx, dataSourceID)
	if err != nil {
		d.logger.Printf("Failed to read build status for data source %d: %v", dataSourceID, err)
		return
	}
	if exists {
		return
	}
	if err := d.ctrl.db.SetStatusContext(ctx, dataSourceID, drawable.StatusUnknown); err != nil {
		d.logger.Printf("Failed to seed build status for data source %d: %v", dataSourceID, err)
	}
}

// handleDataSourceDeleted enqueues removal of the data source's
// records and status row.
func (d *EventDispatcher) handleDataSourceDeleted(dataSourceID int64) {
	ctrl := d.ctrl
	task := NewTask(fmt.Sprintf("delete-data-source-%d", dataSourceID), func(ctx context.Context) error {
		if err := ctrl.db.DeleteDataSource(ctx, dataSourceID); err != nil {
			return fmt.Errorf("deleting data source %d: %w", dataSourceID, err)
		}
		ctrl.logger.Printf("Removed drawable records for deleted data source %d", dataSourceID)
		return nil
	})
	ctrl.queue.Submit(task)
}

// handleTagChange keeps the tag cache and the denormalized tagged flag
// in step with catalog tag events. The flag write goes through the
// queue; the cache update is purely in memory and happens inline.
func (d *EventDispatcher) handleTagChange(fileID int64, tagName string, added bool) {
	ctrl := d.ctrl
	if added {
		ctrl.tags.Add(fileID, tagName)
	} else {
		ctrl.tags.Remove(fileID, tagName)
	}

	task := NewTask(fmt.Sprintf("retag-%d", fileID), func(ctx context.Context) error {
		inDB, err := ctrl.db.InDB(ctx, fileID)
		if err != nil {
			return fmt.Errorf("checking drawable record for file %d: %w", fileID, err)
		}
		if !inDB {
			return nil
		}
		tagged := len(ctrl.tags.Tags(fileID)) > 0
		if err := ctrl.db.SetTagged(ctx, fileID, tagged); err != nil {
			return fmt.Errorf("updating tagged flag for file %d: %w", fileID, err)
		}
		return nil
	})
	ctrl.queue.Submit(task)
}
