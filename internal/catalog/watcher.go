package catalog

import (
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// IngestWatcher feeds an in-memory catalog from a directory tree.
//
// It exists so the standalone daemon has a working primary store to
// exercise: each immediate subdirectory of the watch root becomes a
// data source, and files created under it are registered in the
// catalog and classified by extension, emitting the same event stream
// a full catalog would. It uses fsnotify for cross-platform file
// system event monitoring.
type IngestWatcher struct {
	cat     *MemCatalog
	root    string
	watcher *fsnotify.Watcher
	logger  *log.Logger

	mu      sync.Mutex
	running bool
	// sources maps subdirectory name to its assigned data source id.
	sources map[string]int64
	// ids maps absolute file path to the catalog file id.
	ids        map[string]int64
	nextSource int64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewIngestWatcher creates a watcher feeding cat from the given root
// directory. If logger is nil, a default stderr logger is used.
func NewIngestWatcher(cat *MemCatalog, root string, logger *log.Logger) (*IngestWatcher, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if root == "" {
		return nil, fmt.Errorf("root cannot be empty")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[ingest] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &IngestWatcher{
		cat:        cat,
		root:       root,
		watcher:    watcher,
		logger:     logger,
		sources:    make(map[string]int64),
		ids:        make(map[string]int64),
		nextSource: 1,
		done:       make(chan struct{}),
	}, nil
}

// Start registers the existing directory contents and begins watching
// for new files. Existing files are ingested synchronously before the
// event loop starts.
func (w *IngestWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("failed to read watch root: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := w.addSourceLocked(entry.Name()); err != nil {
				return err
			}
		}
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()

	w.logger.Printf("Watching %s (%d data sources)", w.root, len(w.sources))
	return nil
}

// Stop stops watching and blocks until the event loop has exited.
func (w *IngestWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

// addSourceLocked registers a subdirectory as a data source, ingests
// its current files, and starts watching it. Caller holds w.mu.
func (w *IngestWatcher) addSourceLocked(name string) error {
	if _, exists := w.sources[name]; exists {
		return nil
	}

	id := w.nextSource
	w.nextSource++
	w.sources[name] = id
	w.cat.AddDataSource(id)

	dir := filepath.Join(w.root, name)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch data source dir %s: %w", dir, err)
	}

	w.cat.StartAnalysis(id, true)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read data source dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			w.ingestFileLocked(id, filepath.Join(dir, entry.Name()))
		}
	}
	w.cat.CompleteAnalysis(id, true)

	w.logger.Printf("Added data source %d (%s)", id, name)
	return nil
}

// ingestFileLocked registers one file and classifies it by extension.
// Caller holds w.mu.
func (w *IngestWatcher) ingestFileLocked(sourceID int64, path string) {
	if _, exists := w.ids[path]; exists {
		return
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	f := FileRef{
		DataSourceID: sourceID,
		Name:         filepath.Base(path),
		ParentPath:   filepath.Dir(path),
		Extension:    ext,
		Kind:         KindRegular,
	}
	id := w.cat.AddFile(f)
	w.ids[path] = id

	// Extension-based classification stands in for the catalog's
	// content-type detection pipeline.
	if mt := mime.TypeByExtension("." + ext); mt != "" {
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		w.cat.ClassifyFile(id, mt)
	}
}

// processEvents is the fsnotify event loop.
func (w *IngestWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create == 0 {
				continue
			}
			w.handleCreate(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watcher error: %v", err)
		}
	}
}

// handleCreate routes a create event: a new subdirectory of the root
// becomes a data source, a new file inside a known data source gets
// ingested.
func (w *IngestWatcher) handleCreate(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if filepath.Dir(path) == w.root {
		if info.IsDir() {
			if err := w.addSourceLocked(filepath.Base(path)); err != nil {
				w.logger.Printf("Failed to add data source %s: %v", path, err)
			}
		}
		return
	}

	if info.IsDir() {
		return
	}
	sourceName := filepath.Base(filepath.Dir(path))
	if id, ok := w.sources[sourceName]; ok {
		w.ingestFileLocked(id, path)
	}
}
