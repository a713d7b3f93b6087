package gallery

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/sleuthkit/drawsync/internal/catalog"
	"github.com/sleuthkit/drawsync/internal/drawable"
)

// testLogger returns a logger that discards output.
func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newTestDB opens and initializes a fresh drawable store
func newTestDB(t *testing.T) *drawable.DB {
	t.Helper()

	db, err := drawable.Open(filepath.Join(t.TempDir(), "drawable.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

// strPtr returns a pointer to s.
func strPtr(s string) *string {
	return &s
}

// addImageFile adds a classified image file to the catalog and returns
// its id.
func addImageFile(cat *catalog.MemCatalog, dataSourceID int64, name string) int64 {
	return cat.AddFile(catalog.FileRef{
		DataSourceID: dataSourceID,
		Name:         name,
		ParentPath:   "/img/",
		Extension:    "jpg",
		MIMEType:     strPtr("image/jpeg"),
		Kind:         catalog.KindRegular,
	})
}

// seedImageFiles adds n classified image files spread over distinct
// parent paths and returns their ids.
func seedImageFiles(cat *catalog.MemCatalog, dataSourceID int64, n int) []int64 {
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id := cat.AddFile(catalog.FileRef{
			DataSourceID: dataSourceID,
			Name:         fmt.Sprintf("img%04d.jpg", i),
			ParentPath:   fmt.Sprintf("/img/%02d/", i/100),
			Extension:    "jpg",
			MIMEType:     strPtr("image/jpeg"),
			Kind:         catalog.KindRegular,
		})
		ids = append(ids, id)
	}
	return ids
}

// bulkTestOptions returns options tuned for tests: no yield sleep, no
// log noise.
func bulkTestOptions() BulkOptions {
	return BulkOptions{
		Yield:  -1,
		Logger: testLogger(),
	}
}
