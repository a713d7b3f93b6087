// Package catalog defines the boundary to the primary file catalog.
//
// The catalog is the authoritative record store: it owns data sources,
// file metadata, and the background analysis pipeline that classifies
// files over time. drawsync never writes file metadata back to the
// catalog; it only reads candidate sets and summary predicates, and
// consumes the catalog's event stream.
package catalog

import (
	"context"
	"errors"
)

// ErrFileNotFound is returned by FileByID when no file with the given
// identifier exists in the catalog.
var ErrFileNotFound = errors.New("catalog: file not found")

// FileKind is the coarse file type recorded by the catalog.
type FileKind int

const (
	// KindRegular is an ordinary allocated file.
	KindRegular FileKind = iota
	// KindFragment is a carved or partial file; never indexed.
	KindFragment
	// KindDirectory is a directory entry; never indexed.
	KindDirectory
)

// String returns a human-readable representation of the file kind.
func (k FileKind) String() string {
	switch k {
	case KindRegular:
		return "regular"
	case KindFragment:
		return "fragment"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// FileRef is the catalog's view of one file, reduced to the fields the
// sync layer consumes.
//
// MIMEType is nil until the catalog's content-type detection has run
// for the file. Extension is the degraded classification signal used
// while MIMEType is still unknown.
type FileRef struct {
	// ID is the catalog-wide file identifier.
	ID int64

	// DataSourceID identifies the partition the file belongs to.
	DataSourceID int64

	// Name is the file's base name.
	Name string

	// ParentPath is the path of the containing directory. Candidate
	// enumeration orders by this field to group siblings.
	ParentPath string

	// Extension is the lower-cased name extension without the dot.
	Extension string

	// MIMEType is the detected content type, or nil if detection has
	// not run yet.
	MIMEType *string

	// Kind is the coarse file type.
	Kind FileKind

	// KnownBenign is true when the file's content hash matched an
	// allow-list; such files are excluded from the index.
	KnownBenign bool

	// HasExifArtifact is true when analysis found EXIF metadata.
	HasExifArtifact bool

	// HasHashSetHit is true when the file hit a notable hash set.
	HasHashSetHit bool

	// Tagged is true when at least one tag is applied to the file.
	Tagged bool
}

// Classified reports whether content-type detection has produced a
// MIME type for the file.
func (f *FileRef) Classified() bool {
	return f.MIMEType != nil
}

// Tx is a read transaction against the catalog. Long scans hold one
// open and periodically commit and reopen it so concurrent catalog
// writers are not starved.
type Tx interface {
	Commit() error
	Rollback() error
}

// CandidateFilter describes the candidate enumeration predicate: files
// whose MIME type matches one of MIMETypes, or whose MIME type is
// still unknown and whose extension matches one of Extensions. Only
// regular files match.
type CandidateFilter struct {
	MIMETypes  []string
	Extensions []string
}

// Catalog is the read-side interface to the primary store.
type Catalog interface {
	// DataSources lists the identifiers of all data sources known to
	// the catalog.
	DataSources(ctx context.Context) ([]int64, error)

	// FindCandidateFiles enumerates the files in a data source that
	// match the filter, ordered by parent path.
	FindCandidateFiles(ctx context.Context, dataSourceID int64, filter CandidateFilter) ([]FileRef, error)

	// FileByID fetches the current attributes of a single file.
	// Returns ErrFileNotFound if the file does not exist.
	FileByID(ctx context.Context, fileID int64) (FileRef, error)

	// HasUnclassifiedFiles reports whether any file in the data source
	// still lacks a MIME type.
	HasUnclassifiedFiles(ctx context.Context, dataSourceID int64) (bool, error)

	// HasClassifiedFiles reports whether any file in the data source
	// already carries a MIME type.
	HasClassifiedFiles(ctx context.Context, dataSourceID int64) (bool, error)

	// Begin opens a read transaction for a long scan.
	Begin(ctx context.Context) (Tx, error)
}

// EventSource is implemented by catalogs that expose a lifecycle and
// analysis event stream.
type EventSource interface {
	// Subscribe registers a new event consumer. The returned channel
	// is closed when the catalog shuts down or Unsubscribe is called.
	Subscribe() <-chan Event

	// Unsubscribe removes a consumer previously added with Subscribe
	// and closes its channel.
	Unsubscribe(ch <-chan Event)
}
