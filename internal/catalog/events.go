package catalog

// EventKind identifies a catalog lifecycle or analysis event.
type EventKind int

const (
	// EventDataSourceAdded fires when a new data source is registered.
	EventDataSourceAdded EventKind = iota
	// EventDataSourceDeleted fires when a data source is removed.
	EventDataSourceDeleted
	// EventFileClassified fires when content-type detection finishes
	// for a single file.
	EventFileClassified
	// EventAnalysisStarted fires when background analysis begins for a
	// data source.
	EventAnalysisStarted
	// EventAnalysisCompleted fires when background analysis finishes
	// for a data source.
	EventAnalysisCompleted
	// EventTagAdded fires when a tag is applied to a file.
	EventTagAdded
	// EventTagDeleted fires when a tag is removed from a file.
	EventTagDeleted
)

// String returns a human-readable representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventDataSourceAdded:
		return "data_source_added"
	case EventDataSourceDeleted:
		return "data_source_deleted"
	case EventFileClassified:
		return "file_classified"
	case EventAnalysisStarted:
		return "analysis_started"
	case EventAnalysisCompleted:
		return "analysis_completed"
	case EventTagAdded:
		return "tag_added"
	case EventTagDeleted:
		return "tag_deleted"
	default:
		return "unknown"
	}
}

// Event is one notification from the catalog's event stream.
//
// DataSourceID is set for data-source and analysis events. FileID is
// set for file and tag events. TagName is set for tag events. Local
// distinguishes events produced by this process from events produced
// by a cooperating process sharing the same catalog.
type Event struct {
	Kind         EventKind
	DataSourceID int64
	FileID       int64
	TagName      string
	Local        bool
}
