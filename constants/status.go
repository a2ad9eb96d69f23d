package constants

// FileStatus is the per-file state of the extraction run.
type FileStatus string

// Stable values (persisted in progress.json).
const (
	FileStatusPending    FileStatus = "PENDING"    // discovered, not yet looked up
	FileStatusCacheHit   FileStatus = "CACHE_HIT"  // fingerprint matched a committed entry
	FileStatusExtracting FileStatus = "EXTRACTING" // oracle call in flight
	FileStatusValidating FileStatus = "VALIDATING" // raw output being salvaged
	FileStatusCommitted  FileStatus = "COMMITTED"  // terminal: records persisted
	FileStatusFailed     FileStatus = "FAILED"     // terminal: recorded with a reason
)

// Terminal reports whether no further transition is expected within a run.
func (s FileStatus) Terminal() bool {
	return s == FileStatusCommitted || s == FileStatusFailed
}

// GeocodingStatus is attached to every restaurant by the enrichment pass.
type GeocodingStatus string

const (
	GeocodingSuccess   GeocodingStatus = "success"
	GeocodingFailed    GeocodingStatus = "failed"
	GeocodingNoAddress GeocodingStatus = "no_address"
)
