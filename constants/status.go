package constants

// DocStatus is the canonical per-document processing status recorded in the
// run ledger.
type DocStatus string

// Stable values (store these exact strings in the ledger).
const (
	DocStatusPending    DocStatus = "PENDING"
	DocStatusExtracting DocStatus = "EXTRACTING"
	DocStatusExtracted  DocStatus = "EXTRACTED"
	DocStatusMapping    DocStatus = "MAPPING"
	DocStatusMapped     DocStatus = "MAPPED"
	DocStatusAnalyzed   DocStatus = "ANALYZED"
	DocStatusWritten    DocStatus = "WRITTEN"
	DocStatusFailed     DocStatus = "FAILED" // terminal failure
)
