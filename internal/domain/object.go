package domain

import "time"

// Tag keys recognized on stored objects. Tags are caller-supplied and
// otherwise opaque; TagCaseID is the one the ledger's legal-hold check reads.
const (
	TagFilename = "filename"
	TagCaseID   = "case_id"
)

// StoredObject is the metadata sidecar of a content-addressed blob.
// ObjectID is the hex SHA-256 of the stored bytes and the sole identity;
// WormLocked only ever transitions false to true.
type StoredObject struct {
	ObjectID    string            `json:"object_id"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	CreatedAt   time.Time         `json:"created_at"`
	Checksum    string            `json:"checksum"`
	Tags        map[string]string `json:"tags"`
	WormLocked  bool              `json:"worm_locked"`
}

func (o StoredObject) CaseID() string {
	return o.Tags[TagCaseID]
}

// StorageStats summarizes the contents of a content store.
type StorageStats struct {
	TotalObjects int64
	TotalBytes   int64
	WormLocked   int64
}
