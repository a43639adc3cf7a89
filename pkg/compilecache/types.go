package compilecache

import (
	"strings"
	"time"

	"github.com/platinummonkey/prism/pkg/errdefs"
	"github.com/platinummonkey/prism/pkg/storage"
)

// Status classifies a resolve outcome
type Status string

const (
	StatusCached  Status = "cached"
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
	StatusError   Status = "error"
)

// WriteMode selects what MetaStore.Write persists
type WriteMode string

const (
	// WriteCreated persists a first compile
	WriteCreated WriteMode = "created"
	// WriteUpdated replaces an invalidated entry, keeping createdAt
	WriteUpdated WriteMode = "updated"
	// WriteRevalidated only updates hit counters
	WriteRevalidated WriteMode = "revalidated"
)

// Reason explains why a meta record failed validation
type Reason string

const (
	ReasonContentNotFound            Reason = "CONTENT_NOT_FOUND"
	ReasonContentFingerprintMismatch Reason = "CONTENT_FINGERPRINT_MISMATCH"
	ReasonPreconditionMismatch       Reason = "PRECONDITION_MISMATCH"
	ReasonSourcesEmpty               Reason = "SOURCES_EMPTY"
	ReasonSourceFingerprintMismatch  Reason = "SOURCE_FINGERPRINT_MISMATCH"
	ReasonSourceNotFound             Reason = "SOURCE_NOT_FOUND"
	ReasonAssetFingerprintMismatch   Reason = "ASSET_FINGERPRINT_MISMATCH"
	ReasonAssetNotFound              Reason = "ASSET_NOT_FOUND"
)

// ArtifactKey identifies one cacheable compiled output
type ArtifactKey struct {
	// Resource is the source key relative to the project root
	Resource string
	// GroupID is the compile group the output targets
	GroupID string
}

func (k ArtifactKey) String() string {
	return k.GroupID + ":" + k.Resource
}

// Validate checks that both parts are usable as path segments
func (k ArtifactKey) Validate() error {
	if _, err := storage.CleanKey(k.Resource); err != nil {
		return errdefs.Validation("resource", "invalid resource %q", k.Resource)
	}
	if strings.Contains(k.Resource, assetSuffix) {
		return errdefs.Validation("resource", "resource must not contain %q", assetSuffix)
	}
	if k.GroupID == "" || k.GroupID == "." || k.GroupID == ".." || strings.ContainsAny(k.GroupID, `/\`) {
		return errdefs.Validation("groupId", "invalid group id %q", k.GroupID)
	}
	return nil
}

// Meta is the persisted metadata of one artifact. Sources and Assets are
// slash paths relative to the directory holding the meta record.
type Meta struct {
	ContentType        string         `json:"contentType"`
	ContentFingerprint string         `json:"contentFingerprint"`
	Sources            []string       `json:"sources"`
	SourcesFingerprint []string       `json:"sourcesFingerprint"`
	Assets             []string       `json:"assets"`
	AssetsFingerprint  []string       `json:"assetsFingerprint"`
	CreatedAt          time.Time      `json:"createdAt"`
	LastModifiedAt     time.Time      `json:"lastModifiedAt"`
	HitCount           int64          `json:"hitCount,omitempty"`
	LastHitAt          *time.Time     `json:"lastHitAt,omitempty"`
	Extra              map[string]any `json:"extra,omitempty"`
}

// LastUsed returns the last hit time, or the last modification time when no
// hit was recorded.
func (m *Meta) LastUsed() time.Time {
	if m.LastHitAt != nil && m.LastHitAt.After(m.LastModifiedAt) {
		return *m.LastHitAt
	}
	return m.LastModifiedAt
}

// Preconditions are caller supplied expectations about cached content. At
// most one field may be set.
type Preconditions struct {
	// ETag is the expected content fingerprint
	ETag string
	// IfModifiedSince rejects content modified after this instant
	IfModifiedSince time.Time
}

// Validate rejects preconditions setting both fields
func (p Preconditions) Validate() error {
	if p.ETag != "" && !p.IfModifiedSince.IsZero() {
		return errdefs.Validation("preconditions", "etag and if-modified-since are mutually exclusive")
	}
	return nil
}

// Validation is the outcome of MetaStore.Validate
type Validation struct {
	Valid  bool
	Reason Reason
	// Data carries reason details such as the offending path
	Data map[string]any
	// Content is the compiled content read during validation, when present
	Content []byte
}

// Timing breaks down the time spent in one resolve
type Timing struct {
	Lock    time.Duration
	Compile time.Duration
	Total   time.Duration
}

// Result is the outcome of one resolve
type Result struct {
	Status      Status
	Content     []byte
	ContentType string
	// Fingerprint of Content
	Fingerprint string
	// Extra passes through the compiler's extra fields
	Extra  map[string]any
	Timing Timing
	// Meta is the metadata in effect after the resolve, nil when uncached
	Meta *Meta
	// Err is the compiler diagnostic when Status is StatusError
	Err *errdefs.ParseError

	compiled *CompileResult
}
