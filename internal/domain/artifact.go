package domain

import (
	"strings"
	"time"
)

// ArtifactKind enumerates stored blob categories.
type ArtifactKind string

const (
	ArtifactRaw       ArtifactKind = "raw-generated"
	ArtifactPreview   ArtifactKind = "watermarked-preview"
	ArtifactAssembled ArtifactKind = "assembled-pdf"
)

// Suffix is the id marker used for the kind in the store namespace.
func (k ArtifactKind) Suffix() string {
	switch k {
	case ArtifactRaw:
		return "raw"
	case ArtifactPreview:
		return "watermarked"
	case ArtifactAssembled:
		return "book"
	default:
		return "blob"
	}
}

// KindFromID recovers the kind from an artifact id such as "<uuid>_raw.jpg".
func KindFromID(id string) ArtifactKind {
	base := id
	if dot := strings.LastIndex(base, "."); dot >= 0 {
		base = base[:dot]
	}
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return ""
	}
	switch base[idx+1:] {
	case "raw":
		return ArtifactRaw
	case "watermarked":
		return ArtifactPreview
	case "book":
		return ArtifactAssembled
	}
	return ""
}

// Artifact is an immutable stored output with a bounded lifetime.
type Artifact struct {
	ID          string
	Kind        ArtifactKind
	Path        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// Age returns how long the artifact has existed at now.
func (a Artifact) Age(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}
