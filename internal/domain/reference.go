package domain

import (
	"strings"
	"time"
)

// FieldKind identifies which document field a ledger entry belongs to.
// The set is closed: adding a kind means adding a constant here and
// handling it in the owning document's ReferenceFields.
type FieldKind string

const (
	// FieldProjectPoster is the single poster image of a project.
	FieldProjectPoster FieldKind = "project-poster"

	// FieldProjectThumbnail is the single thumbnail of a project.
	FieldProjectThumbnail FieldKind = "project-thumbnail"

	// FieldProjectShowcasePhoto is one entry of a project's showcase photo list.
	FieldProjectShowcasePhoto FieldKind = "project-showcase-photo"

	// FieldUserAvatar is the avatar of a user.
	FieldUserAvatar FieldKind = "user-avatar"

	// FieldUserProfileImage is the profile banner image of a user.
	FieldUserProfileImage FieldKind = "user-profile-image"
)

// AllFieldKinds lists every known field kind.
var AllFieldKinds = []FieldKind{
	FieldProjectPoster,
	FieldProjectThumbnail,
	FieldProjectShowcasePhoto,
	FieldUserAvatar,
	FieldUserProfileImage,
}

// ParseFieldKind converts a string to a FieldKind.
func ParseFieldKind(s string) (FieldKind, error) {
	k := FieldKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", NewDomainError(ErrInvalidFieldKind, "unknown field kind", s)
	}
	return k, nil
}

// Valid returns true if the kind is one of the known kinds.
func (k FieldKind) Valid() bool {
	switch k {
	case FieldProjectPoster, FieldProjectThumbnail, FieldProjectShowcasePhoto,
		FieldUserAvatar, FieldUserProfileImage:
		return true
	}
	return false
}

// IsMulti returns true if the field holds a list of references.
func (k FieldKind) IsMulti() bool {
	return k == FieldProjectShowcasePhoto
}

// String returns the string representation.
func (k FieldKind) String() string {
	return string(k)
}

// Reference is a ledger entry asserting that a document field points at a blob.
// At most one entry exists per (BlobID, OwnerID, Kind).
type Reference struct {
	BlobID    BlobID    `json:"blob_id"`
	OwnerID   string    `json:"owner_id"`
	Kind      FieldKind `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// NewReference creates a new ledger entry.
func NewReference(blobID BlobID, ownerID string, kind FieldKind) *Reference {
	return &Reference{
		BlobID:    blobID,
		OwnerID:   ownerID,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}

// FieldValue is the current content of one reference-bearing document field.
// Scalar fields carry zero or one value.
type FieldValue struct {
	Kind   FieldKind
	Values []string
}

// ScalarField builds a FieldValue for a single-valued field.
// Empty values produce an empty field.
func ScalarField(kind FieldKind, value string) FieldValue {
	if strings.TrimSpace(value) == "" {
		return FieldValue{Kind: kind}
	}
	return FieldValue{Kind: kind, Values: []string{value}}
}

// ListField builds a FieldValue for a list field.
func ListField(kind FieldKind, values []string) FieldValue {
	return FieldValue{Kind: kind, Values: append([]string(nil), values...)}
}

// ReferenceOwner is implemented by documents that carry blob-reference fields.
type ReferenceOwner interface {
	// LedgerOwnerID returns the ledger owner identifier of the document.
	LedgerOwnerID() string

	// ReferenceFields returns every reference-bearing field with its current values.
	ReferenceFields() []FieldValue
}

// ReferencedBlobIDs returns the distinct blob ids referenced by the given fields.
// Malformed values are skipped; callers that must reject them validate first.
func ReferencedBlobIDs(fields []FieldValue) []BlobID {
	seen := make(map[BlobID]struct{})
	var ids []BlobID
	for _, f := range fields {
		for _, v := range f.Values {
			id, ok, err := ParseMediaURL(v)
			if err != nil || !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
