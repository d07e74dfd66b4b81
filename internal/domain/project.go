package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Project is a showcased piece of work with optional media.
// Poster, Thumbnail and ShowcasePhotos hold either blob-reference URLs
// (/media/<id>) or external URLs; only the former are tracked.
type Project struct {
	// ID is the unique identifier for the project.
	ID uuid.UUID `json:"id"`

	// Title is the display title. Required.
	Title string `json:"title"`

	// Description is free-form text.
	Description string `json:"description"`

	// Poster is the poster image URL.
	Poster string `json:"poster,omitempty"`

	// Thumbnail is the thumbnail image URL.
	Thumbnail string `json:"thumbnail,omitempty"`

	// ShowcasePhotos is an ordered list of photo URLs.
	ShowcasePhotos []string `json:"showcase_photos"`

	// ExternalURL links to the project's own site. Never tracked.
	ExternalURL string `json:"external_url,omitempty"`

	// OwnerID is the contributor who created the project (may be nil).
	OwnerID *uuid.UUID `json:"owner_id,omitempty"`

	// Version increases by one on every stored update. A write carrying a
	// stale version is rejected with ErrConcurrentUpdate.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProject creates a new Project with a fresh id.
func NewProject(title, description string) *Project {
	now := time.Now().UTC()
	return &Project{
		ID:             uuid.New(),
		Title:          title,
		Description:    description,
		ShowcasePhotos: []string{},
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks the project's own fields.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrProjectTitleRequired
	}
	return nil
}

// LedgerOwnerID implements ReferenceOwner.
func (p *Project) LedgerOwnerID() string {
	return p.ID.String()
}

// ReferenceFields implements ReferenceOwner.
func (p *Project) ReferenceFields() []FieldValue {
	return []FieldValue{
		ScalarField(FieldProjectPoster, p.Poster),
		ScalarField(FieldProjectThumbnail, p.Thumbnail),
		ListField(FieldProjectShowcasePhoto, p.ShowcasePhotos),
	}
}

// SetField assigns a URL to the field of the given kind.
// List fields get the URL appended.
func (p *Project) SetField(kind FieldKind, url string) error {
	switch kind {
	case FieldProjectPoster:
		p.Poster = url
	case FieldProjectThumbnail:
		p.Thumbnail = url
	case FieldProjectShowcasePhoto:
		p.ShowcasePhotos = append(p.ShowcasePhotos, url)
	default:
		return NewDomainError(ErrInvalidFieldKind, "not a project field", kind.String())
	}
	return nil
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	c := *p
	c.ShowcasePhotos = append([]string{}, p.ShowcasePhotos...)
	if p.OwnerID != nil {
		id := *p.OwnerID
		c.OwnerID = &id
	}
	return &c
}
