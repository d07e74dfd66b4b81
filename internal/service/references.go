package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/metrics"
	"github.com/prn-tf/showcase-portal/internal/repository"
)

// ReferenceChange is one ledger entry to add or remove for a document.
type ReferenceChange struct {
	BlobID domain.BlobID
	Kind   domain.FieldKind
}

// ReferenceChanges is the ledger delta between two versions of a document.
type ReferenceChanges struct {
	Added   []ReferenceChange
	Removed []ReferenceChange
}

// IsEmpty reports whether the ledger needs no change.
func (c ReferenceChanges) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0
}

// DiffReferences compares the reference fields of two document versions.
//
// Values are compared per field kind by the blob id they name, so list
// reordering and repeated values produce no change. Empty values and external
// URLs are ignored. Malformed media URLs in next are rejected with
// domain.ErrInvalidReference; malformed values in prev are skipped since they
// never produced a ledger entry.
func DiffReferences(prev, next []domain.FieldValue) (ReferenceChanges, error) {
	before, _, err := collectReferences(prev, false)
	if err != nil {
		return ReferenceChanges{}, err
	}
	after, afterSet, err := collectReferences(next, true)
	if err != nil {
		return ReferenceChanges{}, err
	}

	beforeSet := make(map[ReferenceChange]struct{}, len(before))
	for _, ref := range before {
		beforeSet[ref] = struct{}{}
	}

	var changes ReferenceChanges
	for _, ref := range after {
		if _, ok := beforeSet[ref]; !ok {
			changes.Added = append(changes.Added, ref)
		}
	}
	for _, ref := range before {
		if _, ok := afterSet[ref]; !ok {
			changes.Removed = append(changes.Removed, ref)
		}
	}
	return changes, nil
}

// collectReferences returns the distinct (blob, kind) pairs named by fields
// in field order. With strict set, malformed values and unknown kinds fail.
func collectReferences(fields []domain.FieldValue, strict bool) ([]ReferenceChange, map[ReferenceChange]struct{}, error) {
	var refs []ReferenceChange
	set := make(map[ReferenceChange]struct{})
	for _, f := range fields {
		if strict && !f.Kind.Valid() {
			return nil, nil, domain.NewDomainError(domain.ErrInvalidFieldKind, "unknown field kind", f.Kind.String())
		}
		for _, v := range f.Values {
			id, ok, err := domain.ParseMediaURL(v)
			if err != nil {
				if strict {
					return nil, nil, err
				}
				continue
			}
			if !ok {
				continue
			}
			ref := ReferenceChange{BlobID: id, Kind: f.Kind}
			if _, dup := set[ref]; dup {
				continue
			}
			set[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}
	return refs, set, nil
}

// referenceTracker keeps the ledger in step with document writes.
//
// New references are added before the document write so a blob is never
// reachable from a document without an entry. Old references are removed
// after the write succeeds, and each blob that lost an entry is offered to
// the reclaimer. Failures after a successful write are logged, never
// returned: the document write stands and the sweep repairs the ledger.
type referenceTracker struct {
	refRepo   repository.ReferenceRepository
	blobs     *BlobService
	reclaimer Reclaimer
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func newReferenceTracker(
	refRepo repository.ReferenceRepository,
	blobs *BlobService,
	reclaimer Reclaimer,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *referenceTracker {
	return &referenceTracker{
		refRepo:   refRepo,
		blobs:     blobs,
		reclaimer: reclaimer,
		metrics:   m,
		logger:    logger,
	}
}

// add records the ledger entries of changes for ownerID and registers their
// removal with comp. A missing blob is reported as domain.ErrInvalidReference.
func (t *referenceTracker) add(ctx context.Context, ownerID string, changes []ReferenceChange, comp *Compensator) error {
	for _, c := range changes {
		err := t.refRepo.Add(ctx, domain.NewReference(c.BlobID, ownerID, c.Kind))
		if err != nil {
			if errors.Is(err, domain.ErrBlobNotFound) {
				return domain.NewDomainError(domain.ErrInvalidReference, "blob does not exist", c.BlobID.String())
			}
			t.logger.Error().Err(err).
				Str("blob_id", c.BlobID.String()).
				Str("owner_id", ownerID).
				Msg("failed to add reference")
			return fmt.Errorf("%w: %v", ErrInternalError, err)
		}

		comp.Add("remove reference "+c.BlobID.String(), func(ctx context.Context) error {
			return t.refRepo.Remove(ctx, c.BlobID, ownerID, c.Kind)
		})
	}
	return nil
}

// release removes the ledger entries of changes and reclaims the blobs that
// lost their last reference.
func (t *referenceTracker) release(ctx context.Context, ownerID string, changes []ReferenceChange) {
	if len(changes) == 0 {
		return
	}

	var released []domain.BlobID
	for _, c := range changes {
		if err := t.refRepo.Remove(ctx, c.BlobID, ownerID, c.Kind); err != nil {
			t.logger.Error().Err(err).
				Str("blob_id", c.BlobID.String()).
				Str("owner_id", ownerID).
				Str("kind", c.Kind.String()).
				Msg("failed to remove reference")
			continue
		}
		released = append(released, c.BlobID)
	}
	t.reclaim(ctx, released)
}

// releaseOwner removes every ledger entry of a deleted document and reclaims
// the blobs that lost their last reference.
func (t *referenceTracker) releaseOwner(ctx context.Context, ownerID string) {
	released, err := t.refRepo.RemoveAllForOwner(ctx, ownerID)
	if err != nil {
		t.logger.Error().Err(err).Str("owner_id", ownerID).Msg("failed to remove references of deleted document")
		return
	}
	t.reclaim(ctx, released)
}

func (t *referenceTracker) reclaim(ctx context.Context, ids []domain.BlobID) {
	seen := make(map[domain.BlobID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if _, err := t.reclaimer.ReclaimIfOrphaned(ctx, id); err != nil {
			t.logger.Warn().Err(err).Str("blob_id", id.String()).Msg("failed to reclaim blob; sweep will retry")
		}
	}
}

// update runs a document write bracketed by ledger maintenance: entries for
// references new in next are added first, write runs, then entries for
// references dropped from prev are removed. If write fails the added
// entries are removed again.
func (t *referenceTracker) update(ctx context.Context, prev, next domain.ReferenceOwner, write func(ctx context.Context) error) error {
	changes, err := DiffReferences(prev.ReferenceFields(), next.ReferenceFields())
	if err != nil {
		return err
	}

	comp := NewCompensator(t.metrics, t.logger)
	if err := t.add(ctx, next.LedgerOwnerID(), changes.Added, comp); err != nil {
		comp.Rollback(ctx)
		return err
	}

	if err := write(ctx); err != nil {
		comp.Rollback(ctx)
		return err
	}
	comp.Discard()

	t.release(ctx, next.LedgerOwnerID(), changes.Removed)
	return nil
}

// MediaUpload is a file to store and link into a document field.
type MediaUpload struct {
	Kind   domain.FieldKind
	Upload UploadInput
}

// mediaDocument is a document whose fields can receive uploaded media.
type mediaDocument interface {
	domain.ReferenceOwner
	SetField(kind domain.FieldKind, url string) error
}

// create stores every upload, links it into doc, inserts doc and then
// records the ledger entries of every media reference doc carries. If an
// upload or the insert fails, every blob uploaded so far is deleted and the
// error is returned.
func (t *referenceTracker) create(ctx context.Context, doc mediaDocument, uploads []MediaUpload, insert func(ctx context.Context) error) error {
	// References supplied directly must name existing blobs.
	changes, err := DiffReferences(nil, doc.ReferenceFields())
	if err != nil {
		return err
	}
	for _, c := range changes.Added {
		exists, err := t.blobs.Exists(ctx, c.BlobID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.NewDomainError(domain.ErrInvalidReference, "blob does not exist", c.BlobID.String())
		}
	}

	comp := NewCompensator(t.metrics, t.logger)
	for _, u := range uploads {
		if !u.Kind.Valid() {
			comp.Rollback(ctx)
			return domain.NewDomainError(domain.ErrInvalidFieldKind, "unknown field kind", u.Kind.String())
		}

		blob, err := t.blobs.Upload(ctx, u.Upload)
		if err != nil {
			comp.Rollback(ctx)
			return err
		}

		id := blob.ID
		comp.Add("delete blob "+id.String(), func(ctx context.Context) error {
			if err := t.blobs.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
				return err
			}
			return nil
		})

		if err := doc.SetField(u.Kind, blob.URL()); err != nil {
			comp.Rollback(ctx)
			return err
		}
	}

	if err := insert(ctx); err != nil {
		comp.Rollback(ctx)
		return err
	}
	comp.Discard()

	changes, _ = DiffReferences(nil, doc.ReferenceFields())
	for _, c := range changes.Added {
		if err := t.refRepo.Add(ctx, domain.NewReference(c.BlobID, doc.LedgerOwnerID(), c.Kind)); err != nil {
			t.logger.Error().Err(err).
				Str("blob_id", c.BlobID.String()).
				Str("owner_id", doc.LedgerOwnerID()).
				Msg("failed to add reference for new document")
		}
	}
	return nil
}

// attach stores one upload and links it into an existing document through
// update. The uploaded blob is deleted if the update fails.
func (t *referenceTracker) attach(ctx context.Context, prev, next mediaDocument, upload MediaUpload, write func(ctx context.Context) error) (*domain.Blob, error) {
	if !upload.Kind.Valid() {
		return nil, domain.NewDomainError(domain.ErrInvalidFieldKind, "unknown field kind", upload.Kind.String())
	}

	blob, err := t.blobs.Upload(ctx, upload.Upload)
	if err != nil {
		return nil, err
	}

	comp := NewCompensator(t.metrics, t.logger)
	comp.Add("delete blob "+blob.ID.String(), func(ctx context.Context) error {
		if err := t.blobs.Delete(ctx, blob.ID); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
			return err
		}
		return nil
	})

	if err := next.SetField(upload.Kind, blob.URL()); err != nil {
		comp.Rollback(ctx)
		return nil, err
	}

	if err := t.update(ctx, prev, next, write); err != nil {
		comp.Rollback(ctx)
		return nil, err
	}
	return blob, nil
}
