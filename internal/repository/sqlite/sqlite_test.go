package sqlite

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/showcase-portal/internal/domain"
	"github.com/prn-tf/showcase-portal/internal/repository"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	db, err := NewDB(ctx, DefaultConfig(MemoryPath), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return db
}

func blobID(n int) domain.BlobID {
	return domain.BlobID("65f0a1b2c3d4e5f6a7b8" + []string{"0000", "0001", "0002", "0003", "0004", "0005"}[n])
}

func createBlob(t *testing.T, repo repository.BlobRepository, id domain.BlobID, createdAt time.Time) *domain.Blob {
	t.Helper()
	b := domain.NewBlob(id, "file.png", "image/png", 42, "abc")
	b.CreatedAt = createdAt
	require.NoError(t, repo.Create(context.Background(), b))
	return b
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Migrate(ctx))

	version, err := db.SchemaVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, version)

	statuses, err := db.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	require.True(t, statuses[0].Applied)
	require.Equal(t, "init", statuses[0].Name)
}

func TestBlobRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewBlobRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	created := createBlob(t, repo, blobID(1), now.Add(-2*time.Hour))

	got, err := repo.GetByID(ctx, blobID(1))
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, "image/png", got.ContentType)
	require.Equal(t, blobID(1).String(), got.StorageKey)
	require.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Microsecond)

	exists, err := repo.Exists(ctx, blobID(1))
	require.NoError(t, err)
	require.True(t, exists)

	count, size, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
	require.Equal(t, int64(42), size)

	require.NoError(t, repo.Delete(ctx, blobID(1)))
	require.ErrorIs(t, repo.Delete(ctx, blobID(1)), domain.ErrBlobNotFound)

	_, err = repo.GetByID(ctx, blobID(1))
	require.ErrorIs(t, err, domain.ErrBlobNotFound)
}

func TestBlobRepository_ListOlderThan(t *testing.T) {
	db := newTestDB(t)
	repo := NewBlobRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	createBlob(t, repo, blobID(1), now.Add(-3*time.Hour))
	createBlob(t, repo, blobID(2), now.Add(-2*time.Hour))
	createBlob(t, repo, blobID(3), now.Add(-1*time.Hour))
	createBlob(t, repo, blobID(4), now)

	cutoff := now.Add(-30 * time.Minute)
	// A blob created exactly at the cutoff is not older than it.
	createBlob(t, repo, blobID(5), cutoff)

	page, err := repo.ListOlderThan(ctx, cutoff, "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, blobID(1), page[0].ID)
	require.Equal(t, blobID(2), page[1].ID)

	page, err = repo.ListOlderThan(ctx, cutoff, page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, blobID(3), page[0].ID)

	ids, err := repo.ListIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 5)
}

func TestReferenceRepository_Idempotent(t *testing.T) {
	db := newTestDB(t)
	blobs := NewBlobRepository(db)
	refs := NewReferenceRepository(db)
	ctx := context.Background()

	createBlob(t, blobs, blobID(1), time.Now())
	owner := uuid.NewString()

	ref := domain.NewReference(blobID(1), owner, domain.FieldProjectPoster)
	require.NoError(t, refs.Add(ctx, ref))
	require.NoError(t, refs.Add(ctx, ref))

	count, err := refs.CountForBlob(ctx, blobID(1))
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	// Removing an absent entry leaves state unchanged.
	require.NoError(t, refs.Remove(ctx, blobID(1), owner, domain.FieldProjectThumbnail))
	require.NoError(t, refs.Remove(ctx, blobID(2), owner, domain.FieldProjectPoster))
	count, err = refs.CountForBlob(ctx, blobID(1))
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	require.NoError(t, refs.Remove(ctx, blobID(1), owner, domain.FieldProjectPoster))
	require.NoError(t, refs.Remove(ctx, blobID(1), owner, domain.FieldProjectPoster))

	has, err := refs.HasAny(ctx, blobID(1))
	require.NoError(t, err)
	require.False(t, has)
}

func TestReferenceRepository_AddRequiresBlob(t *testing.T) {
	db := newTestDB(t)
	refs := NewReferenceRepository(db)
	ctx := context.Background()

	err := refs.Add(ctx, domain.NewReference(blobID(5), "owner", domain.FieldUserAvatar))
	require.ErrorIs(t, err, domain.ErrBlobNotFound)

	all, err := refs.ListAll(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestReferenceRepository_Bulk(t *testing.T) {
	db := newTestDB(t)
	blobs := NewBlobRepository(db)
	refs := NewReferenceRepository(db)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		createBlob(t, blobs, blobID(i), time.Now())
	}

	ownerA, ownerB := "owner-a", "owner-b"
	require.NoError(t, refs.Add(ctx, domain.NewReference(blobID(1), ownerA, domain.FieldProjectPoster)))
	require.NoError(t, refs.Add(ctx, domain.NewReference(blobID(2), ownerA, domain.FieldProjectShowcasePhoto)))
	require.NoError(t, refs.Add(ctx, domain.NewReference(blobID(2), ownerA, domain.FieldProjectThumbnail)))
	require.NoError(t, refs.Add(ctx, domain.NewReference(blobID(3), ownerB, domain.FieldUserAvatar)))
	require.NoError(t, refs.Add(ctx, domain.NewReference(blobID(1), ownerB, domain.FieldUserProfileImage)))

	ids, err := refs.ListBlobIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.BlobID{blobID(1), blobID(2), blobID(3)}, ids)

	forA, err := refs.ListForOwner(ctx, ownerA)
	require.NoError(t, err)
	require.Len(t, forA, 3)

	affected, err := refs.RemoveAllForOwner(ctx, ownerA)
	require.NoError(t, err)
	sort.Slice(affected, func(i, j int) bool { return affected[i] < affected[j] })
	require.Equal(t, []domain.BlobID{blobID(1), blobID(2)}, affected)

	has, err := refs.HasAny(ctx, blobID(2))
	require.NoError(t, err)
	require.False(t, has)

	// blob 1 is still referenced by owner B.
	has, err = refs.HasAny(ctx, blobID(1))
	require.NoError(t, err)
	require.True(t, has)

	removed, err := refs.RemoveAllForBlob(ctx, blobID(1))
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	all, err := refs.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, blobID(3), all[0].BlobID)
	require.Equal(t, domain.FieldUserAvatar, all[0].Kind)
}

func TestBlobRepository_DeleteIfUnreferenced(t *testing.T) {
	db := newTestDB(t)
	blobs := NewBlobRepository(db)
	refs := NewReferenceRepository(db)
	ctx := context.Background()

	createBlob(t, blobs, blobID(1), time.Now())
	require.NoError(t, refs.Add(ctx, domain.NewReference(blobID(1), "o", domain.FieldUserAvatar)))

	_, err := blobs.DeleteIfUnreferenced(ctx, blobID(1))
	require.ErrorIs(t, err, domain.ErrBlobReferenced)

	require.NoError(t, refs.Remove(ctx, blobID(1), "o", domain.FieldUserAvatar))

	deleted, err := blobs.DeleteIfUnreferenced(ctx, blobID(1))
	require.NoError(t, err)
	require.Equal(t, blobID(1), deleted.ID)

	_, err = blobs.DeleteIfUnreferenced(ctx, blobID(1))
	require.ErrorIs(t, err, domain.ErrBlobNotFound)
}

func TestStaleAndUnreferencedCounts(t *testing.T) {
	db := newTestDB(t)
	blobs := NewBlobRepository(db)
	refs := NewReferenceRepository(db)
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)

	createBlob(t, blobs, blobID(1), old)
	createBlob(t, blobs, blobID(2), old)
	require.NoError(t, refs.Add(ctx, domain.NewReference(blobID(2), "o", domain.FieldUserAvatar)))
	createBlob(t, blobs, blobID(3), old)
	require.NoError(t, refs.Add(ctx, domain.NewReference(blobID(3), "o", domain.FieldUserProfileImage)))
	require.NoError(t, blobs.Delete(ctx, blobID(3)))

	orphans, err := blobs.CountUnreferenced(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), orphans)

	stale, err := refs.CountStale(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stale)
}

func TestProjectRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := domain.NewProject("Solar Car", "Built in a garage")
	p.Poster = "/media/" + blobID(1).String()
	p.ShowcasePhotos = []string{"/media/" + blobID(2).String(), "https://example.com/x.jpg"}
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Title, got.Title)
	require.Equal(t, p.Poster, got.Poster)
	require.Equal(t, p.ShowcasePhotos, got.ShowcasePhotos)
	require.Nil(t, got.OwnerID)

	got.Thumbnail = "/media/" + blobID(3).String()
	got.ShowcasePhotos = nil
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "/media/"+blobID(3).String(), got.Thumbnail)
	require.Empty(t, got.ShowcasePhotos)

	list, err := repo.List(ctx, repository.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, int64(1), list.Total)
	require.Len(t, list.Items, 1)

	require.NoError(t, repo.Delete(ctx, p.ID))
	require.ErrorIs(t, repo.Delete(ctx, p.ID), domain.ErrProjectNotFound)
	_, err = repo.GetByID(ctx, p.ID)
	require.ErrorIs(t, err, domain.ErrProjectNotFound)
	require.ErrorIs(t, repo.Update(ctx, p), domain.ErrProjectNotFound)
}

func TestProjectRepository_VersionCheck(t *testing.T) {
	db := newTestDB(t)
	repo := NewProjectRepository(db)
	ctx := context.Background()

	p := domain.NewProject("Contested", "")
	require.NoError(t, repo.Create(ctx, p))

	first, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)

	first.Title = "First"
	require.NoError(t, repo.Update(ctx, first))
	require.Equal(t, int64(2), first.Version)

	second.Title = "Second"
	require.ErrorIs(t, repo.Update(ctx, second), domain.ErrConcurrentUpdate)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "First", got.Title)
	require.Equal(t, int64(2), got.Version)

	ghost := uuid.New()
	orphan := domain.NewProject("Ownerless", "")
	orphan.OwnerID = &ghost
	require.ErrorIs(t, repo.Create(ctx, orphan), domain.ErrUserNotFound)
}

func TestUserRepository(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := domain.NewUser("ada", "ada@example.com", "hash")
	u.Avatar = "/media/" + blobID(1).String()
	require.NoError(t, repo.Create(ctx, u))

	dup := domain.NewUser("ada", "other@example.com", "hash")
	require.ErrorIs(t, repo.Create(ctx, dup), domain.ErrUserAlreadyExists)

	got, err := repo.GetByUsername(ctx, "ada")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, u.Avatar, got.Avatar)

	exists, err := repo.ExistsByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.True(t, exists)

	stale := *got
	got.Bio = "pioneer"
	require.NoError(t, repo.Update(ctx, got))
	stale.Bio = "stale"
	require.ErrorIs(t, repo.Update(ctx, &stale), domain.ErrConcurrentUpdate)
	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "pioneer", got.Bio)

	// Deleting a user detaches their projects.
	projects := NewProjectRepository(db)
	p := domain.NewProject("Owned", "")
	p.OwnerID = &u.ID
	require.NoError(t, projects.Create(ctx, p))

	require.NoError(t, repo.Delete(ctx, u.ID))
	_, err = repo.GetByID(ctx, u.ID)
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	p, err = projects.GetByID(ctx, p.ID)
	require.NoError(t, err)
	require.Nil(t, p.OwnerID)
}
