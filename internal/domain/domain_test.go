package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testBlobID = "65f0a1b2c3d4e5f6a7b8c9d0"

func TestParseBlobID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    BlobID
		wantErr bool
	}{
		{"valid", testBlobID, BlobID(testBlobID), false},
		{"uppercase normalized", "65F0A1B2C3D4E5F6A7B8C9D0", BlobID(testBlobID), false},
		{"surrounding space", "  " + testBlobID + " ", BlobID(testBlobID), false},
		{"too short", "abc123", "", true},
		{"too long", testBlobID + "00", "", true},
		{"not hex", "zzf0a1b2c3d4e5f6a7b8c9d0", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBlobID(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidBlobID)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseMediaURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantID  BlobID
		wantOK  bool
		wantErr bool
	}{
		{"blob reference", "/media/" + testBlobID, BlobID(testBlobID), true, false},
		{"padded", " /media/" + testBlobID + "\n", BlobID(testBlobID), true, false},
		{"external https", "https://cdn.example.com/poster.png", "", false, false},
		{"external with media path", "https://example.com/media/" + testBlobID, "", false, false},
		{"empty", "", "", false, false},
		{"malformed id", "/media/not-an-id", "", false, true},
		{"missing id", "/media/", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok, err := ParseMediaURL(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidReference)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantID, id)
		})
	}
}

func TestBlobIDURL(t *testing.T) {
	require.Equal(t, "/media/"+testBlobID, BlobID(testBlobID).URL())
	require.True(t, IsMediaURL(BlobID(testBlobID).URL()))
	require.False(t, IsMediaURL("http://example.com"))
}

func TestFieldKind(t *testing.T) {
	for _, k := range AllFieldKinds {
		require.True(t, k.Valid())
		parsed, err := ParseFieldKind(k.String())
		require.NoError(t, err)
		require.Equal(t, k, parsed)
	}

	_, err := ParseFieldKind("project-banner")
	require.ErrorIs(t, err, ErrInvalidFieldKind)

	require.True(t, FieldProjectShowcasePhoto.IsMulti())
	require.False(t, FieldProjectPoster.IsMulti())
}

func TestProjectReferenceFields(t *testing.T) {
	p := NewProject("Demo", "")
	p.Poster = "/media/" + testBlobID
	p.Thumbnail = ""
	p.ShowcasePhotos = []string{"https://example.com/a.png", "/media/" + testBlobID}

	fields := p.ReferenceFields()
	require.Len(t, fields, 3)
	require.Equal(t, FieldProjectPoster, fields[0].Kind)
	require.Equal(t, []string{"/media/" + testBlobID}, fields[0].Values)
	require.Empty(t, fields[1].Values)
	require.Len(t, fields[2].Values, 2)

	ids := ReferencedBlobIDs(fields)
	require.Equal(t, []BlobID{BlobID(testBlobID)}, ids)
}

func TestProjectSetField(t *testing.T) {
	p := NewProject("Demo", "")
	require.NoError(t, p.SetField(FieldProjectPoster, "/media/a"))
	require.NoError(t, p.SetField(FieldProjectShowcasePhoto, "/media/b"))
	require.NoError(t, p.SetField(FieldProjectShowcasePhoto, "/media/c"))
	require.Equal(t, "/media/a", p.Poster)
	require.Equal(t, []string{"/media/b", "/media/c"}, p.ShowcasePhotos)

	err := p.SetField(FieldUserAvatar, "/media/d")
	require.ErrorIs(t, err, ErrInvalidFieldKind)

	clone := p.Clone()
	clone.ShowcasePhotos[0] = "changed"
	require.Equal(t, "/media/b", p.ShowcasePhotos[0])
}

func TestProjectValidate(t *testing.T) {
	require.ErrorIs(t, NewProject("  ", "").Validate(), ErrProjectTitleRequired)
	require.NoError(t, NewProject("ok", "").Validate())
}

func TestProjectOwnership(t *testing.T) {
	creator := uuid.New()
	p := NewProject("Solar Car", "")
	p.OwnerID = &creator

	var owner ReferenceOwner = p
	require.Equal(t, p.ID.String(), owner.LedgerOwnerID())
	require.NotEqual(t, creator.String(), owner.LedgerOwnerID())
	require.Equal(t, int64(1), p.Version)

	c := p.Clone()
	require.Equal(t, creator, *c.OwnerID)
	*c.OwnerID = uuid.New()
	require.Equal(t, creator, *p.OwnerID)

	u := NewUser("ada", "ada@example.com", "hash")
	owner = u
	require.Equal(t, u.ID.String(), owner.LedgerOwnerID())
}

func TestUserReferenceFields(t *testing.T) {
	u := NewUser("ada", "ada@example.com", "hash")
	u.Avatar = "/media/" + testBlobID
	fields := u.ReferenceFields()
	require.Len(t, fields, 2)
	require.Equal(t, FieldUserAvatar, fields[0].Kind)
	require.Equal(t, FieldUserProfileImage, fields[1].Kind)
	require.Empty(t, fields[1].Values)

	require.ErrorIs(t, u.SetField(FieldProjectPoster, "x"), ErrInvalidFieldKind)
}

func TestDomainError(t *testing.T) {
	err := NewDomainError(ErrBlobNotFound, "lookup failed", testBlobID)
	require.ErrorIs(t, err, ErrBlobNotFound)
	require.Equal(t, "blob not found: lookup failed ("+testBlobID+")", err.Error())

	require.Nil(t, WrapError(nil, "x"))
	require.Equal(t, err, WrapError(err, "ignored"))
}
