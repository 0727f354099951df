package services_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"piccsync-backend/internal/config"
	"piccsync-backend/internal/models"
	"piccsync-backend/internal/services"
	"piccsync-backend/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type photoFixture struct {
	db      *testutil.DB
	objects *testutil.Objects
	events  *testutil.Recorder
	dir     *testutil.Directory
	photos  *services.PhotoService
	groups  *services.GroupService
	adminID string
	ownerID string
	otherID string
}

func newPhotoFixture(t *testing.T) *photoFixture {
	t.Helper()
	f := &photoFixture{
		db:      testutil.NewDB(),
		objects: testutil.NewObjects(),
		events:  &testutil.Recorder{},
		adminID: uuid.NewString(),
		ownerID: uuid.NewString(),
		otherID: uuid.NewString(),
	}
	f.dir = testutil.NewDirectory(
		&models.Account{ID: f.ownerID, Email: "owner@example.com"},
		&models.Account{ID: f.otherID, Email: "other@example.com"},
	)
	admins := config.AdminSet{f.adminID: {}}
	f.photos = services.NewPhotoService(f.db.Photos(), f.db.Members(), f.objects, admins, f.events)
	f.groups = services.NewGroupService(f.db.Groups(), f.db.Members(), f.objects, f.dir, f.events)
	return f
}

func (f *photoFixture) upload(t *testing.T, userID, name, mime, visibility string, data []byte) *services.PhotoWithURL {
	t.Helper()
	p, err := f.photos.Upload(context.Background(), services.UploadInput{
		UserID:      userID,
		Filename:    name,
		ContentType: mime,
		Visibility:  visibility,
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	})
	require.NoError(t, err)
	return p
}

func TestUploadThenGetPreservesMetadata(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()
	data := bytes.Repeat([]byte{0xff}, 10*1024*1024)

	up := f.upload(t, f.ownerID, "beach.jpg", "image/jpeg", "", data)
	assert.Equal(t, models.VisibilityPrivate, up.Visibility)
	assert.Nil(t, up.PublicLink)
	require.NotNil(t, up.URL)
	assert.True(t, strings.HasPrefix(up.R2Key, "uploads/"+f.ownerID+"/"))
	assert.True(t, strings.HasSuffix(up.R2Key, "-beach.jpg"))

	got, err := f.photos.Get(ctx, up.ID, f.ownerID)
	require.NoError(t, err)
	assert.Equal(t, "beach.jpg", got.Filename)
	assert.Equal(t, int64(len(data)), got.FileSize)
	assert.Equal(t, "image/jpeg", got.MimeType)

	list, err := f.photos.ListPersonal(ctx, f.ownerID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].URL)

	usage, err := f.photos.StorageUsage(ctx, f.ownerID)
	require.NoError(t, err)
	assert.Equal(t, int64(10485760), usage.Used)
	assert.Equal(t, services.StorageQuota, usage.Limit)
	assert.Equal(t, services.StorageQuota-10485760, usage.Remaining)
	assert.Equal(t, 1, usage.Percentage)

	stored, ok := f.objects.Bytes(up.R2Key)
	require.True(t, ok)
	assert.Len(t, stored, len(data))
}

func TestUploadOverQuotaWritesNothing(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Photos().Create(ctx, &models.Photo{
		ID: uuid.NewString(), UserID: f.ownerID, Filename: "big.mp4", R2Key: "uploads/x/big.mp4",
		Visibility: models.VisibilityPrivate, FileSize: services.StorageQuota - 100, MimeType: "video/mp4",
		CreatedAt: time.Now(),
	}))

	data := make([]byte, 200)
	_, err := f.photos.Upload(ctx, services.UploadInput{
		UserID: f.ownerID, Filename: "a.png", ContentType: "image/png", Size: 200, Body: bytes.NewReader(data),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrQuotaExceeded)
	assert.Equal(t, "Storage quota exceeded. You have 0MB remaining.", services.PublicMessage(err, ""))
	assert.Equal(t, 0, f.objects.Len())
	assert.Equal(t, 1, f.db.Photos().Count())

	ok := make([]byte, 100)
	f.upload(t, f.ownerID, "b.png", "image/png", "", ok)
}

func TestUploadValidation(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   services.UploadInput
		kind error
	}{
		{"no file", services.UploadInput{UserID: f.ownerID, Filename: "a.jpg"}, services.ErrInvalidInput},
		{"bad visibility", services.UploadInput{
			UserID: f.ownerID, Filename: "a.jpg", ContentType: "image/jpeg", Visibility: "friends",
			Size: 1, Body: bytes.NewReader([]byte{1}),
		}, services.ErrInvalidInput},
		{"bad type", services.UploadInput{
			UserID: f.ownerID, Filename: "a.txt", ContentType: "text/plain", Size: 1, Body: bytes.NewReader([]byte{1}),
		}, services.ErrInvalidInput},
		{"not a member", services.UploadInput{
			UserID: f.ownerID, Filename: "a.jpg", ContentType: "image/jpeg", GroupID: uuid.NewString(),
			Size: 1, Body: bytes.NewReader([]byte{1}),
		}, services.ErrForbidden},
		{"malformed group", services.UploadInput{
			UserID: f.ownerID, Filename: "a.jpg", ContentType: "image/jpeg", GroupID: "nope",
			Size: 1, Body: bytes.NewReader([]byte{1}),
		}, services.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.photos.Upload(ctx, tt.in)
			assert.ErrorIs(t, err, tt.kind)
		})
	}
	assert.Equal(t, 0, f.objects.Len())
}

func TestUploadNormalizesVideoType(t *testing.T) {
	f := newPhotoFixture(t)
	up := f.upload(t, f.ownerID, "clip.mov", "application/octet-stream", "private", []byte("moov"))
	assert.Equal(t, "video/quicktime", up.MimeType)
}

func TestUploadCreatesMissingBucketOnce(t *testing.T) {
	f := newPhotoFixture(t)
	f.objects.BucketMissing = true

	up := f.upload(t, f.ownerID, "a.jpg", "image/jpeg", "", []byte("jpegdata"))
	assert.Equal(t, 1, f.objects.BucketCreates)

	stored, ok := f.objects.Bytes(up.R2Key)
	require.True(t, ok)
	assert.Equal(t, []byte("jpegdata"), stored)
}

func TestUploadStorageFailure(t *testing.T) {
	f := newPhotoFixture(t)
	f.objects.PutErr = errors.New("connection reset")

	_, err := f.photos.Upload(context.Background(), services.UploadInput{
		UserID: f.ownerID, Filename: "a.jpg", ContentType: "image/jpeg", Size: 1, Body: bytes.NewReader([]byte{1}),
	})
	assert.ErrorIs(t, err, services.ErrUpstream)
	assert.Equal(t, 0, f.db.Photos().Count())
}

func TestPublicFetch(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()

	priv := f.upload(t, f.ownerID, "secret.jpg", "image/jpeg", "private", []byte("a"))
	pub := f.upload(t, f.ownerID, "open.png", "image/png", "public", []byte("bb"))
	require.NotNil(t, pub.PublicLink)
	assert.True(t, strings.HasPrefix(*pub.PublicLink, "photo-"))

	got, err := f.photos.PublicFetch(ctx, *pub.PublicLink)
	require.NoError(t, err)
	assert.Equal(t, pub.Filename, got.Filename)
	assert.Equal(t, pub.FileSize, got.FileSize)
	assert.Equal(t, pub.MimeType, got.MimeType)

	_, err = f.photos.PublicFetch(ctx, "")
	assert.ErrorIs(t, err, services.ErrNotFound)
	_, err = f.photos.PublicFetch(ctx, "photo-missing")
	assert.ErrorIs(t, err, services.ErrNotFound)

	// A private record cannot be reached even through a link it held earlier.
	public := "public"
	updated, err := f.photos.Update(ctx, priv.ID, f.ownerID, &public, nil)
	require.NoError(t, err)
	link := *updated.PublicLink
	private := "private"
	updated, err = f.photos.Update(ctx, priv.ID, f.ownerID, &private, nil)
	require.NoError(t, err)
	assert.Nil(t, updated.PublicLink)
	_, err = f.photos.PublicFetch(ctx, link)
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Equal(t, "Photo not found or not public", services.PublicMessage(err, ""))
}

func TestPublishTwiceKeepsLink(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()
	p := f.upload(t, f.ownerID, "a.jpg", "image/jpeg", "", []byte("a"))

	public := "public"
	first, err := f.photos.Update(ctx, p.ID, f.ownerID, &public, nil)
	require.NoError(t, err)
	second, err := f.photos.Update(ctx, p.ID, f.ownerID, &public, nil)
	require.NoError(t, err)
	require.NotNil(t, first.PublicLink)
	assert.Equal(t, *first.PublicLink, *second.PublicLink)
}

func TestUpdateValidationAndPermissions(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()
	p := f.upload(t, f.ownerID, "a.jpg", "image/jpeg", "", []byte("a"))

	bad := "secret"
	_, err := f.photos.Update(ctx, p.ID, f.ownerID, &bad, nil)
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	blank := "   "
	_, err = f.photos.Update(ctx, p.ID, f.ownerID, nil, &blank)
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	name := "  renamed.jpg "
	_, err = f.photos.Update(ctx, p.ID, f.otherID, nil, &name)
	assert.ErrorIs(t, err, services.ErrForbidden)

	updated, err := f.photos.Update(ctx, p.ID, f.adminID, nil, &name)
	require.NoError(t, err)
	assert.Equal(t, "renamed.jpg", updated.Filename)

	_, err = f.photos.Update(ctx, "not-a-uuid", f.ownerID, nil, &name)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestGetPermissions(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()
	p := f.upload(t, f.ownerID, "a.jpg", "image/jpeg", "", []byte("a"))

	_, err := f.photos.Get(ctx, p.ID, f.otherID)
	assert.ErrorIs(t, err, services.ErrForbidden)

	_, err = f.photos.Get(ctx, p.ID, f.adminID)
	assert.NoError(t, err)

	_, err = f.photos.Get(ctx, uuid.NewString(), f.ownerID)
	assert.ErrorIs(t, err, services.ErrNotFound)

	f.objects.PresignErr = func(string) error { return errors.New("signer down") }
	_, err = f.photos.Get(ctx, p.ID, f.ownerID)
	assert.ErrorIs(t, err, services.ErrUpstream)
	assert.Equal(t, "Failed to generate image URL", services.PublicMessage(err, ""))
}

func TestListMarksUnsignableItems(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()
	good := f.upload(t, f.ownerID, "good.jpg", "image/jpeg", "", []byte("a"))
	bad := f.upload(t, f.ownerID, "bad.jpg", "image/jpeg", "", []byte("b"))

	f.objects.PresignErr = func(key string) error {
		if key == bad.R2Key {
			return errors.New("signer down")
		}
		return nil
	}

	list, err := f.photos.ListPersonal(ctx, f.ownerID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, p := range list {
		switch p.ID {
		case good.ID:
			assert.NotNil(t, p.URL)
			assert.Empty(t, p.URLError)
		case bad.ID:
			assert.Nil(t, p.URL)
			assert.Equal(t, "Failed to load image", p.URLError)
		}
	}
}

func TestDownload(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()
	p := f.upload(t, f.ownerID, "a.webp", "image/webp", "", []byte("webpdata"))

	dl, err := f.photos.Download(ctx, p.ID, f.ownerID)
	require.NoError(t, err)
	defer dl.Body.Close()
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("webpdata"), body)
	assert.Equal(t, int64(8), dl.ContentLength)
	assert.Equal(t, "a.webp", dl.Photo.Filename)

	_, err = f.photos.Download(ctx, p.ID, f.otherID)
	assert.ErrorIs(t, err, services.ErrForbidden)

	require.NoError(t, f.objects.Delete(ctx, p.R2Key))
	_, err = f.photos.Download(ctx, p.ID, f.ownerID)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDeleteTwice(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()
	p := f.upload(t, f.ownerID, "a.jpg", "image/jpeg", "", []byte("a"))

	assert.ErrorIs(t, f.photos.Delete(ctx, p.ID, f.otherID), services.ErrForbidden)
	require.NoError(t, f.photos.Delete(ctx, p.ID, f.ownerID))
	assert.ErrorIs(t, f.photos.Delete(ctx, p.ID, f.ownerID), services.ErrNotFound)
	assert.Equal(t, 0, f.objects.Len())

	usage, err := f.photos.StorageUsage(ctx, f.ownerID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.Used)
}

func TestGroupPhotos(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()

	g, err := f.groups.Create(ctx, f.ownerID, services.CreateGroupInput{
		Name: "Trip", MemberEmails: []string{"other@example.com"},
	})
	require.NoError(t, err)

	p, err := f.photos.Upload(ctx, services.UploadInput{
		UserID: f.otherID, Filename: "g.jpg", ContentType: "image/jpeg", GroupID: g.ID,
		Size: 3, Body: bytes.NewReader([]byte("abc")),
	})
	require.NoError(t, err)
	require.NotNil(t, p.GroupID)

	personal, err := f.photos.ListPersonal(ctx, f.otherID)
	require.NoError(t, err)
	assert.Empty(t, personal)

	list, err := f.photos.ListGroup(ctx, g.ID, f.ownerID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, services.DisplayName(f.otherID), list[0].UploaderName)

	_, err = f.photos.ListGroup(ctx, g.ID, f.adminID)
	assert.ErrorIs(t, err, services.ErrForbidden)

	assert.Contains(t, f.events.Types(), services.EventPhotoUploaded)

	ownerPhoto, err := f.photos.Upload(ctx, services.UploadInput{
		UserID: f.ownerID, Filename: "o.jpg", ContentType: "image/jpeg", GroupID: g.ID,
		Size: 1, Body: bytes.NewReader([]byte("o")),
	})
	require.NoError(t, err)

	// Plain members cannot delete someone else's group photo.
	assert.ErrorIs(t, f.photos.Delete(ctx, ownerPhoto.ID, f.otherID), services.ErrForbidden)

	// Group admins may delete photos uploaded by other members.
	require.NoError(t, f.photos.Delete(ctx, p.ID, f.ownerID))
}

type failingMembers struct {
	*testutil.Members
}

func (failingMembers) Get(context.Context, string, string) (*models.GroupMember, error) {
	return nil, errors.New("connection refused")
}

func TestMembershipStoreOutageIsUpstream(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()

	g, err := f.groups.Create(ctx, f.ownerID, services.CreateGroupInput{Name: "Trip"})
	require.NoError(t, err)
	p, err := f.photos.Upload(ctx, services.UploadInput{
		UserID: f.ownerID, Filename: "g.jpg", ContentType: "image/jpeg", GroupID: g.ID,
		Size: 1, Body: bytes.NewReader([]byte("g")),
	})
	require.NoError(t, err)

	photos := services.NewPhotoService(f.db.Photos(), failingMembers{f.db.Members()}, f.objects, config.AdminSet{}, f.events)

	_, err = photos.Upload(ctx, services.UploadInput{
		UserID: f.ownerID, Filename: "h.jpg", ContentType: "image/jpeg", GroupID: g.ID,
		Size: 1, Body: bytes.NewReader([]byte("h")),
	})
	assert.ErrorIs(t, err, services.ErrUpstream)
	assert.NotErrorIs(t, err, services.ErrForbidden)

	_, err = photos.ListGroup(ctx, g.ID, f.ownerID)
	assert.ErrorIs(t, err, services.ErrUpstream)

	err = photos.Delete(ctx, p.ID, f.otherID)
	assert.ErrorIs(t, err, services.ErrUpstream)
	assert.Equal(t, 1, f.db.Photos().Count())
}

func TestUploadKeepsFilenameAsGiven(t *testing.T) {
	f := newPhotoFixture(t)
	ctx := context.Background()

	up := f.upload(t, f.ownerID, " holiday photo .jpg", "image/jpeg", "", []byte("x"))
	assert.Equal(t, " holiday photo .jpg", up.Filename)

	got, err := f.photos.Get(ctx, up.ID, f.ownerID)
	require.NoError(t, err)
	assert.Equal(t, " holiday photo .jpg", got.Filename)

	_, err = f.photos.Upload(ctx, services.UploadInput{
		UserID: f.ownerID, Filename: "   ", ContentType: "image/jpeg",
		Size: 1, Body: bytes.NewReader([]byte("x")),
	})
	assert.ErrorIs(t, err, services.ErrInvalidInput)
}

func TestListAll(t *testing.T) {
	f := newPhotoFixture(t)
	f.upload(t, f.ownerID, "a.jpg", "image/jpeg", "", []byte("a"))
	f.upload(t, f.otherID, "b.jpg", "image/jpeg", "", []byte("b"))

	all, err := f.photos.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
