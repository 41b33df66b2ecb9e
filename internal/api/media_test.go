package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/npezzotti/go-mediashare/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadMedia(t *testing.T) {
	app := newTestApp(t, nil)

	item := uploadImage(t, app, "Cat.PNG")
	assert.NotEmpty(t, item.Id)
	assert.Equal(t, "Cat.PNG", item.Filename)
	assert.Equal(t, "image", item.Type)
	assert.Equal(t, "u1", item.UploadedBy)
	assert.Equal(t, int64(len("png bytes")), item.Size)
	assert.Empty(t, item.Tags)
	assert.True(t, strings.HasPrefix(item.Url, testPublicURL+"/files/media/"), item.Url)
	assert.True(t, strings.HasSuffix(item.Url, ".png"), item.Url)

	rr := do(t, app, http.MethodGet, strings.TrimPrefix(item.Url, testPublicURL), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "png bytes", rr.Body.String())
}

func TestUploadMedia_Failures(t *testing.T) {
	tcases := []struct {
		name        string
		fields      map[string]string
		file        bool
		contentType string
		status      int
	}{
		{name: "missing user", file: true, contentType: "image/png", status: http.StatusBadRequest},
		{name: "missing file", fields: map[string]string{"userId": "u1"}, status: http.StatusBadRequest},
		{name: "unsupported type", fields: map[string]string{"userId": "u1"}, file: true, contentType: "text/plain", status: http.StatusBadRequest},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t, nil)

			fileField := ""
			if tc.file {
				fileField = uploadFormField
			}
			body, contentType := multipartBody(t, tc.fields, fileField, "upload.bin", tc.contentType, []byte("data"))
			rr := postMultipart(t, app, "/media", body, contentType)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())

			rr = do(t, app, http.MethodGet, "/media", nil)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Empty(t, decode[MediaListResponse](t, rr).Media)
		})
	}
}

func TestMediaLifecycle(t *testing.T) {
	app := newTestApp(t, nil)
	cat := uploadImage(t, app, "cat.png")
	dog := uploadImage(t, app, "dog.png")

	rr := do(t, app, http.MethodPut, "/media/tags", UpdateTagsRequest{MediaId: cat.Id, Tags: []string{" Pets ", "cute", "pets", ""}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, []string{"cute", "pets"}, decode[MediaResponse](t, rr).Media.Tags)

	for i := 0; i < 2; i++ {
		rr = do(t, app, http.MethodPost, "/media/views", RecordViewRequest{MediaId: cat.Id})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
	assert.Equal(t, 2, decode[MediaResponse](t, rr).Media.ViewsCount)

	tcases := []struct {
		query    string
		expected []string
	}{
		{query: "", expected: []string{dog.Id, cat.Id}},
		{query: "?tag=PETS", expected: []string{cat.Id}},
		{query: "?search=dog", expected: []string{dog.Id}},
		{query: "?uploadedBy=u2", expected: nil},
	}
	for _, tc := range tcases {
		rr = do(t, app, http.MethodGet, "/media"+tc.query, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		var got []string
		for _, item := range decode[MediaListResponse](t, rr).Media {
			got = append(got, item.Id)
		}
		assert.Equal(t, tc.expected, got, tc.query)
	}

	rr = do(t, app, http.MethodPost, "/media/likes", PostLikeRequest{MediaId: cat.Id, UserId: "u2", UserName: "Bob", Action: actionLike})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, app, http.MethodDelete, "/media?id="+cat.Id, nil)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = do(t, app, http.MethodGet, "/media?id="+cat.Id, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, app, http.MethodGet, strings.TrimPrefix(cat.Url, testPublicURL), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code, "expected the object to be removed")
	rr = do(t, app, http.MethodGet, "/media/likes?mediaId="+cat.Id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Zero(t, decode[LikesResponse](t, rr).Count, "expected likes to be purged")

	rr = do(t, app, http.MethodDelete, "/media?id="+cat.Id, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMediaUpdates_UnknownItem(t *testing.T) {
	app := newTestApp(t, nil)

	tcases := []struct {
		name   string
		method string
		target string
		body   any
		status int
	}{
		{name: "tags", method: http.MethodPut, target: "/media/tags", body: UpdateTagsRequest{MediaId: "missing", Tags: []string{"a"}}, status: http.StatusNotFound},
		{name: "tags without id", method: http.MethodPut, target: "/media/tags", body: UpdateTagsRequest{Tags: []string{"a"}}, status: http.StatusBadRequest},
		{name: "views", method: http.MethodPost, target: "/media/views", body: RecordViewRequest{MediaId: "missing"}, status: http.StatusNotFound},
		{name: "get", method: http.MethodGet, target: "/media?id=missing", status: http.StatusNotFound},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, app, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.status, rr.Code, rr.Body.String())
		})
	}
}

func TestMediaItem_CountsAreDerived(t *testing.T) {
	app := newTestApp(t, nil)
	item := uploadImage(t, app, "cat.png")

	for _, u := range []string{"u1", "u2", "u3"} {
		rr := do(t, app, http.MethodPost, "/media/likes", PostLikeRequest{MediaId: item.Id, UserId: u, UserName: u, Action: actionLike})
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := do(t, app, http.MethodPost, "/media/comments", PostCommentRequest{MediaId: item.Id, UserId: "u1", UserName: "Ann", Content: "nice"})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, app, http.MethodGet, "/media", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	items := decode[MediaListResponse](t, rr).Media
	require.Len(t, items, 1)
	assert.Equal(t, types.MediaItem{
		Id:            item.Id,
		Filename:      item.Filename,
		Url:           item.Url,
		Type:          item.Type,
		Size:          item.Size,
		UploadedBy:    item.UploadedBy,
		Tags:          []string{},
		LikesCount:    3,
		CommentsCount: 1,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
	}, items[0])
}
