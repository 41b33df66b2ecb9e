package api

import (
	"errors"
	"net/http"

	"github.com/npezzotti/go-mediashare/internal/media"
	"github.com/npezzotti/go-mediashare/internal/types"
)

const (
	maxUploadSize   = 100 << 20
	uploadFormField = "file"
	// parts of the form above this size are spooled to disk
	uploadMemory = 32 << 20
)

type MediaListResponse struct {
	Media []types.MediaItem `json:"media"`
}

type MediaResponse struct {
	Media types.MediaItem `json:"media"`
}

type UpdateTagsRequest struct {
	MediaId string   `json:"mediaId"`
	Tags    []string `json:"tags"`
}

type RecordViewRequest struct {
	MediaId string `json:"mediaId"`
}

func (s *MediaShareApp) getMedia(w http.ResponseWriter, r *http.Request) {
	if id := query(r, "id"); id != "" {
		item, err := s.catalog.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJson(w, http.StatusOK, MediaResponse{Media: item})
		return
	}

	items, err := s.catalog.List(r.Context(), media.Filter{
		Tag:        query(r, "tag"),
		Query:      query(r, "search"),
		UploadedBy: query(r, "uploadedBy"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, MediaListResponse{Media: items})
}

func (s *MediaShareApp) uploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, NewRequestTooLargeError())
			return
		}
		s.writeError(w, NewInvalidRequestError("multipart form required"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	userId := formValue(r, "userId")
	if userId == "" {
		s.writeError(w, types.Required("userId"))
		return
	}

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		s.writeError(w, types.Required(uploadFormField))
		return
	}
	defer file.Close()

	item, err := s.catalog.Upload(r.Context(), media.UploadParams{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		UploadedBy:  userId,
	}, file)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, MediaResponse{Media: item})
}

func (s *MediaShareApp) deleteMedia(w http.ResponseWriter, r *http.Request) {
	id := query(r, "id")
	if id == "" {
		s.writeError(w, types.Required("id"))
		return
	}

	if err := s.catalog.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *MediaShareApp) updateTags(w http.ResponseWriter, r *http.Request) {
	var req UpdateTagsRequest
	if err := s.decodeJson(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	trim(&req.MediaId)

	item, err := s.catalog.UpdateTags(r.Context(), req.MediaId, req.Tags)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, MediaResponse{Media: item})
}

func (s *MediaShareApp) recordView(w http.ResponseWriter, r *http.Request) {
	var req RecordViewRequest
	if err := s.decodeJson(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	trim(&req.MediaId)

	item, err := s.catalog.RecordView(r.Context(), req.MediaId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, MediaResponse{Media: item})
}
