package api

import (
	"net/http"

	"github.com/npezzotti/go-mediashare/internal/types"
)

const (
	actionLike   = "like"
	actionUnlike = "unlike"
)

type PostCommentRequest struct {
	MediaId  string `json:"mediaId"`
	UserId   string `json:"userId"`
	UserName string `json:"userName"`
	Content  string `json:"content"`
}

type CommentsResponse struct {
	Comments []types.Comment `json:"comments"`
}

type CommentResponse struct {
	Comment types.Comment `json:"comment"`
}

type PostLikeRequest struct {
	MediaId  string `json:"mediaId"`
	UserId   string `json:"userId"`
	UserName string `json:"userName"`
	Action   string `json:"action"`
}

type LikesResponse struct {
	Count     int  `json:"count"`
	UserLiked bool `json:"userLiked"`
}

type LikeResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

func (s *MediaShareApp) getComments(w http.ResponseWriter, r *http.Request) {
	mediaId := query(r, "mediaId")
	if mediaId == "" {
		s.writeError(w, types.Required("mediaId"))
		return
	}

	comments, err := s.ledger.ListComments(r.Context(), mediaId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, CommentsResponse{Comments: comments})
}

func (s *MediaShareApp) postComment(w http.ResponseWriter, r *http.Request) {
	var req PostCommentRequest
	if err := s.decodeJson(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	trim(&req.MediaId, &req.UserId, &req.UserName, &req.Content)

	if req.MediaId == "" {
		s.writeError(w, types.Required("mediaId"))
		return
	}
	if _, err := s.catalog.Get(r.Context(), req.MediaId); err != nil {
		s.writeError(w, err)
		return
	}

	comment, err := s.ledger.AddComment(r.Context(), req.MediaId, req.UserId, req.UserName, req.Content)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, CommentResponse{Comment: comment})
}

func (s *MediaShareApp) getLikes(w http.ResponseWriter, r *http.Request) {
	mediaId, userId := query(r, "mediaId"), query(r, "userId")
	if mediaId == "" {
		s.writeError(w, types.Required("mediaId"))
		return
	}

	count, err := s.ledger.LikeCount(r.Context(), mediaId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var liked bool
	if userId != "" {
		liked, err = s.ledger.HasUserLiked(r.Context(), mediaId, userId)
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	s.writeJson(w, http.StatusOK, LikesResponse{Count: count, UserLiked: liked})
}

func (s *MediaShareApp) postLike(w http.ResponseWriter, r *http.Request) {
	var req PostLikeRequest
	if err := s.decodeJson(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	trim(&req.MediaId, &req.UserId, &req.UserName, &req.Action)

	if req.Action != actionLike && req.Action != actionUnlike {
		s.writeError(w, types.Invalid("action", `must be "like" or "unlike"`))
		return
	}
	if req.MediaId == "" {
		s.writeError(w, types.Required("mediaId"))
		return
	}
	if _, err := s.catalog.Get(r.Context(), req.MediaId); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.ledger.SetLike(r.Context(), req.MediaId, req.UserId, req.UserName, req.Action == actionLike); err != nil {
		s.writeError(w, err)
		return
	}

	count, err := s.ledger.LikeCount(r.Context(), req.MediaId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, LikeResponse{Success: true, Count: count})
}
