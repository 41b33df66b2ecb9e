package api

import (
	"net/http"

	"github.com/npezzotti/go-mediashare/internal/types"
)

type UsersResponse struct {
	Users []types.User `json:"users"`
}

func (s *MediaShareApp) searchUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.db.SearchAccounts(r.Context(), query(r, "search"), query(r, "currentUserId"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	users := make([]types.User, 0, len(accounts))
	for _, a := range accounts {
		u := a.User()
		// emails of other users are not shared
		u.Email = ""
		users = append(users, u)
	}

	s.writeJson(w, http.StatusOK, UsersResponse{Users: users})
}
