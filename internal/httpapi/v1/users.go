package v1

import (
	"net/http"

	"github.com/tinoosan/fintrack/internal/service/user"
)

// register handles POST /v1/auth/register.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	req := r.Context().Value(ctxKeyRegister).(registerRequest)
	sess, err := s.Users.Register(r.Context(), user.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Currency: req.Currency,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toSessionResponse(sess))
}

// login handles POST /v1/auth/login.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	req := r.Context().Value(ctxKeyLogin).(loginRequest)
	sess, err := s.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.Users.Get(r.Context(), userID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toUserResponse(u))
}

// patchMe updates profile preferences; account_balance is a manual
// adjustment of the running balance.
func (s *Server) patchMe(w http.ResponseWriter, r *http.Request) {
	var req patchMeRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := s.Users.UpdateProfile(r.Context(), userID(r), user.ProfilePatch{
		Name:         req.Name,
		Currency:     req.Currency,
		MonthlyLimit: req.MonthlyLimit.ptr(),
		Balance:      req.AccountBalance.ptr(),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toUserResponse(u))
}
