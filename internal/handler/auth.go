package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/convoy/internal/service"
)

// AuthHandler serves /api/auth: one-time codes, registration, sign-in and
// the caller's own profile.
type AuthHandler struct {
	auth   *service.AuthService
	otp    *service.OTPService
	logger *slog.Logger
}

func NewAuthHandler(auth *service.AuthService, otp *service.OTPService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, otp: otp, logger: logger}
}

// sessionData is the payload of every successful sign-in.
func sessionData(res *service.AuthResult) M {
	return M{"token": res.Token, "user": res.User.Profile()}
}

// HandleSendOTP issues a code for an email address.
//
// HTTP: POST /api/auth/send-otp  {"email": "..."}
func (h *AuthHandler) HandleSendOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.otp.Issue(r.Context(), body.Email)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, res.Message, res)
}

// HandleVerifyOTP signs an existing account in with a one-time code.
//
// HTTP: POST /api/auth/verify-otp  {"email": "...", "code": "123456"}
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.LoginWithOTP(r.Context(), body.Email, body.Code)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "Signed in successfully", sessionData(res))
}

// HandleRegister creates an account after the email has been verified.
//
// HTTP: POST /api/auth/register  {"email", "code", "username", "password"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:    body.Email,
		Code:     body.Code,
		Username: body.Username,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeCreated(w, "Account created successfully", sessionData(res))
}

// HandleLogin signs in with email and password.
//
// HTTP: POST /api/auth/login  {"email", "password"}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "Signed in successfully", sessionData(res))
}

// HandleCheckUsername reports whether a username is free.
//
// HTTP: GET /api/auth/check-username?username=...
func (h *AuthHandler) HandleCheckUsername(w http.ResponseWriter, r *http.Request) {
	res, err := h.auth.CheckUsername(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", res)
}

// HandleProfileByUniqueID returns the user card behind a display id. The
// route is unauthenticated, so email and phone are left out.
//
// HTTP: GET /api/auth/profile/{uniqueId}
func (h *AuthHandler) HandleProfileByUniqueID(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.GetByUniqueID(r.Context(), chi.URLParam(r, "uniqueId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "", M{"user": user.Card()})
}

// HandleMe returns the caller's own profile.
//
// HTTP: GET /api/auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.GetUserByID(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, "Profile retrieved", M{"user": user.Profile()})
}

// HandleUpdateProfile edits the caller's username, status or picture.
// Absent fields are left alone.
//
// HTTP: PATCH /api/auth/profile
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username          *string `json:"username"`
		Status            *string `json:"status"`
		ProfilePictureURL *string `json:"profile_picture_url"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, changed, err := h.auth.UpdateProfile(r.Context(), currentUserID(r), service.ProfileChanges{
		Username:          body.Username,
		Status:            body.Status,
		ProfilePictureURL: body.ProfilePictureURL,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	msg := "Profile has been updated"
	if !changed {
		msg = "No changes"
	}
	writeOK(w, msg, M{"user": user.Profile()})
}
