package api

import (
	"net/http"

	"socialhub/internal/auth"
)

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username        string `json:"username"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	c.username("username", req.Username)
	c.email("email", req.Email)
	c.password("password", req.Password)
	c.confirm("confirmPassword", req.Password, req.ConfirmPassword)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	acc, err := h.manager.Signup(r.Context(), auth.SignupInput{Username: req.Username, Email: req.Email, Password: req.Password})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "Done", acc)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	c.email("email", req.Email)
	c.required("password", req.Password)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	creds, err := h.manager.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "Done", map[string]any{"credentials": creds})
}

func (h *Handler) confirmEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	c.email("email", req.Email)
	c.otp("otp", req.OTP)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.manager.ConfirmEmail(r.Context(), req.Email, req.OTP); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Email confirmed successfully", nil)
}

type idTokenRequest struct {
	IDToken string `json:"idToken"`
}

func (h *Handler) readIDToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req idTokenRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return "", false
	}
	c := body()
	c.required("idToken", req.IDToken)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return "", false
	}
	return req.IDToken, true
}

func (h *Handler) signupWithGmail(w http.ResponseWriter, r *http.Request) {
	idToken, ok := h.readIDToken(w, r)
	if !ok {
		return
	}
	creds, err := h.manager.SignupWithExternalProvider(r.Context(), idToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "Done", map[string]any{"credentials": creds})
}

func (h *Handler) loginWithGmail(w http.ResponseWriter, r *http.Request) {
	idToken, ok := h.readIDToken(w, r)
	if !ok {
		return
	}
	creds, err := h.manager.LoginWithExternalProvider(r.Context(), idToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "Done", map[string]any{"credentials": creds})
}

func (h *Handler) sendForgotCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	c.email("email", req.Email)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.manager.SendForgotCode(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "Done", nil)
}

func (h *Handler) verifyForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	c.email("email", req.Email)
	c.otp("otp", req.OTP)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.manager.VerifyForgotPassword(r.Context(), req.Email, req.OTP); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "Done", nil)
}

func (h *Handler) resetForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email           string `json:"email"`
		OTP             string `json:"otp"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	c.email("email", req.Email)
	c.otp("otp", req.OTP)
	c.password("password", req.Password)
	c.confirm("confirmPassword", req.Password, req.ConfirmPassword)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.manager.ResetForgotPassword(r.Context(), req.Email, req.OTP, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "Done", nil)
}
