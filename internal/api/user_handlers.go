package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"socialhub/internal/apperr"
	"socialhub/internal/auth"
	"socialhub/internal/models"
)

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, "Done", map[string]any{"user": session(r).Account})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Flag auth.LogoutFlag `json:"flag"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	c.flag("flag", &req.Flag)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.manager.Logout(r.Context(), session(r), req.Flag); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, logoutStatus(req.Flag), "Done", nil)
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	creds, err := h.manager.RefreshToken(r.Context(), session(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, "Token refreshed", creds)
}

func (h *Handler) updatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword     string          `json:"oldPassword"`
		Password        string          `json:"password"`
		ConfirmPassword string          `json:"confirmPassword"`
		Flag            auth.LogoutFlag `json:"flag"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	c.required("oldPassword", req.OldPassword)
	c.password("password", req.Password)
	c.confirm("confirmPassword", req.Password, req.ConfirmPassword)
	c.flag("flag", &req.Flag)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.manager.UpdatePassword(r.Context(), session(r), req.OldPassword, req.Password, req.Flag); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, logoutStatus(req.Flag), "Password updated successfully", nil)
}

func (h *Handler) updateEmail(w http.ResponseWriter, r *http.Request) {
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

	if err := h.manager.UpdateEmail(r.Context(), session(r), req.Email, req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Email updated. Please check your new email for verification", nil)
}

func (h *Handler) updateBasicInfo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName *string        `json:"firstName"`
		LastName  *string        `json:"lastName"`
		Username  *string        `json:"username"`
		Phone     *string        `json:"phone"`
		Address   *string        `json:"address"`
		Gender    *models.Gender `json:"gender"`
		Email     *string        `json:"email"`
		Password  *string        `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Email != nil || req.Password != nil {
		h.fail(w, r, apperr.BadRequest("In-Valid Data"))
		return
	}
	c := body()
	if req.Username != nil {
		c.username("username", *req.Username)
	}
	if req.Gender != nil && *req.Gender != models.GenderMale && *req.Gender != models.GenderFemale {
		c.add("gender", `gender must be one of "male", "female"`)
	}
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	acc, err := h.manager.UpdateBasicInfo(r.Context(), session(r), auth.BasicInfo{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Phone:     req.Phone,
		Address:   req.Address,
		Gender:    req.Gender,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Done", map[string]any{"user": acc})
}

func (h *Handler) profileImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OriginalName string `json:"originalname"`
		ContentType  string `json:"ContentType"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	c.required("originalname", req.OriginalName)
	c.required("ContentType", req.ContentType)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	link, err := h.manager.ProfileImage(r.Context(), session(r), req.OriginalName, req.ContentType)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Done", link)
}

// maxImageBytes bounds each uploaded cover image.
const maxImageBytes = 2 << 20

func (h *Handler) profileCoverImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, auth.MaxCoverImages*maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		h.fail(w, r, apperr.BadRequest("Invalid multipart payload").Wrap(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["images"]
	images := make([]auth.CoverImage, 0, len(headers))
	for _, fh := range headers {
		if fh.Size > maxImageBytes {
			h.fail(w, r, apperr.BadRequest("image exceeds 2MB"))
			return
		}
		f, err := fh.Open()
		if err != nil {
			h.fail(w, r, apperr.BadRequest("Invalid multipart payload").Wrap(err))
			return
		}
		defer f.Close()
		images = append(images, auth.CoverImage{
			OriginalName: fh.Filename,
			ContentType:  fh.Header.Get("Content-Type"),
			Body:         f,
		})
	}

	keys, err := h.manager.ProfileCoverImage(r.Context(), session(r), images)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Done", map[string]any{"file": keys})
}

func (h *Handler) sendEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To      []string `json:"to"`
		Subject string   `json:"subject"`
		Message string   `json:"message"`
		Tags    []string `json:"tags"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	if len(req.To) == 0 {
		c.add("to", "at least one recipient is required")
	}
	for _, addr := range req.To {
		c.email("to", addr)
	}
	c.required("subject", req.Subject)
	c.required("message", req.Message)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.manager.SendEmailWithTags(r.Context(), req.To, req.Subject, req.Message, req.Tags); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Emails sent successfully", nil)
}

func (h *Handler) enableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	c.required("password", req.Password)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.manager.EnableTwoFactor(r.Context(), session(r), req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Two-factor setup initiated. Check your email for verification code", nil)
}

func (h *Handler) verifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OTP string `json:"otp"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	c.otp("otp", req.OTP)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.manager.VerifyTwoFactor(r.Context(), session(r), req.OTP); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Two-factor authentication enabled successfully", nil)
}

func (h *Handler) disableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		OTP      string `json:"otp"`
	}
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := body()
	c.required("password", req.Password)
	if req.OTP != "" {
		c.otp("otp", req.OTP)
	}
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	disabled, err := h.manager.DisableTwoFactor(r.Context(), session(r), req.Password, req.OTP)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if disabled {
		h.respond(w, http.StatusOK, "Two-factor authentication disabled successfully", nil)
		return
	}
	h.respond(w, http.StatusOK, "Verification code sent to your email", nil)
}

// target reads the optional {userId} path variable.
func target(r *http.Request, c *checker) *primitive.ObjectID {
	raw, ok := mux.Vars(r)["userId"]
	if !ok {
		return nil
	}
	id := c.objectID("userId", raw)
	return &id
}

func (h *Handler) freezeAccount(w http.ResponseWriter, r *http.Request) {
	c := params()
	id := target(r, c)
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.manager.FreezeAccount(r.Context(), session(r).Account, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Done", nil)
}

func (h *Handler) restoreAccount(w http.ResponseWriter, r *http.Request) {
	c := params()
	id := c.objectID("userId", mux.Vars(r)["userId"])
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.manager.RestoreAccount(r.Context(), session(r).Account, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Done", nil)
}

func (h *Handler) hardDelete(w http.ResponseWriter, r *http.Request) {
	c := params()
	id := c.objectID("userId", mux.Vars(r)["userId"])
	if err := check(c); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.manager.HardDelete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, "Done", nil)
}
