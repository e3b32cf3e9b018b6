package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"pinboard/pkg/apperr"
	"pinboard/pkg/common"
	"pinboard/pkg/logger"
	"pinboard/pkg/sessions"
	"pinboard/pkg/user"
)

//go:generate mockgen -source=handlers.go -destination=mock_handlers.go -package=api

const (
	verifyTTL = 24 * time.Hour
	resetTTL  = 10 * time.Minute
	maxBody   = 64 << 10
)

type (
	UserRepo interface {
		Add(context.Context, *user.User) (string, error)
		UserExists(ctx context.Context, username, email string) (bool, error)
		GetById(ctx context.Context, uid string) (*user.User, error)
		GetByEmail(ctx context.Context, email string) (*user.User, error)
		GetByEmailAndPass(ctx context.Context, email, pass string) (*user.User, error)
		SetVerified(ctx context.Context, uid string) error
		UpdatePassword(ctx context.Context, uid string, hash []byte) error
		UpdateProfile(ctx context.Context, uid string, username, profilePicture *string) error
	}

	SessionManager interface {
		CreateToken(context.Context, *user.User) (string, error)
		CleanupUserSessions(ctx context.Context, userId string) error
		DestroySession(ctx context.Context, authHeader string) error
		DestroyUserSessions(ctx context.Context, userId string) error
		IssueToken(ctx context.Context, purpose sessions.Purpose, userId string, ttl time.Duration) (string, error)
		ConsumeToken(ctx context.Context, purpose sessions.Purpose, token string) (string, error)
	}

	Mailer interface {
		SendVerification(ctx context.Context, to, username, link string, ttl time.Duration) error
		SendPasswordReset(ctx context.Context, to, username, link string, ttl time.Duration) error
	}

	Validator interface {
		Validate(interface{}) error
	}

	UserHandler struct {
		Repo           UserRepo
		SessionManager SessionManager
		Mailer         Mailer
		Validator      Validator
		// PublicURL prefixes the links sent by email.
		PublicURL    string
		SecureCookie bool
	}
)

type (
	registerInput struct {
		Username        string `json:"username" validate:"required,min=3,max=30"`
		Email           string `json:"email" validate:"required,email"`
		Password        string `json:"password" validate:"required,min=8"`
		ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	}

	loginInput struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	emailInput struct {
		Email string `json:"email" validate:"required,email"`
	}

	passwordInput struct {
		Password        string `json:"password" validate:"required,min=8"`
		ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	}

	profileInput struct {
		Username       *string `json:"username" validate:"omitnil,min=3,max=30"`
		ProfilePicture *string `json:"profilePicture" validate:"omitnil,url"`
		Password       *string `json:"password" validate:"-"`
	}

	loginResponse struct {
		Status string     `json:"status"`
		Token  string     `json:"token"`
		Data   *user.User `json:"data"`
	}
)

func NewUserHandler(r UserRepo, sm SessionManager, m Mailer, v Validator, publicURL string, secureCookie bool) *UserHandler {
	return &UserHandler{
		Repo:           r,
		SessionManager: sm,
		Mailer:         m,
		Validator:      v,
		PublicURL:      strings.TrimRight(publicURL, "/"),
		SecureCookie:   secureCookie,
	}
}

func (uh *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	in := new(registerInput)
	if err := uh.decode(w, r, in); err != nil {
		common.WriteError(w, r, err)
		return
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := uh.Validator.Validate(in); err != nil {
		common.WriteError(w, r, err)
		return
	}

	exists, err := uh.Repo.UserExists(r.Context(), in.Username, in.Email)
	if err != nil {
		common.WriteError(w, r, apperr.Internal("can't add user", err))
		return
	}
	if exists {
		common.WriteError(w, r, apperr.Conflict("username or email already in use"))
		return
	}

	pass, err := common.NewPassHash(in.Password)
	if err != nil {
		common.WriteError(w, r, apperr.Internal("can't add user", err))
		return
	}
	u := &user.User{
		Username: in.Username,
		Email:    in.Email,
		Password: pass,
		// Id is generated by the repo
	}
	if _, err := uh.Repo.Add(r.Context(), u); err != nil {
		common.WriteError(w, r, err)
		return
	}

	// The account exists either way; a lost email can be resent.
	if err := uh.sendVerification(r.Context(), u); err != nil {
		logger.Log(r.Context()).Errorw("failed sending verification email", "user", u.Id, "err", err)
	}

	logger.Log(r.Context()).Infow("user registered", "user", u.Id)
	common.WriteData(w, http.StatusCreated, u)
}

func (uh *UserHandler) LogIn(w http.ResponseWriter, r *http.Request) {
	in := new(loginInput)
	if err := uh.decode(w, r, in); err != nil {
		common.WriteError(w, r, err)
		return
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := uh.Validator.Validate(in); err != nil {
		common.WriteError(w, r, err)
		return
	}

	u, err := uh.Repo.GetByEmailAndPass(r.Context(), in.Email, in.Password)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	if !u.Verified {
		common.WriteError(w, r, apperr.Forbidden("Please verify your email before logging in."))
		return
	}

	// Remove expired user sessions if there are any
	if err := uh.SessionManager.CleanupUserSessions(r.Context(), u.Id); err != nil {
		common.WriteError(w, r, apperr.Internal("failed managing user sessions", err))
		return
	}

	token, err := uh.SessionManager.CreateToken(r.Context(), u)
	if err != nil {
		common.WriteError(w, r, apperr.Internal("user authentication failed", err))
		return
	}
	sessions.SetCookie(w, token, uh.SecureCookie)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	common.WriteRespJSON(w, loginResponse{Status: common.StatusSuccess, Token: token, Data: u})
}

func (uh *UserHandler) LogOut(w http.ResponseWriter, r *http.Request) {
	if header := sessions.TokenFromRequest(r); header != "" {
		if err := uh.SessionManager.DestroySession(r.Context(), header); err != nil {
			common.WriteError(w, r, apperr.Internal("failed ending the session", err))
			return
		}
	}
	sessions.ClearCookie(w)
	common.WriteMsg(w, "Logged out", http.StatusOK)
}

func (uh *UserHandler) VerifyAccount(w http.ResponseWriter, r *http.Request) {
	userId, err := uh.SessionManager.ConsumeToken(r.Context(), sessions.PurposeVerify, mux.Vars(r)["token"])
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	if err := uh.Repo.SetVerified(r.Context(), userId); err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteMsg(w, "Your account has been verified. You can log in now.", http.StatusOK)
}

func (uh *UserHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	u, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	if u.Verified {
		common.WriteError(w, r, apperr.Validation("Your account is already verified."))
		return
	}
	if err := uh.sendVerification(r.Context(), u); err != nil {
		common.WriteError(w, r, apperr.Internal("failed sending the verification email", err))
		return
	}
	common.WriteMsg(w, "Verification email sent.", http.StatusOK)
}

// RequestPasswordReset answers the same whether or not the email is known.
func (uh *UserHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	const done = "If that email is registered, a reset link is on its way."

	in := new(emailInput)
	if err := uh.decode(w, r, in); err != nil {
		common.WriteError(w, r, err)
		return
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := uh.Validator.Validate(in); err != nil {
		common.WriteError(w, r, err)
		return
	}

	u, err := uh.Repo.GetByEmail(r.Context(), in.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		common.WriteMsg(w, done, http.StatusOK)
		return
	}
	if err != nil {
		common.WriteError(w, r, apperr.Internal("failed requesting a password reset", err))
		return
	}

	token, err := uh.SessionManager.IssueToken(r.Context(), sessions.PurposeReset, u.Id, resetTTL)
	if err != nil {
		common.WriteError(w, r, apperr.Internal("failed requesting a password reset", err))
		return
	}
	link := uh.PublicURL + "/api/auth/resetPassword/" + token
	if err := uh.Mailer.SendPasswordReset(r.Context(), u.Email, u.Username, link, resetTTL); err != nil {
		logger.Log(r.Context()).Errorw("failed sending password reset email", "user", u.Id, "err", err)
	}
	common.WriteMsg(w, done, http.StatusOK)
}

func (uh *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	in := new(passwordInput)
	if err := uh.decode(w, r, in); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if err := uh.Validator.Validate(in); err != nil {
		common.WriteError(w, r, err)
		return
	}

	userId, err := uh.SessionManager.ConsumeToken(r.Context(), sessions.PurposeReset, mux.Vars(r)["token"])
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	pass, err := common.NewPassHash(in.Password)
	if err != nil {
		common.WriteError(w, r, apperr.Internal("failed resetting the password", err))
		return
	}
	if err := uh.Repo.UpdatePassword(r.Context(), userId, pass); err != nil {
		common.WriteError(w, r, err)
		return
	}

	// Old sessions must not survive a password change.
	if err := uh.SessionManager.DestroyUserSessions(r.Context(), userId); err != nil {
		logger.Log(r.Context()).Errorw("failed dropping sessions after password reset", "user", userId, "err", err)
	}
	sessions.ClearCookie(w)
	common.WriteMsg(w, "Password updated. Please log in again.", http.StatusOK)
}

func (uh *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, u)
}

func (uh *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	u, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		common.WriteError(w, r, err)
		return
	}

	in := new(profileInput)
	if err := uh.decode(w, r, in); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if in.Password != nil {
		common.WriteError(w, r, apperr.Validation("This route is not for password updates. Please use /resetPassword."))
		return
	}
	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		in.Username = &trimmed
	}
	if in.Username == nil && in.ProfilePicture == nil {
		common.WriteError(w, r, apperr.Validation("No fields to update"))
		return
	}
	if err := uh.Validator.Validate(in); err != nil {
		common.WriteError(w, r, err)
		return
	}

	if err := uh.Repo.UpdateProfile(r.Context(), u.Id, in.Username, in.ProfilePicture); err != nil {
		common.WriteError(w, r, err)
		return
	}
	updated, err := uh.Repo.GetById(r.Context(), u.Id)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteData(w, http.StatusOK, updated)
}

func (uh *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	userId := mux.Vars(r)["userId"]
	if _, err := common.ParseID(userId, "user"); err != nil {
		common.WriteError(w, r, err)
		return
	}
	u, err := uh.Repo.GetById(r.Context(), userId)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	if sessions.ViewerID(r.Context()) == u.Id {
		common.WriteData(w, http.StatusOK, u)
		return
	}
	common.WriteData(w, http.StatusOK, u.Public())
}

func (uh *UserHandler) sendVerification(ctx context.Context, u *user.User) error {
	token, err := uh.SessionManager.IssueToken(ctx, sessions.PurposeVerify, u.Id, verifyTTL)
	if err != nil {
		return err
	}
	link := uh.PublicURL + "/api/auth/verify/" + token
	return uh.Mailer.SendVerification(ctx, u.Email, u.Username, link, verifyTTL)
}

func (uh *UserHandler) decode(w http.ResponseWriter, r *http.Request, ptr interface{}) error {
	return common.ParseReqBody(http.MaxBytesReader(w, r.Body, maxBody), ptr)
}
