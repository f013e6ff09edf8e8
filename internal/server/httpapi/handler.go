// Package httpapi is the HTTP boundary of the auth server: gin routes under
// /api/auth, middleware and the mapping of service errors to responses.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/dmitrijs2005/gophauth/internal/server/transport"
	"github.com/gin-gonic/gin"
)

// AuthFlow is what the handlers need from services.AuthService.
type AuthFlow interface {
	Signup(ctx context.Context, email, password string) (*services.Session, error)
	Signin(ctx context.Context, email, password string) (*services.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Signout(ctx context.Context, refreshToken string) error
	CurrentUser(ctx context.Context, accessToken string) (*models.User, error)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	AccessToken          string          `json:"accessToken"`
	AccessTokenExpiresAt time.Time       `json:"accessTokenExpiresAt"`
	User                 *models.Profile `json:"user,omitempty"`
}

type userResponse struct {
	User models.Profile `json:"user"`
}

type Handler struct {
	auth      AuthFlow
	transport transport.Transport
	metrics   *metrics.Metrics
	log       logging.Logger
}

func NewHandler(auth AuthFlow, tr transport.Transport, m *metrics.Metrics, log logging.Logger) *Handler {
	return &Handler{auth: auth, transport: tr, metrics: m, log: log}
}

func (h *Handler) Signup(c *gin.Context) {
	req, ok := h.bindCredentials(c, "signup")
	if !ok {
		return
	}

	sess, err := h.auth.Signup(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, "signup", err)
		return
	}

	h.record("signup", "ok")
	h.writeSession(c, http.StatusCreated, sess)
}

func (h *Handler) Signin(c *gin.Context) {
	req, ok := h.bindCredentials(c, "signin")
	if !ok {
		return
	}

	sess, err := h.auth.Signin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, "signin", err)
		return
	}

	h.record("signin", "ok")
	h.writeSession(c, http.StatusOK, sess)
}

func (h *Handler) Refresh(c *gin.Context) {
	token, _ := h.transport.Extract(c.Request)

	pair, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, common.ErrSessionExpired) {
			h.transport.Clear(c.Writer)
		}
		h.fail(c, "refresh", err)
		return
	}

	h.record("refresh", "ok")
	h.transport.Attach(c.Writer, pair.RefreshToken, pair.RefreshTokenExpiresAt)
	c.JSON(http.StatusOK, sessionResponse{
		AccessToken:          pair.AccessToken,
		AccessTokenExpiresAt: pair.AccessTokenExpiresAt,
	})
}

func (h *Handler) Signout(c *gin.Context) {
	token, _ := h.transport.Extract(c.Request)

	if err := h.auth.Signout(c.Request.Context(), token); err != nil {
		h.fail(c, "signout", err)
		return
	}

	h.record("signout", "ok")
	h.transport.Clear(c.Writer)
	c.JSON(http.StatusOK, gin.H{})
}

func (h *Handler) CurrentUser(c *gin.Context) {
	token, ok := transport.ExtractAccessToken(c.Request)
	if !ok {
		h.fail(c, "user", common.ErrUnauthenticated)
		return
	}

	user, err := h.auth.CurrentUser(c.Request.Context(), token)
	if err != nil {
		h.fail(c, "user", err)
		return
	}

	c.JSON(http.StatusOK, userResponse{User: user.Profile()})
}

func (h *Handler) NotFound(c *gin.Context) {
	h.fail(c, "", common.ErrorNotFound)
}

func (h *Handler) bindCredentials(c *gin.Context, op string) (credentialsRequest, bool) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.record(op, CodeInvalidInput)
		c.JSON(http.StatusBadRequest, single(CodeInvalidInput, "Request body must be a JSON object", ""))
		return req, false
	}
	return req, true
}

func (h *Handler) writeSession(c *gin.Context, status int, sess *services.Session) {
	h.transport.Attach(c.Writer, sess.Tokens.RefreshToken, sess.Tokens.RefreshTokenExpiresAt)
	profile := sess.User.Profile()
	c.JSON(status, sessionResponse{
		AccessToken:          sess.Tokens.AccessToken,
		AccessTokenExpiresAt: sess.Tokens.AccessTokenExpiresAt,
		User:                 &profile,
	})
}

// fail writes the mapped error response. Internal errors are logged with the
// request id; the client only sees the generic message.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	status, body := mapError(err)
	if op != "" {
		h.record(op, body.Errors[0].Code)
	}

	if status >= http.StatusInternalServerError {
		h.log.Error(c.Request.Context(), "request failed",
			"request_id", requestID(c), "operation", op, "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *Handler) record(op, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordAuth(op, outcome)
	}
}
