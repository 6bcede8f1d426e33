package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicrecords/records/internal/platform/apperr"
)

// Credentials is what login needs to know about a user.
type Credentials struct {
	UserID       string
	Email        string
	Name         string
	Role         string
	PasswordHash string
}

// UserLookup resolves login emails. Implementations return an apperr
// NotFound error for unknown users.
type UserLookup interface {
	LookupCredentials(ctx context.Context, email string) (*Credentials, error)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Principal struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      Principal `json:"user"`
}

type Handler struct {
	users  UserLookup
	issuer *TokenIssuer
	// passwordless lets users without a stored hash log in with any password.
	passwordless bool
}

func NewHandler(users UserLookup, issuer *TokenIssuer, passwordless bool) *Handler {
	return &Handler{users: users, issuer: issuer, passwordless: passwordless}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)
	api.GET("/auth/me", h.Me)
	api.POST("/auth/logout", h.Logout)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		return apperr.Validation("email is required")
	}

	creds, err := h.users.LookupCredentials(c.Request().Context(), req.Email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Unauthorized("invalid email or password")
		}
		return err
	}

	switch {
	case creds.PasswordHash != "":
		if err := CheckPassword(creds.PasswordHash, req.Password); err != nil {
			if errors.Is(err, ErrPasswordMismatch) {
				return apperr.Unauthorized("invalid email or password")
			}
			return apperr.Internal(err)
		}
	case !h.passwordless:
		return apperr.Unauthorized("invalid email or password")
	}

	roles := []string{creds.Role}
	token, exp, err := h.issuer.Issue(creds.UserID, creds.Email, roles)
	if err != nil {
		return apperr.Internal(err)
	}

	return c.JSON(http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: exp.UTC(),
		User:      Principal{ID: creds.UserID, Email: creds.Email, Name: creds.Name, Roles: roles},
	})
}

func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	id := UserIDFromContext(ctx)
	if id == "" {
		return apperr.Unauthorized("not authenticated")
	}
	return c.JSON(http.StatusOK, Principal{
		ID:    id,
		Email: EmailFromContext(ctx),
		Roles: RolesFromContext(ctx),
	})
}

// Logout revokes the bearer token used for the request.
func (h *Handler) Logout(c echo.Context) error {
	tok, ok := tokenFromContext(c.Request().Context())
	if !ok || tok.id == "" {
		return apperr.Unauthorized("no token to revoke")
	}
	h.issuer.Revoke(tok.id, tok.expiresAt)
	return c.NoContent(http.StatusNoContent)
}
