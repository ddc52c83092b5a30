package user

import (
	"context"
	"net/http"
	"strings"
	"time"

	mw "ChatWire/middleware/security"
	mgo "ChatWire/service/storage/mongo"
	"ChatWire/tools/errs"
	sec "ChatWire/tools/security"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// PresenceLookup answers live online state from the cluster-wide mirror.
type PresenceLookup interface {
	Lookup(ctx context.Context, userID string) (gatewayID string, online bool, err error)
}

// Handler owns the account endpoints: signup, login, token refresh and
// the user directory.
type Handler struct {
	users    *mgo.UserStore
	jwt      sec.Options
	presence PresenceLookup // nil when no mirror is configured
}

func NewHandler(users *mgo.UserStore, jwt sec.Options, presence PresenceLookup) *Handler {
	return &Handler{users: users, jwt: jwt, presence: presence}
}

// Register mounts the routes. The directory endpoints sit behind the
// auth middleware; signup/login/refresh are open.
func (h *Handler) Register(r gin.IRouter, authed gin.IRouter) {
	r.POST("/auth/signup", h.Signup)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.Refresh)

	authed.GET("/auth/me", h.Me)
	authed.GET("/users", h.List)
}

type signupReq struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	u, err := h.users.Create(c.Request.Context(), req.Username, req.Email, string(hash))
	if err != nil {
		if errs.ErrRecordExists.Is(err) {
			c.JSON(http.StatusConflict, errs.ErrRecordExists)
			return
		}
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	h.issueTokens(c, u)
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	u, err := h.users.FindByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		// same response for unknown email and bad password
		c.JSON(http.StatusUnauthorized, errs.ErrAuthentication)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, errs.ErrAuthentication)
		return
	}
	h.issueTokens(c, u)
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h *Handler) Refresh(c *gin.Context) {
	var req refreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail(err.Error()))
		return
	}
	userID, err := sec.VerifyRefresh(h.jwt, req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errs.ErrAuthentication)
		return
	}
	u, err := h.users.FindByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, errs.ErrAuthentication)
		return
	}
	h.issueTokens(c, u)
}

func (h *Handler) Me(c *gin.Context) {
	u, err := h.users.FindByID(c.Request.Context(), mw.UserID(c))
	if err != nil {
		c.JSON(http.StatusNotFound, errs.ErrRecordNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userView(u)})
}

// List is the directory: every account with presence flags, newest first.
func (h *Handler) List(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		v := userView(u)
		v["isOnline"] = h.liveOnline(c.Request.Context(), u.ID.Hex(), u.IsOnline)
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// liveOnline overlays the mirror's answer over the durable flag: the
// mirror sees every gateway, while the durable flag can go stale after a
// gateway crash. An unreachable mirror falls back to the stored flag.
func (h *Handler) liveOnline(ctx context.Context, userID string, stored bool) bool {
	if h.presence == nil {
		return stored
	}
	_, online, err := h.presence.Lookup(ctx, userID)
	if err != nil {
		return stored
	}
	return online
}

func (h *Handler) issueTokens(c *gin.Context, u *mgo.User) {
	access, refresh, expireAt, err := sec.GeneratePair(h.jwt, u.ID.Hex())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errs.ErrDependency)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":         userView(u),
		"accessToken":  access,
		"refreshToken": refresh,
		"expireAt":     expireAt.Unix(),
	})
}

func userView(u *mgo.User) gin.H {
	v := gin.H{
		"id":       u.ID.Hex(),
		"username": u.Username,
		"email":    u.Email,
		"isOnline": u.IsOnline,
	}
	if u.LastSeen != nil {
		v["lastSeen"] = u.LastSeen.UTC().Format(time.RFC3339)
	}
	return v
}
