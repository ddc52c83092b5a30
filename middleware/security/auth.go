package security

import (
	"net/http"
	"strings"

	"ChatWire/tools/errs"
	sec "ChatWire/tools/security"

	"github.com/gin-gonic/gin"
)

// —— context keys ——
// Downstream handlers read the authenticated identity through these.
const (
	CtxUserIDKey = "userId" // string
	CtxTokenKey  = "authorization"
)

type Options struct {
	JWT sec.Options

	HeaderToken               string // default "authorization"
	EnableAuthorizationBearer bool   // default true
}

func DefaultOptions(jwt sec.Options) *Options {
	return &Options{
		JWT:                       jwt,
		HeaderToken:               CtxTokenKey,
		EnableAuthorizationBearer: true,
	}
}

// Middleware verifies the access token and binds the user id into the
// request context. Requests without a valid token never reach the
// handler.
func Middleware(opts *Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// Accept Authorization: Bearer xxx as well
		if token == "" && opts.EnableAuthorizationBearer {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
				if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
					token = strings.TrimSpace(authz[len("bearer "):])
				}
			}
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrAuthentication)
			return
		}

		userID, err := sec.Verify(opts.JWT, token)
		if err != nil {
			status := errs.ErrAuthentication
			if errs.ErrTokenExpired.Is(err) {
				status = errs.ErrTokenExpired
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, status)
			return
		}

		c.Set(CtxUserIDKey, userID)
		c.Set(CtxTokenKey, token)
		c.Next()
	}
}

// UserID reads the authenticated identity bound by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}
