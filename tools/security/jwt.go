package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	errs "ChatWire/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options controls signing and TTLs. Access tokens authenticate both REST
// calls and the WebSocket handshake; refresh tokens only mint new pairs.
type Options struct {
	Secret        []byte // HMAC key (production: ENV/KMS)
	RefreshSecret []byte
	Alg           string        // HS256/HS384/HS512 (default HS256)
	AccessTTL     time.Duration // default 15m
	RefreshTTL    time.Duration // default 7d
}

func DefaultOptions(secret, refreshSecret []byte) Options {
	return Options{
		Secret:        secret,
		RefreshSecret: refreshSecret,
		Alg:           "HS256",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
}

// GeneratePair issues an access/refresh token pair for userID.
func GeneratePair(opts Options, userID string) (access, refresh string, expireAt time.Time, err error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", "", time.Time{}, err
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = 7 * 24 * time.Hour
	}
	now := time.Now()
	exp := now.Add(opts.AccessTTL)

	access, err = sign(method, opts.Secret, userID, now, exp)
	if err != nil {
		return "", "", time.Time{}, err
	}
	refresh, err = sign(method, opts.RefreshSecret, userID, now, now.Add(opts.RefreshTTL))
	if err != nil {
		return "", "", time.Time{}, err
	}
	return access, refresh, exp, nil
}

func sign(method jwtlib.SigningMethod, secret []byte, userID string, now, exp time.Time) (string, error) {
	claims := jwtlib.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	return jwtlib.NewWithClaims(method, claims).SignedString(secret)
}

// Verify checks an access token and returns the user id it was issued to.
func Verify(opts Options, token string) (string, error) {
	return verifyWith(opts.Alg, opts.Secret, token)
}

// VerifyRefresh checks a refresh token and returns the user id.
func VerifyRefresh(opts Options, token string) (string, error) {
	return verifyWith(opts.Alg, opts.RefreshSecret, token)
}

func verifyWith(alg string, secret []byte, token string) (string, error) {
	if _, err := signingMethod(alg); err != nil {
		return "", err
	}
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// HMAC family only
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return "", errs.ErrTokenExpired.WrapMsg("expired token")
		}
		return "", errs.ErrAuthentication.WrapMsg("parse token", "err", err)
	}
	if !parsed.Valid {
		return "", errs.ErrAuthentication.WrapMsg("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return "", errs.ErrAuthentication.WrapMsg("claims type mismatch")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errs.ErrAuthentication.WrapMsg("missing sub claim")
	}
	return sub, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
