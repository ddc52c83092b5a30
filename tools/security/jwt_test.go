package security

import (
	"testing"
	"time"

	"ChatWire/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func testOptions() Options {
	return DefaultOptions([]byte("access-secret"), []byte("refresh-secret"))
}

func TestGenerateAndVerifyPair(t *testing.T) {
	opts := testOptions()
	access, refresh, expireAt, err := GeneratePair(opts, "user-42")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if access == refresh {
		t.Fatal("access and refresh tokens are identical")
	}
	if !expireAt.After(time.Now()) {
		t.Fatalf("expireAt in the past: %v", expireAt)
	}

	userID, err := Verify(opts, access)
	if err != nil || userID != "user-42" {
		t.Fatalf("verify access: %q %v", userID, err)
	}
	userID, err = VerifyRefresh(opts, refresh)
	if err != nil || userID != "user-42" {
		t.Fatalf("verify refresh: %q %v", userID, err)
	}
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	opts := testOptions()
	access, refresh, _, err := GeneratePair(opts, "user-42")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Verify(opts, refresh); err == nil {
		t.Fatal("refresh token passed access verification")
	}
	if _, err := VerifyRefresh(opts, access); err == nil {
		t.Fatal("access token passed refresh verification")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	access, _, _, err := GeneratePair(testOptions(), "user-42")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	other := DefaultOptions([]byte("different"), []byte("different"))
	if _, err := Verify(other, access); !errs.IsAuthentication(err) {
		t.Fatalf("wrong secret err = %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	opts := testOptions()
	now := time.Now()
	access, err := sign(jwtlib.SigningMethodHS256, opts.Secret, "user-42", now.Add(-time.Hour), now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = Verify(opts, access)
	if !errs.ErrTokenExpired.Is(err) {
		t.Fatalf("expired err = %v", err)
	}
}

func TestVerifyGarbage(t *testing.T) {
	if _, err := Verify(testOptions(), "not.a.token"); !errs.IsAuthentication(err) {
		t.Fatalf("garbage err = %v", err)
	}
}
