package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ---- cached session ----

type sessionFile struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	ExpiresAt    time.Time `json:"expires_at"`
}

var errNoSession = errors.New("no cached session (login required)")

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "identity")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "identity")
}

func sessionPath() string { return filepath.Join(cfgDir(), "session.json") }

func saveSession(s sessionFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(sessionPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func loadSession() (sessionFile, error) {
	var s sessionFile
	b, err := os.ReadFile(sessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return s, errNoSession
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, err
	}
	if s.RefreshToken == "" && s.AccessToken == "" {
		return s, errNoSession
	}
	return s, nil
}

func clearSession() error {
	err := os.Remove(sessionPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// sessionFromAuth caches an auth response. The access token expiry is read
// without verification; it only drives the local freshness check.
func sessionFromAuth(a authResponse) sessionFile {
	var claims jwt.RegisteredClaims
	_, _, _ = jwt.NewParser().ParseUnverified(a.AccessToken, &claims)
	exp := time.Now().Add(15 * time.Minute)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return sessionFile{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		Email:        a.Email,
		Role:         a.Role,
		ExpiresAt:    exp,
	}
}

// fresh reports whether the cached access token is still usable at now.
func (s sessionFile) fresh(now time.Time) bool {
	return s.AccessToken != "" && now.Before(s.ExpiresAt)
}
