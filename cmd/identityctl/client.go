package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ---- http client ----

type authResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Email        string `json:"email"`
	Role         string `json:"role"`
}

type meResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// apiError is the server's uniform error body.
type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

type client struct {
	base string
	hc   *http.Client
}

func newClient(base, caPath string, insecure bool) (*client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	switch {
	case insecure:
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // dev flag
	case caPath != "":
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("bad CA cert")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return &client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Transport: tr, Timeout: 30 * time.Second},
	}, nil
}

// do sends in as JSON and decodes a 2xx body into out. Non-2xx bodies become *apiError.
func (c *client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ae := &apiError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(ae); err != nil || ae.Code == "" {
			ae.Code = http.StatusText(resp.StatusCode)
		}
		return ae
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) register(ctx context.Context, email, password, first, last string) (authResponse, error) {
	var out authResponse
	in := map[string]string{"email": email, "password": password, "firstName": first, "lastName": last}
	err := c.do(ctx, http.MethodPost, "/api/auth/register", "", in, &out)
	return out, err
}

func (c *client) login(ctx context.Context, email, password string) (authResponse, error) {
	var out authResponse
	in := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/api/auth/login", "", in, &out)
	return out, err
}

func (c *client) refresh(ctx context.Context, refreshToken string) (authResponse, error) {
	var out authResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refreshToken}, &out)
	return out, err
}

func (c *client) logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", "", map[string]string{"refreshToken": refreshToken}, nil)
}

func (c *client) me(ctx context.Context, access string) (meResponse, error) {
	var out meResponse
	err := c.do(ctx, http.MethodGet, "/api/auth/me", access, nil, &out)
	return out, err
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c *client) users(ctx context.Context, access string) ([]userResponse, error) {
	var out []userResponse
	err := c.do(ctx, http.MethodGet, "/api/users", access, nil, &out)
	return out, err
}
