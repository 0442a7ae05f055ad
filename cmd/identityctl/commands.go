package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/cigarclub/identity/internal/config"
	"github.com/cigarclub/identity/internal/model"
	"github.com/cigarclub/identity/internal/service"
	"github.com/cigarclub/identity/internal/storage"
	"github.com/cigarclub/identity/internal/token"
)

// readPassword is replaced in tests to avoid touching the terminal.
var readPassword = term.ReadPassword

// now is the clock used for the cached access token freshness check.
var now = time.Now

func promptPassword(w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, "Password: "); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func credentialsFlags(name string, args []string, w io.Writer, extra func(fs *flag.FlagSet)) (email, password string, err error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(w)
	e := fs.String("email", "", "email")
	p := fs.String("password", "", "password (prompted when empty)")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	if *e == "" {
		return "", "", errors.New("need -email")
	}
	if *p == "" {
		pw, err := promptPassword(w)
		if err != nil {
			return "", "", err
		}
		*p = pw
	}
	return *e, *p, nil
}

func cmdRegister(ctx context.Context, c *client, args []string, w io.Writer) error {
	var first, last *string
	email, password, err := credentialsFlags("register", args, w, func(fs *flag.FlagSet) {
		first = fs.String("first", "", "first name")
		last = fs.String("last", "", "last name")
	})
	if err != nil {
		return err
	}
	resp, err := c.register(ctx, email, password, *first, *last)
	if err != nil {
		return err
	}
	if err := saveSession(sessionFromAuth(resp)); err != nil {
		return err
	}
	fmt.Fprintf(w, "registered %s (%s)\n", resp.Email, resp.Role)
	return nil
}

func cmdLogin(ctx context.Context, c *client, args []string, w io.Writer) error {
	email, password, err := credentialsFlags("login", args, w, nil)
	if err != nil {
		return err
	}
	resp, err := c.login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := saveSession(sessionFromAuth(resp)); err != nil {
		return err
	}
	fmt.Fprintf(w, "logged in as %s (%s)\n", resp.Email, resp.Role)
	return nil
}

func cmdRefresh(ctx context.Context, c *client, w io.Writer) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	if _, err := rotate(ctx, c, s); err != nil {
		return err
	}
	fmt.Fprintln(w, "ok")
	return nil
}

// rotate exchanges the cached refresh token and stores the new pair.
// A rejected token clears the cache since it can never succeed again.
func rotate(ctx context.Context, c *client, s sessionFile) (sessionFile, error) {
	resp, err := c.refresh(ctx, s.RefreshToken)
	var ae *apiError
	if errors.As(err, &ae) && ae.Status == 401 {
		_ = clearSession()
		return s, fmt.Errorf("%w: %v", errNoSession, err)
	}
	if err != nil {
		return s, err
	}
	next := sessionFromAuth(resp)
	return next, saveSession(next)
}

func cmdLogout(ctx context.Context, c *client, w io.Writer) error {
	s, err := loadSession()
	if err != nil {
		return err
	}
	if err := c.logout(ctx, s.RefreshToken); err != nil {
		return err
	}
	if err := clearSession(); err != nil {
		return err
	}
	fmt.Fprintln(w, "logged out")
	return nil
}

// accessToken returns a usable access token, rotating the session when the cached one expired.
func accessToken(ctx context.Context, c *client) (string, error) {
	s, err := loadSession()
	if err != nil {
		return "", err
	}
	if !s.fresh(now()) {
		if s, err = rotate(ctx, c, s); err != nil {
			return "", err
		}
	}
	return s.AccessToken, nil
}

func cmdWhoami(ctx context.Context, c *client, w io.Writer) error {
	access, err := accessToken(ctx, c)
	if err != nil {
		return err
	}
	me, err := c.me(ctx, access)
	if err != nil {
		return err
	}
	printJSON(w, me)
	return nil
}

func cmdUsers(ctx context.Context, c *client, w io.Writer) error {
	access, err := accessToken(ctx, c)
	if err != nil {
		return err
	}
	users, err := c.users(ctx, access)
	if err != nil {
		return err
	}
	printJSON(w, users)
	return nil
}

// cmdVerify validates an access token with the same trust settings as the server.
func cmdVerify(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(w)
	raw := fs.String("token", "", "access token (defaults to the cached one)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(fs.Args(), nil)
	if err != nil {
		return err
	}
	if *raw == "" {
		s, err := loadSession()
		if err != nil {
			return err
		}
		*raw = s.AccessToken
	}

	signer, err := token.NewSigner(cfg.Token())
	if err != nil {
		return err
	}
	claims, err := signer.Validate(*raw)
	if err != nil {
		return err
	}
	printJSON(w, map[string]any{
		"sub":       claims.Subject.String(),
		"email":     claims.Email,
		"role":      claims.Role,
		"issuer":    claims.Issuer,
		"audience":  claims.Audience,
		"expiresAt": claims.ExpiresAt,
		"version":   claims.Version,
	})
	return nil
}

// cmdSetRole changes an account's role directly in the store and revokes its sessions.
func cmdSetRole(ctx context.Context, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("set-role", flag.ContinueOnError)
	fs.SetOutput(w)
	email := fs.String("email", "", "account email")
	roleName := fs.String("role", "", "User or Admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *roleName == "" {
		return errors.New("need -email and -role")
	}
	role, err := model.ParseRole(*roleName)
	if err != nil {
		return err
	}
	cfg, err := config.Load(fs.Args(), nil)
	if err != nil {
		return err
	}

	st, err := storage.Open(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer st.Close()

	revoked, err := service.NewAccountService(st.Accounts, zap.NewNop()).SetRole(ctx, *email, role)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s is now %s; %d session(s) revoked\n", model.NormalizeEmail(*email), role, revoked)
	return nil
}
