// Command identityctl is a CLI client and admin tool for the identity service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"
)

func usage() {
	fmt.Fprintf(os.Stderr, `identityctl
Usage:
  identityctl [-addr URL] [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  register   -email <email> [-password <pw>] [-first <name>] [-last <name>]   (saves session)
  login      -email <email> [-password <pw>]                                  (saves session)
  refresh                                                                     (rotates cached refresh token)
  logout                                                                      (revokes and forgets session)
  whoami
  users                                                                       (Admin only)
  verify     [-token <jwt>] [server config flags]                             (local validation)
  set-role   -email <email> -role User|Admin [-- server config flags]         (direct store access)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// globals are the flags shared by every HTTP command.
type globals struct {
	addr     string
	caPath   string
	insecure bool
}

// main dispatches subcommands.
func main() {
	var g globals
	flag.StringVar(&g.addr, "addr", "http://localhost:8080", "server base URL")
	flag.StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	flag.BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch cmd {
	case "version":
		fmt.Printf("identityctl %s (%s)\n", version, buildDate)
	case "register":
		err = withClient(g, func(c *client) error { return cmdRegister(ctx, c, args, os.Stdout) })
	case "login":
		err = withClient(g, func(c *client) error { return cmdLogin(ctx, c, args, os.Stdout) })
	case "refresh":
		err = withClient(g, func(c *client) error { return cmdRefresh(ctx, c, os.Stdout) })
	case "logout":
		err = withClient(g, func(c *client) error { return cmdLogout(ctx, c, os.Stdout) })
	case "whoami":
		err = withClient(g, func(c *client) error { return cmdWhoami(ctx, c, os.Stdout) })
	case "users":
		err = withClient(g, func(c *client) error { return cmdUsers(ctx, c, os.Stdout) })
	case "verify":
		err = cmdVerify(args, os.Stdout)
	case "set-role":
		err = cmdSetRole(ctx, args, os.Stdout)
	default:
		usage()
	}
	if err != nil {
		fail(err)
	}
}

func withClient(g globals, fn func(*client) error) error {
	c, err := newClient(g.addr, g.caPath, g.insecure)
	if err != nil {
		return err
	}
	return fn(c)
}

// ---- helpers ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: code=%s status=%d msg=%s\n", ae.Code, ae.Status, ae.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
