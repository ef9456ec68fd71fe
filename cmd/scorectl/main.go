// Command scorectl manages signing keys and calls the score ledger API.
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

	"github.com/okian/scorenft/internal/adapters/auth"
	"github.com/okian/scorenft/internal/client"
	"github.com/okian/scorenft/internal/domain/model"
)

const usage = `scorectl - score ledger client

Usage:
  scorectl <command> [flags]

Commands:
  keygen     -out <file>                      create a signing key, print its identity
  identity   -key <file>                      print the identity of a key
  token      -key <file> -method <m> -path <p> [-body <s>] [-ttl 1m] [-aud a]
                                              print a call token for one request
  init       -key <file>                      install the key's identity as admin
  authorize  -key <file> -identity <id>       authorize a minter (admin)
  revoke     -key <file> -identity <id>       revoke a minter (admin)
  is-minter  -identity <id>                   check a minter
  mint       -key <file> -identity <id> -score <n> -hash <hex>
  repay      -key <file> -identity <id> -amount <n> [-repayment-id <s>]
  set-hash   -key <file> -identity <id> -hash <hex>
  score      -identity <id>
  metadata   -identity <id>
  contract

Every API command accepts -url (default $SCORENFT_URL or http://localhost:9080)
and -timeout.
`

const (
	defaultURL      = "http://localhost:9080"
	defaultTokenTTL = time.Minute
)

var errUsage = errors.New("usage")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			_, _ = os.Stderr.WriteString(usage)
		}
		_, _ = fmt.Fprintln(os.Stderr, "scorectl:", err)
		os.Exit(1)
	}
}

// command holds the flags shared by every subcommand.
type command struct {
	fs          *flag.FlagSet
	url         string
	timeout     time.Duration
	keyPath     string
	audience    string
	identity    string
	out         string
	ttl         time.Duration
	score       uint64
	amount      uint64
	hash        string
	repaymentID string
	method      string
	path        string
	body        string
}

func newCommand(name string) *command {
	c := &command{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	c.fs.SetOutput(io.Discard)
	base := os.Getenv("SCORENFT_URL")
	if base == "" {
		base = defaultURL
	}
	c.fs.StringVar(&c.url, "url", base, "API base URL")
	c.fs.DurationVar(&c.timeout, "timeout", 30*time.Second, "request timeout")
	c.fs.StringVar(&c.keyPath, "key", "", "signing key file")
	c.fs.StringVar(&c.audience, "aud", auth.DefaultAudience, "token audience")
	c.fs.StringVar(&c.identity, "identity", "", "target identity")
	c.fs.StringVar(&c.out, "out", "", "output file")
	c.fs.DurationVar(&c.ttl, "ttl", defaultTokenTTL, "token lifetime")
	c.fs.Uint64Var(&c.score, "score", 0, "initial score")
	c.fs.Uint64Var(&c.amount, "amount", 0, "repayment amount")
	c.fs.StringVar(&c.hash, "hash", "", "history hash, 64 hex chars")
	c.fs.StringVar(&c.repaymentID, "repayment-id", "", "repayment de-duplication key")
	c.fs.StringVar(&c.method, "method", "", "HTTP method the token is bound to")
	c.fs.StringVar(&c.path, "path", "", "request path the token is bound to")
	c.fs.StringVar(&c.body, "body", "", "exact request body the token is bound to")
	return c
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" || args[0] == "--help" {
		return errUsage
	}
	name := args[0]
	c := newCommand(name)
	if err := c.fs.Parse(args[1:]); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	switch name {
	case "keygen":
		return c.keygen(stdout)
	case "identity":
		signer, err := c.signer()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, signer.Identity())
		return err
	case "token":
		signer, err := c.signer()
		if err != nil {
			return err
		}
		if c.method == "" || c.path == "" {
			return fmt.Errorf("%w: -method and -path are required", errUsage)
		}
		token, err := signer.Issue(c.ttl, auth.Request{Method: c.method, Path: c.path, Body: []byte(c.body)})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(stdout, token)
		return err
	}

	result, err := c.call(ctx, name)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func (c *command) keygen(stdout io.Writer) error {
	if c.out == "" {
		return fmt.Errorf("%w: -out is required", errUsage)
	}
	key, err := auth.GenerateKey()
	if err != nil {
		return err
	}
	if err := auth.SaveKey(c.out, key); err != nil {
		return err
	}
	signer, err := auth.NewSigner(key, c.audience)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, signer.Identity())
	return err
}

func (c *command) signer() (*auth.Signer, error) {
	if c.keyPath == "" {
		return nil, fmt.Errorf("%w: -key is required", errUsage)
	}
	key, err := auth.LoadKey(c.keyPath)
	if err != nil {
		return nil, err
	}
	return auth.NewSigner(key, c.audience)
}

func (c *command) target() (model.Identity, error) {
	if c.identity == "" {
		return "", fmt.Errorf("%w: -identity is required", errUsage)
	}
	return model.ParseIdentity(c.identity)
}

func (c *command) historyHash() (model.HistoryHash, error) {
	if c.hash == "" {
		return model.HistoryHash{}, fmt.Errorf("%w: -hash is required", errUsage)
	}
	return model.ParseHistoryHash(c.hash)
}

// client builds an API client; signed reports whether calls carry a token.
func (c *command) client(signed bool) (*client.Client, *auth.Signer, error) {
	opts := []client.Option{client.WithTimeout(c.timeout), client.WithTokenTTL(c.ttl)}
	var signer *auth.Signer
	if signed {
		s, err := c.signer()
		if err != nil {
			return nil, nil, err
		}
		signer = s
		opts = append(opts, client.WithSigner(s))
	}
	return client.New(c.url, opts...), signer, nil
}

//nolint:gocyclo // one case per API command
func (c *command) call(ctx context.Context, name string) (any, error) {
	switch name {
	case "contract":
		api, _, _ := c.client(false)
		return api.Contract(ctx)
	case "score", "metadata", "is-minter":
		id, err := c.target()
		if err != nil {
			return nil, err
		}
		api, _, _ := c.client(false)
		switch name {
		case "score":
			return api.Score(ctx, id)
		case "is-minter":
			return api.IsAuthorizedMinter(ctx, id)
		}
		meta, found, err := api.Metadata(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("no record for %s", id)
		}
		return meta, nil
	case "init":
		api, signer, err := c.client(true)
		if err != nil {
			return nil, err
		}
		return api.Initialize(ctx, signer.Identity())
	case "authorize", "revoke", "mint", "repay", "set-hash":
		id, err := c.target()
		if err != nil {
			return nil, err
		}
		api, _, err := c.client(true)
		if err != nil {
			return nil, err
		}
		switch name {
		case "authorize":
			return api.AuthorizeMinter(ctx, id)
		case "revoke":
			return api.RevokeMinter(ctx, id)
		case "repay":
			return api.Repay(ctx, id, c.amount, c.repaymentID)
		}
		hash, err := c.historyHash()
		if err != nil {
			return nil, err
		}
		if name == "mint" {
			return api.Mint(ctx, id, c.score, hash)
		}
		return api.UpdateHistoryHash(ctx, id, hash)
	default:
		return nil, fmt.Errorf("%w: unknown command %q", errUsage, name)
	}
}
