package main

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/jonwraymond/agentauth/auth"
	"github.com/jonwraymond/agentauth/config"
	"github.com/jonwraymond/agentauth/keys"
	"github.com/jonwraymond/agentauth/service"
)

const defaultConfig = "agentauth.yaml"

func keygenCommand() *command {
	var agentID, keyID, outPath string
	return &command{
		name:    "keygen",
		summary: "generate an Ed25519 agent key; prints the public JWK",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVar(&agentID, "agent", "", "agent identifier stored with the key (required)")
			fs.StringVar(&keyID, "kid", "", "key id (default: random)")
			fs.StringVarP(&outPath, "out", "o", "", "write the private JWK to this file (required)")
		},
		run: func(_ context.Context, _ []string, _ io.Reader, out io.Writer) error {
			if agentID == "" || outPath == "" {
				return fmt.Errorf("%w: keygen requires --agent and --out", errUsage)
			}
			if keyID == "" {
				keyID = uuid.NewString()
			}
			_, private, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			m, err := keys.New(keyID, agentID, private)
			if err != nil {
				return err
			}

			doc, err := json.MarshalIndent(keys.EncodePrivateJWK(m), "", "  ")
			if err != nil {
				return err
			}
			f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return err
			}
			if _, err := f.Write(append(doc, '\n')); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			return writeJSON(out, keys.JWKS{Keys: []keys.JWK{m.PublicJWK()}})
		},
	}
}

func tokenCommand() *command {
	var configPath, audience string
	var raw bool
	return &command{
		name:    "token",
		summary: "obtain an access token for an audience and scopes",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVarP(&configPath, "config", "c", defaultConfig, "configuration file")
			fs.StringVarP(&audience, "audience", "a", "", "tool the token is for (required)")
			fs.BoolVar(&raw, "raw", false, "print only the serialized token")
		},
		run: func(ctx context.Context, scopes []string, _ io.Reader, out io.Writer) error {
			if audience == "" {
				return fmt.Errorf("%w: token requires --audience", errUsage)
			}
			svc, err := open(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close(context.WithoutCancel(ctx)) }()
			if svc.Agent() == nil {
				return fmt.Errorf("%s configures no agent key", configPath)
			}

			token, err := svc.Agent().Token(ctx, audience, scopes...)
			if err != nil {
				return err
			}
			if raw {
				_, err = fmt.Fprintln(out, token.Raw)
				return err
			}
			return writeJSON(out, map[string]any{
				"access_token": token.Raw,
				"subject":      token.Subject,
				"audience":     token.Audience,
				"scopes":       token.Scopes,
				"expires_at":   token.ExpiresAt.UTC().Format(time.RFC3339),
			})
		},
	}
}

func verifyCommand() *command {
	var configPath, resource, scope string
	return &command{
		name:    "verify",
		summary: "verify a token for a configured resource (token from arg or stdin)",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVarP(&configPath, "config", "c", defaultConfig, "configuration file")
			fs.StringVarP(&resource, "resource", "r", "", "resource name (required)")
			fs.StringVarP(&scope, "scope", "s", "", "scope the token must grant")
		},
		run: func(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
			if resource == "" {
				return fmt.Errorf("%w: verify requires --resource", errUsage)
			}
			raw, err := tokenArg(args, in)
			if err != nil {
				return err
			}
			svc, err := open(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close(context.WithoutCancel(ctx)) }()

			if v, ok := svc.AccessVerifier(resource); ok {
				grant, err := v.VerifyToken(ctx, raw, scope)
				if err != nil {
					return err
				}
				return writeJSON(out, grant)
			}
			if v, ok := svc.AssertionVerifier(resource); ok {
				id, err := v.VerifyToken(ctx, raw)
				if err != nil {
					return err
				}
				return writeJSON(out, id)
			}
			return fmt.Errorf("%w: %q", service.ErrUnknownResource, resource)
		},
	}
}

func serveCommand() *command {
	var configPath string
	return &command{
		name:    "serve",
		summary: "serve health and metrics and run sweepers until interrupted",
		flags: func(fs *pflag.FlagSet) {
			fs.StringVarP(&configPath, "config", "c", defaultConfig, "configuration file")
		},
		run: func(ctx context.Context, _ []string, _ io.Reader, _ io.Writer) error {
			svc, err := open(ctx, configPath)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close(context.WithoutCancel(ctx)) }()
			return svc.Run(ctx)
		},
	}
}

func open(ctx context.Context, path string) (*service.Service, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return service.New(ctx, cfg)
}

func tokenArg(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.TrimPrefix(args[0], "Bearer "), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", auth.ErrMissingBearerToken
	}
	return strings.TrimPrefix(line, "Bearer "), nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
