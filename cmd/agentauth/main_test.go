package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonwraymond/agentauth/keys"
	"github.com/jonwraymond/agentauth/tokentest"
)

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	if err := run(context.Background(), nil, nil, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	for _, name := range []string{"keygen", "token", "verify", "serve"} {
		if !strings.Contains(out.String(), name) {
			t.Errorf("usage does not list %s", name)
		}
	}

	if err := run(context.Background(), []string{"rotate"}, nil, &out); !errors.Is(err, errUsage) {
		t.Errorf("unknown command error = %v", err)
	}
}

func TestKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.jwk")
	var out bytes.Buffer
	err := run(context.Background(), []string{"keygen", "--agent", "agent://support-bot", "--kid", "k1", "-o", path}, nil, &out)
	if err != nil {
		t.Fatalf("keygen error = %v", err)
	}

	var public keys.JWKS
	if err := json.Unmarshal(out.Bytes(), &public); err != nil {
		t.Fatal(err)
	}
	if len(public.Keys) != 1 || public.Keys[0].D != "" || public.Keys[0].Kid != "k1" {
		t.Errorf("public output = %+v", public)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %v", info.Mode().Perm())
	}
	m, err := keys.LoadFile(path, keys.LoadOptions{})
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if m.AgentID != "agent://support-bot" || m.KeyID != "k1" {
		t.Errorf("material = %+v", m)
	}

	if err := run(context.Background(), []string{"keygen", "--agent", "a", "-o", path}, nil, &out); err == nil {
		t.Error("keygen overwrote an existing key file")
	}
	if err := run(context.Background(), []string{"keygen"}, nil, &out); !errors.Is(err, errUsage) {
		t.Errorf("keygen without flags error = %v", err)
	}
}

func TestTokenAndVerify(t *testing.T) {
	ts := tokentest.NewServer(tokentest.Config{})
	defer ts.Close()

	dir := t.TempDir()
	keyPath := filepath.Join(dir, "agent.jwk")
	var out bytes.Buffer
	if err := run(context.Background(), []string{"keygen", "--agent", "agent://support-bot", "-o", keyPath}, nil, &out); err != nil {
		t.Fatal(err)
	}
	m, err := keys.LoadFile(keyPath, keys.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	ts.RegisterAgent(m, "tickets.read")

	// The CLI uses default HTTP clients, which the plain-HTTP test server
	// accepts.
	cfgPath := filepath.Join(dir, "agentauth.yaml")
	cfg := fmt.Sprintf(`
agent:
  key: %s
token_service:
  endpoint: %s
  issuer: %s
  jwks_url: %s
resources:
  - name: tickets
    audience: https://tools.local/tickets
`, keyPath, ts.TokenURL(), ts.Issuer(), ts.JWKSURL())
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}

	out.Reset()
	err = run(context.Background(), []string{"token", "-c", cfgPath, "-a", "https://tools.local/tickets", "--raw", "tickets.read"}, nil, &out)
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	raw := strings.TrimSpace(out.String())

	out.Reset()
	err = run(context.Background(), []string{"verify", "-c", cfgPath, "-r", "tickets", "-s", "tickets.read"}, strings.NewReader(raw+"\n"), &out)
	if err != nil {
		t.Fatalf("verify error = %v", err)
	}
	if !strings.Contains(out.String(), "agent://support-bot") {
		t.Errorf("verify output = %s", out.String())
	}

	err = run(context.Background(), []string{"verify", "-c", cfgPath, "-r", "tickets", "-s", "tickets.write", raw}, nil, &out)
	if err == nil {
		t.Error("verify accepted a token without the required scope")
	}
}
