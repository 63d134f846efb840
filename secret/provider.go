package secret

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// ErrInsecurePermissions is returned when a secret file is readable by
// group or others.
var ErrInsecurePermissions = errors.New("secret: file is accessible by group or others")

// FileProvider reads a secret from a file. Relative references resolve
// against Dir. A single trailing newline is trimmed.
type FileProvider struct {
	// Dir is the base for relative paths. Default: the working directory.
	Dir string

	// AllowShared skips the owner-only permission check.
	AllowShared bool
}

// Name returns "file".
func (p *FileProvider) Name() string { return "file" }

// Resolve reads the file named by ref.
func (p *FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	data, err := readPrivate(p.path(ref), p.AllowShared)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSuffix(string(data), "\n"), "\r"), nil
}

// Close is a no-op.
func (p *FileProvider) Close() error { return nil }

func (p *FileProvider) path(ref string) string {
	if filepath.IsAbs(ref) || p.Dir == "" {
		return ref
	}
	return filepath.Join(p.Dir, ref)
}

func readPrivate(path string, allowShared bool) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	if !allowShared && info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("%w: %s (%s)", ErrInsecurePermissions, path, info.Mode().Perm())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	return data, nil
}

// EnvProvider reads a secret from an environment variable. An unset
// variable is an error; an empty one is returned as "".
type EnvProvider struct{}

// Name returns "env".
func (EnvProvider) Name() string { return "env" }

// Resolve returns the value of the variable named by ref.
func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("secret: environment variable %s is not set", ref)
	}
	return v, nil
}

// Close is a no-op.
func (EnvProvider) Close() error { return nil }

// AgeProvider decrypts age-encrypted files. Both binary and ASCII-armored
// ciphertexts are accepted.
type AgeProvider struct {
	identities []age.Identity
	dir        string
}

// NewAgeProvider loads identities from an age identity file
// (AGE-SECRET-KEY-1... lines). Relative references resolve against dir.
func NewAgeProvider(identityFile, dir string) (*AgeProvider, error) {
	data, err := readPrivate(identityFile, false)
	if err != nil {
		return nil, err
	}
	ids, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("secret: parsing age identities: %w", err)
	}
	return &AgeProvider{identities: ids, dir: dir}, nil
}

// Name returns "age".
func (p *AgeProvider) Name() string { return "age" }

// Resolve decrypts the file named by ref.
func (p *AgeProvider) Resolve(_ context.Context, ref string) (string, error) {
	path := ref
	if !filepath.IsAbs(path) && p.dir != "" {
		path = filepath.Join(p.dir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("secret: %w", err)
	}
	defer f.Close()

	in := bufio.NewReader(f)
	var src io.Reader = in
	if head, _ := in.Peek(len(armor.Header)); string(head) == armor.Header {
		src = armor.NewReader(in)
	}

	r, err := age.Decrypt(src, p.identities...)
	if err != nil {
		return "", fmt.Errorf("secret: decrypting %s: %w", filepath.Base(path), err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("secret: reading %s: %w", filepath.Base(path), err)
	}
	return strings.TrimSuffix(string(out), "\n"), nil
}

// Close is a no-op.
func (p *AgeProvider) Close() error { return nil }

var (
	_ Provider = (*FileProvider)(nil)
	_ Provider = EnvProvider{}
	_ Provider = (*AgeProvider)(nil)
)
