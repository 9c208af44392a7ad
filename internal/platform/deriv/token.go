package deriv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lunarwatch/lunarwatch/internal/crypto"
	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// TokenProvider resolves an account's credential reference to a bearer token
// for the upstream API. Implementations never log or persist the token.
type TokenProvider interface {
	Token(ctx context.Context, ref string) (string, error)
}

// StaticProvider returns the same token for every reference. Used when the
// deployment monitors a single authorized account set through one API token.
type StaticProvider struct {
	token string
}

// NewStaticProvider validates the token format up front so misconfiguration
// fails at startup rather than on the first poll.
func NewStaticProvider(token string) (*StaticProvider, error) {
	if !crypto.ValidToken(token) {
		return nil, fmt.Errorf("deriv: api token does not match the expected format")
	}
	return &StaticProvider{token: token}, nil
}

func (p *StaticProvider) Token(_ context.Context, _ string) (string, error) {
	return p.token, nil
}

// FileProvider resolves a credential reference to a token file dropped by an
// external provisioning process under Dir. The file is named "<ref>.token"
// and holds only the token. Because provisioning is asynchronous, Token polls
// for the file up to Wait before giving up with ErrTokenTimeout.
type FileProvider struct {
	dir  string
	wait time.Duration
}

const (
	defaultTokenWait  = 120 * time.Second
	tokenPollInterval = time.Second
)

// NewFileProvider creates a provider reading token files from dir. A
// non-positive wait falls back to 120 seconds.
func NewFileProvider(dir string, wait time.Duration) *FileProvider {
	if wait <= 0 {
		wait = defaultTokenWait
	}
	return &FileProvider{dir: dir, wait: wait}
}

// Token polls for the credential file until it appears with a well-formed
// token, the bounded wait elapses, or the context is cancelled.
func (p *FileProvider) Token(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("deriv: empty credential reference")
	}

	path := filepath.Join(p.dir, ref+".token")
	deadline := time.Now().Add(p.wait)

	ticker := time.NewTicker(tokenPollInterval)
	defer ticker.Stop()

	for {
		data, err := os.ReadFile(path)
		if err == nil {
			token := strings.TrimSpace(string(data))
			if crypto.ValidToken(token) {
				return token, nil
			}
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("deriv: token for %q: %w", ref, domain.ErrTokenTimeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// EncryptedProvider resolves every reference to the single encrypted token
// file configured at startup, decrypting it on each call so the plaintext
// never sits in memory between polls.
type EncryptedProvider struct {
	cfg crypto.TokenConfig
}

// NewEncryptedProvider wraps an encrypted token file and its password.
func NewEncryptedProvider(path, password string) *EncryptedProvider {
	return &EncryptedProvider{cfg: crypto.TokenConfig{
		EncryptedTokenPath: path,
		TokenPassword:      password,
	}}
}

func (p *EncryptedProvider) Token(_ context.Context, _ string) (string, error) {
	return crypto.LoadToken(p.cfg)
}
