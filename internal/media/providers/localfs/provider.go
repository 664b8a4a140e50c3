// Package localfs implements media.Blobs on the local filesystem. Stored
// files are served by the HTTP layer under the configured public base URL.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned for keys that escape the blob root.
var ErrPathTraversal = errors.New("path traversal is forbidden")

// Provider stores blobs under a root directory.
type Provider struct {
	root          string
	publicBaseURL string
}

// New creates a filesystem blob provider rooted at root.
func New(root, publicBaseURL string) (*Provider, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve blob root: %w", err)
	}
	return &Provider{root: abs, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Put writes data under key, creating parent directories as needed.
func (p *Provider) Put(_ context.Context, key string, reader io.Reader) error {
	dest, err := p.hostPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// PublicURL returns the browsable location for a stored key.
func (p *Provider) PublicURL(key string) string {
	return p.publicBaseURL + "/" + strings.TrimLeft(key, "/")
}

// Root returns the absolute blob directory, for static file serving.
func (p *Provider) Root() string {
	return p.root
}

func (p *Provider) hostPath(key string) (string, error) {
	cleaned := filepath.Clean("/" + key)
	dest := filepath.Join(p.root, cleaned)
	if !strings.HasPrefix(dest, p.root+string(os.PathSeparator)) {
		return "", ErrPathTraversal
	}
	return dest, nil
}
