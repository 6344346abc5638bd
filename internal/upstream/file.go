package upstream

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vastio/vastfetch/internal/vast"
)

// File reads a VAST document from local disk, mainly for fixtures and
// offline development.
type File struct {
	path string
}

// NewFile builds a file upstream for the given path.
func NewFile(path string) (*File, error) {
	if strings.TrimSpace(path) == "" {
		return nil, vast.NewConfigError("file upstream requires a path")
	}
	return &File{path: path}, nil
}

// Identifier returns a synthetic file:// identifier.
func (u *File) Identifier() string {
	return "file://" + u.path
}

// Fetch reads the file. Extra params/headers have no meaning for files and
// are ignored.
func (u *File) Fetch(ctx context.Context, _, _ map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(u.path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", u.path, err)
	}
	return string(data), nil
}
