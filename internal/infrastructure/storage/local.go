package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhoicas/arca-facturacion/internal/domain"
)

// LocalReader lee desde el sistema de archivos. Las rutas relativas se resuelven contra root.
type LocalReader struct {
	root string
}

// NewLocalReader crea el lector local; root vacío = directorio de trabajo.
func NewLocalReader(root string) *LocalReader {
	return &LocalReader{root: root}
}

func (r *LocalReader) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage: ruta vacía: %w", domain.ErrFileNotFound)
	}
	if !filepath.IsAbs(path) && r.root != "" {
		path = filepath.Join(r.root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: %s: %w", path, domain.ErrFileNotFound)
		}
		return nil, fmt.Errorf("storage: leer %s: %w", path, err)
	}
	return data, nil
}
