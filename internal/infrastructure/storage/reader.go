// Package storage implementa la lectura de bytes (certificados y llaves) desde el backend configurado.
package storage

import (
	"context"
	"fmt"

	"github.com/jhoicas/arca-facturacion/pkg/config"
)

// Reader lee el contenido completo de un archivo. Si la ruta no existe devuelve domain.ErrFileNotFound.
type Reader interface {
	ReadBytes(ctx context.Context, path string) ([]byte, error)
}

// NewReader selecciona la implementación según STORAGE_BACKEND.
func NewReader(ctx context.Context, cfg config.StorageConfig) (Reader, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalReader(cfg.LocalRoot), nil
	case "s3":
		return NewS3Reader(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: backend desconocido %q", cfg.Backend)
	}
}
