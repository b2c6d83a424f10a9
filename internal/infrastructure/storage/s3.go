package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jhoicas/arca-facturacion/internal/domain"
	"github.com/jhoicas/arca-facturacion/pkg/config"
)

// límite de lectura: un certificado o llave nunca debería superar 1 MB
const maxObjectSize = 1 << 20

// S3Reader lee objetos de un bucket S3 (o compatible). Acepta "s3://bucket/clave" o una clave
// relativa al bucket por defecto.
type S3Reader struct {
	client *s3.Client
	bucket string
}

// NewS3Reader crea el cliente con la cadena de credenciales por defecto de AWS.
func NewS3Reader(ctx context.Context, cfg config.StorageConfig) (*S3Reader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: configuración AWS: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Reader{client: client, bucket: cfg.S3Bucket}, nil
}

func (r *S3Reader) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	bucket, key, err := r.locate(path)
	if err != nil {
		return nil, err
	}
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			return nil, fmt.Errorf("storage: s3://%s/%s: %w", bucket, key, domain.ErrFileNotFound)
		}
		return nil, fmt.Errorf("storage: descargar s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize))
	if err != nil {
		return nil, fmt.Errorf("storage: leer s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (r *S3Reader) locate(path string) (bucket, key string, err error) {
	path = strings.TrimSpace(path)
	if rest, ok := strings.CutPrefix(path, "s3://"); ok {
		bucket, key, _ = strings.Cut(rest, "/")
	} else {
		bucket, key = r.bucket, strings.TrimPrefix(path, "/")
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("storage: ruta S3 inválida %q: %w", path, domain.ErrFileNotFound)
	}
	return bucket, key, nil
}
