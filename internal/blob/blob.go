// Package blob implements the blob store used for backgrounds, portraits and renders.
// References returned by Put are the store-relative path of the object.
package blob

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/darmiel/kartei/internal/config"
	"github.com/darmiel/kartei/internal/core"
)

// Build creates the blob store selected in the configuration.
func Build(ctx context.Context, cfg config.BlobConfig) (core.BlobStore, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemory(), nil
	case "fs":
		var conf FSConfig
		if err := decode(cfg, &conf); err != nil {
			return nil, err
		}
		return NewFS(conf.Root)
	case "s3":
		var conf S3Config
		if err := decode(cfg, &conf); err != nil {
			return nil, err
		}
		return NewS3(ctx, conf)
	default:
		return nil, fmt.Errorf("unknown blob store type '%s'", cfg.Type)
	}
}

func decode(cfg config.BlobConfig, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata: nil,
		Result:   out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder for %s blob store: %w", cfg.Type, err)
	}
	if err := decoder.Decode(cfg.Config); err != nil {
		return fmt.Errorf("failed to decode config for %s blob store: %w", cfg.Type, err)
	}
	return nil
}

// cleanKey normalizes an object key and rejects keys escaping the store root.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty blob key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("blob key '%s' must be relative", key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("blob key '%s' escapes the store root", key)
	}
	return cleaned, nil
}
