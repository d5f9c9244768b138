package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/andresuchdata/cloudpath/internal/config"
	"github.com/andresuchdata/cloudpath/internal/drive"
	"github.com/andresuchdata/cloudpath/internal/storage"
	"github.com/andresuchdata/cloudpath/internal/storage/objectstore"
)

// OpenBackend builds the backend called name ("s3" or "drive") from cfg.
func OpenBackend(ctx context.Context, name string, cfg *config.Config) (storage.Backend, error) {
	switch strings.ToLower(name) {
	case "", "s3":
		return objectstore.New(ctx, cfg.ObjectStore)
	case "drive", "gdrive":
		return drive.NewService(ctx, cfg.Drive)
	}
	return nil, fmt.Errorf("unknown backend %q (want s3 or drive)", name)
}
