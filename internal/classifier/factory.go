package classifier

import (
	"fmt"

	"github.com/kiranshivaraju/bovinoia/internal/breed"
	"github.com/kiranshivaraju/bovinoia/internal/classifier/demo"
	"github.com/kiranshivaraju/bovinoia/internal/classifier/onnx"
	"github.com/kiranshivaraju/bovinoia/internal/config"
	"github.com/kiranshivaraju/bovinoia/pkg/models"
)

// NewClassifier constructs the classification backend selected by config.
// Loading may be slow (model file, runtime init); callers run it off the request path.
func NewClassifier(cfg config.ModelConfig, catalog *breed.Catalog) (models.Classifier, error) {
	switch cfg.Backend {
	case "onnx":
		c, err := onnx.Load(onnx.Options{
			ModelPath:    cfg.Path,
			MetadataPath: cfg.MetadataPath,
			LabelsPath:   cfg.LabelsPath,
			LibraryPath:  cfg.LibraryPath,
			ImageSize:    cfg.ImageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load onnx model: %w", err)
		}
		return c, nil
	case "demo":
		return demo.New(catalog.Names(), nil), nil
	default:
		return nil, fmt.Errorf("unknown model backend %q: must be one of onnx, demo", cfg.Backend)
	}
}
