// Package illustrator optionally decorates digest entries with generated
// images. It is best effort: failures are logged by the caller and the
// entry ships without an image.
package illustrator

import (
	"context"

	"github.com/jhchen-tw/inbox-digest/internal/config"
	"github.com/jhchen-tw/inbox-digest/internal/digest"
)

// Illustrator returns the page-relative path of an image for the entry, or
// an empty string when no image is produced.
type Illustrator interface {
	Illustrate(ctx context.Context, e *digest.Entry) (string, error)
}

// Disabled is the no-op illustrator used when the feature flag is off.
type Disabled struct{}

func (Disabled) Illustrate(ctx context.Context, e *digest.Entry) (string, error) {
	return "", nil
}

// New creates an illustrator based on the configuration
func New(cfg *config.Config) Illustrator {
	if !cfg.Illustrator.Enabled {
		return Disabled{}
	}
	return NewGeminiIllustrator(
		cfg.Illustrator.APIKey,
		cfg.Illustrator.Model,
		cfg.Illustrator.Size,
		cfg.Output.AssetsDir,
	)
}
