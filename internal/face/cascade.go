package face

import (
	"context"
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/modelhandle"
)

// CascadeConfig tunes the pixel-intensity cascade detector.
type CascadeConfig struct {
	Path         string  `yaml:"path"`
	MinSize      int     `yaml:"min_size"`
	MaxSize      int     `yaml:"max_size"`
	ShiftFactor  float64 `yaml:"shift_factor"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	IoUThreshold float64 `yaml:"iou_threshold"`
	MinQuality   float32 `yaml:"min_quality"`
}

// DefaultCascadeConfig returns the detector defaults used by the facefinder cascade.
func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		Path:         "models/facefinder",
		MinSize:      20,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
	}
}

// Cascade detects faces with a pigo cascade. The cascade file is unpacked
// once and shared by every request.
type Cascade struct {
	cfg    CascadeConfig
	handle *modelhandle.Handle[*pigo.Pigo]
}

// NewCascade returns a cascade locator. The cascade file is not read until
// the first Locate or Warm call.
func NewCascade(cfg CascadeConfig) *Cascade {
	return &Cascade{
		cfg: cfg,
		handle: modelhandle.New("cascade", emotion.ErrDetectorUnavailable, func(ctx context.Context) (*pigo.Pigo, error) {
			data, err := os.ReadFile(cfg.Path)
			if err != nil {
				return nil, fmt.Errorf("read cascade: %w", err)
			}
			classifier, err := pigo.NewPigo().Unpack(data)
			if err != nil {
				return nil, fmt.Errorf("unpack cascade: %w", err)
			}
			return classifier, nil
		}),
	}
}

// Warm loads the cascade eagerly.
func (c *Cascade) Warm(ctx context.Context) error {
	return c.handle.Warm(ctx)
}

func (c *Cascade) Locate(ctx context.Context, img *image.NRGBA) ([]Candidate, error) {
	classifier, err := c.handle.Get(ctx)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	rows, cols := b.Dy(), b.Dx()
	maxSize := c.cfg.MaxSize
	if side := min(rows, cols); maxSize <= 0 || maxSize > side {
		maxSize = side
	}
	params := pigo.CascadeParams{
		MinSize:     c.cfg.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: c.cfg.ShiftFactor,
		ScaleFactor: c.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(img),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := classifier.RunCascade(params, 0.0)
	dets = classifier.ClusterDetections(dets, c.cfg.IoUThreshold)

	candidates := make([]Candidate, 0, len(dets))
	for _, d := range dets {
		if d.Q < c.cfg.MinQuality {
			continue
		}
		q := float64(d.Q)
		candidates = append(candidates, Candidate{
			Box: Box{
				X: d.Col - d.Scale/2,
				Y: d.Row - d.Scale/2,
				W: d.Scale,
				H: d.Scale,
			},
			Confidence: &q,
		})
	}
	return candidates, nil
}
