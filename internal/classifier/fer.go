package classifier

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/grpcclient"
	"github.com/example/emotion-sense/internal/ingest"
	"github.com/example/emotion-sense/internal/logging"
	"github.com/example/emotion-sense/internal/modelhandle"
)

// FERMethod is the gRPC method served by the FER model server.
const FERMethod = "/emotion.v1.EmotionService/Classify"

// FER classifies through a gRPC model server hosting a FER network. Scores
// come back as fractions.
type FER struct {
	maxSide int
	handle  *modelhandle.Handle[*grpcclient.StructClient]
}

// NewFER returns a backend for the model server at addr. The connection is
// established on first use and shared afterwards.
func NewFER(addr string, dialTimeout time.Duration, maxSide int, logger *zap.Logger, opts ...grpc.DialOption) *FER {
	logger = logger.Named("fer")
	return &FER{
		maxSide: maxSide,
		handle: modelhandle.New("fer", emotion.ErrClassificationUnavailable, func(ctx context.Context) (*grpcclient.StructClient, error) {
			if addr == "" {
				return nil, fmt.Errorf("fer address not configured")
			}
			conn, err := grpcclient.Dial(ctx, addr, dialTimeout, logger, opts...)
			if err != nil {
				return nil, err
			}
			return grpcclient.NewStructClient(conn, FERMethod, logger), nil
		}),
	}
}

func (f *FER) Method() emotion.Method   { return emotion.MethodFER }
func (f *FER) Scale() emotion.Scale     { return emotion.ScaleFraction }
func (f *FER) SupportsAttributes() bool { return false }

// Warm dials the model server.
func (f *FER) Warm(ctx context.Context) error {
	return f.handle.Warm(ctx)
}

func (f *FER) Classify(ctx context.Context, img *image.NRGBA) (*Output, error) {
	client, err := f.handle.Get(ctx)
	if err != nil {
		return nil, err
	}

	resized := fit(img, f.maxSide)
	data, err := ingest.JPEGBytes(resized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", emotion.ErrClassification, err)
	}

	resp, err := client.Call(ctx, logging.RequestID(ctx), map[string]interface{}{
		"image":  base64.StdEncoding.EncodeToString(data),
		"width":  resized.Bounds().Dx(),
		"height": resized.Bounds().Dy(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fer: %v", emotion.ErrClassification, err)
	}

	raw, ok := resp["emotions"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: fer response has no emotions", emotion.ErrClassification)
	}
	return &Output{Scores: scoresFromMap(raw)}, nil
}
