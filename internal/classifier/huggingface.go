package classifier

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/ingest"
	"github.com/example/emotion-sense/internal/modelhandle"
)

// HuggingFace calls an image-classification inference endpoint that answers
// with [{label, score}] (optionally nested one level). Scores are fractions.
type HuggingFace struct {
	token   string
	maxSide int
	client  *http.Client
	handle  *modelhandle.Handle[string]
}

// NewHuggingFace returns a backend for the inference endpoint at url.
func NewHuggingFace(url, token string, timeout time.Duration, maxSide int) *HuggingFace {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	url = strings.TrimSpace(url)
	return &HuggingFace{
		token:   token,
		maxSide: maxSide,
		client:  &http.Client{Timeout: timeout},
		handle: modelhandle.New("huggingface", emotion.ErrClassificationUnavailable, func(ctx context.Context) (string, error) {
			if url == "" {
				return "", fmt.Errorf("huggingface url not configured")
			}
			return url, nil
		}),
	}
}

func (h *HuggingFace) Method() emotion.Method   { return emotion.MethodHuggingFace }
func (h *HuggingFace) Scale() emotion.Scale     { return emotion.ScaleFraction }
func (h *HuggingFace) SupportsAttributes() bool { return false }

func (h *HuggingFace) Classify(ctx context.Context, img *image.NRGBA) (*Output, error) {
	endpoint, err := h.handle.Get(ctx)
	if err != nil {
		return nil, err
	}

	data, err := ingest.JPEGBytes(fit(img, h.maxSide))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", emotion.ErrClassification, err)
	}

	var payload interface{}
	if err := postJSON(ctx, h.client, endpoint, "image/jpeg", h.token, data, &payload); err != nil {
		return nil, fmt.Errorf("%w: huggingface: %v", emotion.ErrClassification, err)
	}

	scores := make(emotion.RawScores)
	collectLabelScores(payload, scores)
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: huggingface returned no known labels", emotion.ErrClassification)
	}
	return &Output{Scores: scores}, nil
}

func collectLabelScores(payload interface{}, into emotion.RawScores) {
	switch v := payload.(type) {
	case []interface{}:
		for _, item := range v {
			collectLabelScores(item, into)
		}
	case map[string]interface{}:
		label, err := emotion.ParseLabel(cast.ToString(v["label"]))
		if err != nil {
			return
		}
		score, err := cast.ToFloat64E(v["score"])
		if err != nil {
			return
		}
		into[label] += score
	}
}
