package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/ingest"
	"github.com/example/emotion-sense/internal/modelhandle"
)

// DeepFace talks to a DeepFace HTTP sidecar. Scores come back as percentages
// and the response may carry age and gender.
type DeepFace struct {
	client  *http.Client
	maxSide int
	handle  *modelhandle.Handle[string]
}

// NewDeepFace returns a backend for the sidecar at url. Images are shrunk so
// their longer side does not exceed maxSide before upload.
func NewDeepFace(url string, timeout time.Duration, maxSide int) *DeepFace {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	url = strings.TrimRight(url, "/")
	client := &http.Client{Timeout: timeout}
	return &DeepFace{
		client:  client,
		maxSide: maxSide,
		handle: modelhandle.New("deepface", emotion.ErrClassificationUnavailable, func(ctx context.Context) (string, error) {
			if url == "" {
				return "", fmt.Errorf("deepface url not configured")
			}
			if err := modelhandle.ProbeHTTP(ctx, client, url+"/health"); err != nil {
				return "", err
			}
			return url + "/analyze", nil
		}),
	}
}

func (d *DeepFace) Method() emotion.Method   { return emotion.MethodDeepFace }
func (d *DeepFace) Scale() emotion.Scale     { return emotion.ScalePercent }
func (d *DeepFace) SupportsAttributes() bool { return true }

// Warm probes the sidecar.
func (d *DeepFace) Warm(ctx context.Context) error {
	return d.handle.Warm(ctx)
}

type deepFaceRequest struct {
	Img              string   `json:"img"`
	Actions          []string `json:"actions"`
	EnforceDetection bool     `json:"enforce_detection"`
}

func (d *DeepFace) Classify(ctx context.Context, img *image.NRGBA) (*Output, error) {
	endpoint, err := d.handle.Get(ctx)
	if err != nil {
		return nil, err
	}

	encoded, err := ingest.EncodeJPEG(fit(img, d.maxSide))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", emotion.ErrClassification, err)
	}
	b, err := json.Marshal(deepFaceRequest{
		Img:     encoded,
		Actions: []string{"emotion", "age", "gender"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: deepface marshal: %v", emotion.ErrClassification, err)
	}

	var payload interface{}
	if err := postJSON(ctx, d.client, endpoint, "application/json", "", b, &payload); err != nil {
		return nil, fmt.Errorf("%w: deepface: %v", emotion.ErrClassification, err)
	}

	result := firstResult(payload)
	if result == nil {
		return nil, fmt.Errorf("%w: deepface returned no result", emotion.ErrClassification)
	}
	rawEmotions, ok := result["emotion"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: deepface result has no emotion scores", emotion.ErrClassification)
	}

	out := &Output{Scores: scoresFromMap(rawEmotions)}
	out.Age, out.Gender = extractAttributes(result)
	return out, nil
}

// firstResult unwraps {"results": [...]}, a bare list, or a single object.
func firstResult(payload interface{}) map[string]interface{} {
	switch v := payload.(type) {
	case []interface{}:
		if len(v) == 0 {
			return nil
		}
		return firstResult(v[0])
	case map[string]interface{}:
		if results, ok := v["results"]; ok {
			return firstResult(results)
		}
		return v
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url, contentType, token string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		const maxErr = 4096
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErr))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
