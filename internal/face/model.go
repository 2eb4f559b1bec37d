package face

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/ingest"
	"github.com/example/emotion-sense/internal/modelhandle"
)

// ModelDetector calls a remote face detection service. The service accepts a
// multipart "file" upload and answers with {"detections": [{x,y,w,h,confidence}]}.
type ModelDetector struct {
	url    string
	client *http.Client
	handle *modelhandle.Handle[string]
}

// NewModelDetector returns a detector for the service at url.
func NewModelDetector(url string, timeout time.Duration) *ModelDetector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	url = strings.TrimRight(url, "/")
	client := &http.Client{Timeout: timeout}
	return &ModelDetector{
		url:    url,
		client: client,
		handle: modelhandle.New("face-model", emotion.ErrDetectorUnavailable, func(ctx context.Context) (string, error) {
			if url == "" {
				return "", fmt.Errorf("detector url not configured")
			}
			if err := modelhandle.ProbeHTTP(ctx, client, url+"/health"); err != nil {
				return "", err
			}
			return url + "/detect", nil
		}),
	}
}

// Warm checks the remote detector is reachable.
func (m *ModelDetector) Warm(ctx context.Context) error {
	return m.handle.Warm(ctx)
}

type detection struct {
	X          interface{} `json:"x"`
	Y          interface{} `json:"y"`
	W          interface{} `json:"w"`
	H          interface{} `json:"h"`
	Confidence interface{} `json:"confidence"`
}

func (m *ModelDetector) Locate(ctx context.Context, img *image.NRGBA) ([]Candidate, error) {
	endpoint, err := m.handle.Get(ctx)
	if err != nil {
		return nil, err
	}

	data, err := ingest.JPEGBytes(img)
	if err != nil {
		return nil, err
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: face detection request: %v", emotion.ErrDetectorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: face detection %s: %s", emotion.ErrDetectorUnavailable, resp.Status, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Detections []detection `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: face detection decode: %v", emotion.ErrDetectorUnavailable, err)
	}

	candidates := make([]Candidate, 0, len(out.Detections))
	for _, d := range out.Detections {
		c := Candidate{Box: Box{
			X: cast.ToInt(d.X),
			Y: cast.ToInt(d.Y),
			W: cast.ToInt(d.W),
			H: cast.ToInt(d.H),
		}}
		if d.Confidence != nil {
			if conf, err := cast.ToFloat64E(d.Confidence); err == nil {
				c.Confidence = &conf
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}
