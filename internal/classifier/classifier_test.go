package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/ingest"
)

func frame(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	return img
}

func TestMockIsDeterministicPerSeed(t *testing.T) {
	a, _ := NewMock(7, nil).Classify(context.Background(), frame(2, 2))
	b, _ := NewMock(7, nil).Classify(context.Background(), frame(9, 9))
	c, _ := NewMock(8, nil).Classify(context.Background(), frame(2, 2))

	if len(a.Scores) != len(emotion.Labels) {
		t.Fatalf("expected %d scores, got %d", len(emotion.Labels), len(a.Scores))
	}
	same := true
	for _, l := range emotion.Labels {
		if a.Scores[l] != b.Scores[l] {
			t.Fatalf("expected identical scores for same seed, %s: %f vs %f", l, a.Scores[l], b.Scores[l])
		}
		if a.Scores[l] != c.Scores[l] {
			same = false
		}
	}
	if same {
		t.Fatal("expected different seeds to produce different scores")
	}
}

func TestMockFixedScores(t *testing.T) {
	m := NewMock(1, emotion.RawScores{emotion.Surprise: 0.9, emotion.Neutral: 0.1})
	out, err := m.Classify(context.Background(), frame(1, 1))
	if err != nil {
		t.Fatalf("mock must not fail, got %v", err)
	}
	if out.Scores[emotion.Surprise] != 0.9 {
		t.Fatalf("unexpected scores %v", out.Scores)
	}
}

func TestDeepFaceParsesPercentScoresAndAttributes(t *testing.T) {
	var probes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			probes.Add(1)
			w.WriteHeader(http.StatusOK)
		case "/analyze":
			var req deepFaceRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if !strings.HasPrefix(req.Img, ingest.DataURLPrefix) {
				http.Error(w, "expected data url", http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, `{"results":[{
				"emotion":{"angry":1.5,"disgust":0.5,"fear":3,"happy":80,"sad":5,"surprise":4,"neutral":6},
				"dominant_emotion":"happy",
				"age":31.6,
				"gender":{"Man":98.1,"Woman":1.9},
				"dominant_gender":"man"
			}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewDeepFace(srv.URL, time.Second, 64)
	if d.Scale() != emotion.ScalePercent || !d.SupportsAttributes() {
		t.Fatal("deepface must declare percent scale and attribute support")
	}

	for i := 0; i < 2; i++ {
		out, err := d.Classify(context.Background(), frame(128, 96))
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if out.Scores[emotion.Happy] != 80 {
			t.Fatalf("expected raw percent score, got %v", out.Scores)
		}
		if out.Age == nil || *out.Age != 32 {
			t.Fatalf("expected age 32, got %v", out.Age)
		}
		if out.Gender != "Man" {
			t.Fatalf("expected gender Man, got %q", out.Gender)
		}
	}
	if got := probes.Load(); got != 1 {
		t.Fatalf("expected one health probe, got %d", got)
	}
}

func TestDeepFaceFailures(t *testing.T) {
	_, err := NewDeepFace("", time.Second, 0).Classify(context.Background(), frame(4, 4))
	if !errors.Is(err, emotion.ErrClassificationUnavailable) {
		t.Fatalf("expected ErrClassificationUnavailable, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			return
		}
		http.Error(w, "Face could not be detected", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err = NewDeepFace(srv.URL, time.Second, 0).Classify(context.Background(), frame(4, 4))
	if !errors.Is(err, emotion.ErrClassification) {
		t.Fatalf("expected ErrClassification, got %v", err)
	}
}

func TestHuggingFaceParsesNestedLabelList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer hf-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Content-Type") != "image/jpeg" {
			http.Error(w, "bad content type", http.StatusUnsupportedMediaType)
			return
		}
		_, _ = io.WriteString(w, `[[{"label":"sad","score":0.7},{"label":"joy","score":0.2},{"label":"contempt","score":0.1}]]`)
	}))
	defer srv.Close()

	out, err := NewHuggingFace(srv.URL, "hf-token", time.Second, 224).Classify(context.Background(), frame(8, 8))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if out.Scores[emotion.Sad] != 0.7 || out.Scores[emotion.Happy] != 0.2 {
		t.Fatalf("unexpected scores %v", out.Scores)
	}
	if len(out.Scores) != 2 {
		t.Fatalf("expected unknown labels to be dropped, got %v", out.Scores)
	}
}

func TestHuggingFaceUnknownLabelsOnlyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"label":"contempt","score":1}]`)
	}))
	defer srv.Close()

	_, err := NewHuggingFace(srv.URL, "", time.Second, 0).Classify(context.Background(), frame(8, 8))
	if !errors.Is(err, emotion.ErrClassification) {
		t.Fatalf("expected ErrClassification, got %v", err)
	}
}

func startFERServer(t *testing.T, handler func(in *structpb.Struct) (*structpb.Struct, error)) grpc.DialOption {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: "emotion.v1.EmotionService",
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Classify",
			Handler: func(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
				in := &structpb.Struct{}
				if err := dec(in); err != nil {
					return nil, err
				}
				return handler(in)
			},
		}},
		Metadata: "emotion/v1/emotion.proto",
	}, struct{}{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

func TestFERClassifiesOverGRPC(t *testing.T) {
	var calls atomic.Int32
	dialer := startFERServer(t, func(in *structpb.Struct) (*structpb.Struct, error) {
		calls.Add(1)
		fields := in.AsMap()
		if fields["image"] == "" || fields["width"] != float64(32) {
			return nil, errors.New("unexpected request")
		}
		return structpb.NewStruct(map[string]interface{}{
			"emotions": map[string]interface{}{"happy": 0.1, "angry": 0.85, "neutral": 0.05},
		})
	})

	f := NewFER("bufnet", time.Second, 32, zap.NewNop(), dialer)
	out, err := f.Classify(context.Background(), frame(64, 48))
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if f.Scale() != emotion.ScaleFraction {
		t.Fatal("fer must declare fraction scale")
	}
	if out.Scores[emotion.Angry] != 0.85 {
		t.Fatalf("unexpected scores %v", out.Scores)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 call, got %d", calls.Load())
	}
}

func TestFERFailures(t *testing.T) {
	_, err := NewFER("", time.Second, 0, zap.NewNop()).Classify(context.Background(), frame(4, 4))
	if !errors.Is(err, emotion.ErrClassificationUnavailable) {
		t.Fatalf("expected ErrClassificationUnavailable, got %v", err)
	}

	dialer := startFERServer(t, func(in *structpb.Struct) (*structpb.Struct, error) {
		return structpb.NewStruct(map[string]interface{}{"status": "no face"})
	})
	_, err = NewFER("bufnet", time.Second, 0, zap.NewNop(), dialer).Classify(context.Background(), frame(4, 4))
	if !errors.Is(err, emotion.ErrClassification) {
		t.Fatalf("expected ErrClassification, got %v", err)
	}
}

func TestExtractAttributesSearchesNestedObjects(t *testing.T) {
	age, gender := extractAttributes(map[string]interface{}{
		"face": map[string]interface{}{
			"demographics": map[string]interface{}{"ageGuess": "27", "genderGuess": "woman"},
		},
	})
	if age == nil || *age != 27 {
		t.Fatalf("expected age 27, got %v", age)
	}
	if gender != "Woman" {
		t.Fatalf("expected Woman, got %q", gender)
	}

	age, gender = extractAttributes(map[string]interface{}{"emotion": map[string]interface{}{"happy": 1.0}})
	if age != nil || gender != "" {
		t.Fatalf("expected no attributes, got %v %q", age, gender)
	}
}

func TestExtractAttributesCapitalizesMultibyteGender(t *testing.T) {
	_, gender := extractAttributes(map[string]interface{}{"gender": " élan "})
	if gender != "Élan" {
		t.Fatalf("expected Élan, got %q", gender)
	}
	_, gender = extractAttributes(map[string]interface{}{"dominant_gender": "ženska"})
	if gender != "Ženska" {
		t.Fatalf("expected Ženska, got %q", gender)
	}
}
