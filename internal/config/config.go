package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/face"
)

type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

type Log struct {
	Level string `yaml:"level"`
}

type Pipeline struct {
	Workers        int           `yaml:"workers"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DefaultMethod  string        `yaml:"default_method"`
	NoFacePolicy   string        `yaml:"no_face_policy"`
	NeutralPolicy  string        `yaml:"neutral_policy"`
	MaxPixels      int           `yaml:"max_pixels"`
	WarmOnStart    bool          `yaml:"warm_on_start"`
}

// Fallback is the result returned when classification is unavailable. An
// empty score map puts all mass on Emotion.
type Fallback struct {
	Emotion    string             `yaml:"emotion"`
	Confidence float64            `yaml:"confidence"`
	Scores     map[string]float64 `yaml:"scores"`
}

type Method struct {
	Locator string `yaml:"locator"`
}

type DeepFace struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type FER struct {
	Addr        string        `yaml:"addr"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type HuggingFace struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type Mock struct {
	Seed   uint64             `yaml:"seed"`
	Scores map[string]float64 `yaml:"scores"`
}

type Backends struct {
	MaxSide     int         `yaml:"max_side"`
	DeepFace    DeepFace    `yaml:"deepface"`
	FER         FER         `yaml:"fer"`
	HuggingFace HuggingFace `yaml:"huggingface"`
	Mock        Mock        `yaml:"mock"`
}

type Detector struct {
	Cascade  face.CascadeConfig `yaml:"cascade"`
	ModelURL string             `yaml:"model_url"`
	Timeout  time.Duration      `yaml:"timeout"`
}

type Redis struct {
	Addr      string `yaml:"addr"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Root is the full service configuration.
type Root struct {
	Server   Server            `yaml:"server"`
	Log      Log               `yaml:"log"`
	Pipeline Pipeline          `yaml:"pipeline"`
	Fallback Fallback          `yaml:"fallback"`
	Methods  map[string]Method `yaml:"methods"`
	Backends Backends          `yaml:"backends"`
	Detector Detector          `yaml:"detector"`
	Redis    Redis             `yaml:"redis"`
}

// Default returns the built-in configuration.
func Default() *Root {
	return &Root{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Log: Log{Level: "info"},
		Pipeline: Pipeline{
			Workers:        4,
			RequestTimeout: 30 * time.Second,
			DefaultMethod:  string(emotion.MethodDeepFace),
			NoFacePolicy:   string(face.NoFaceWholeImage),
			NeutralPolicy:  string(emotion.NeutralDistinct),
		},
		Fallback: Fallback{
			Emotion:    string(emotion.Neutral),
			Confidence: 0.5,
		},
		Methods: map[string]Method{
			string(emotion.MethodDeepFace):    {Locator: string(face.StrategyCascade)},
			string(emotion.MethodFER):         {Locator: string(face.StrategyModel)},
			string(emotion.MethodHuggingFace): {Locator: string(face.StrategyPassthrough)},
			string(emotion.MethodMock):        {Locator: string(face.StrategyPassthrough)},
		},
		Backends: Backends{
			MaxSide:     640,
			DeepFace:    DeepFace{Timeout: 30 * time.Second},
			FER:         FER{DialTimeout: 5 * time.Second},
			HuggingFace: HuggingFace{Timeout: 30 * time.Second},
			Mock:        Mock{Seed: 42},
		},
		Detector: Detector{
			Cascade: face.DefaultCascadeConfig(),
			Timeout: 10 * time.Second,
		},
		Redis: Redis{KeyPrefix: "emotion-sense"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists) and environment overrides, in that order.
func Load(path string) (*Root, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case err == nil:
			decErr := yaml.NewDecoder(f).Decode(cfg)
			f.Close()
			if decErr != nil {
				return nil, fmt.Errorf("decode %s: %w", path, decErr)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Root) applyEnv() error {
	c.Server.Addr = getEnv("HTTP_ADDR", c.Server.Addr)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Backends.DeepFace.URL = getEnv("DEEPFACE_URL", c.Backends.DeepFace.URL)
	c.Backends.FER.Addr = getEnv("FER_ADDR", c.Backends.FER.Addr)
	c.Backends.HuggingFace.URL = getEnv("HUGGINGFACE_URL", c.Backends.HuggingFace.URL)
	c.Backends.HuggingFace.Token = getEnv("HUGGINGFACE_TOKEN", c.Backends.HuggingFace.Token)
	c.Detector.ModelURL = getEnv("DETECTOR_URL", c.Detector.ModelURL)
	c.Detector.Cascade.Path = getEnv("CASCADE_PATH", c.Detector.Cascade.Path)
	c.Pipeline.DefaultMethod = getEnv("DEFAULT_METHOD", c.Pipeline.DefaultMethod)
	c.Pipeline.NoFacePolicy = getEnv("NO_FACE_POLICY", c.Pipeline.NoFacePolicy)
	c.Pipeline.NeutralPolicy = getEnv("NEUTRAL_POLICY", c.Pipeline.NeutralPolicy)

	if v := os.Getenv("WORKERS"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("WORKERS: %w", err)
		}
		c.Pipeline.Workers = n
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := cast.ToDurationE(v)
		if err != nil {
			return fmt.Errorf("REQUEST_TIMEOUT: %w", err)
		}
		c.Pipeline.RequestTimeout = d
	}
	return nil
}

// Validate rejects values the service cannot run with.
func (c *Root) Validate() error {
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.RequestTimeout <= 0 {
		return fmt.Errorf("pipeline.request_timeout must be positive, got %s", c.Pipeline.RequestTimeout)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if _, err := emotion.ParseMethod(c.Pipeline.DefaultMethod, ""); err != nil {
		return fmt.Errorf("pipeline.default_method: %w", err)
	}
	if _, err := face.ParseNoFacePolicy(c.Pipeline.NoFacePolicy); err != nil {
		return fmt.Errorf("pipeline.no_face_policy: %w", err)
	}
	if _, err := emotion.ParseNeutralPolicy(c.Pipeline.NeutralPolicy); err != nil {
		return fmt.Errorf("pipeline.neutral_policy: %w", err)
	}
	for name, m := range c.Methods {
		if _, err := emotion.ParseMethod(name, ""); err != nil {
			return fmt.Errorf("methods: %w", err)
		}
		if _, err := face.ParseStrategy(m.Locator); err != nil {
			return fmt.Errorf("methods.%s.locator: %w", name, err)
		}
	}
	if _, err := c.FallbackResult(); err != nil {
		return fmt.Errorf("fallback: %w", err)
	}
	if _, err := parseScores(c.Backends.Mock.Scores); err != nil {
		return fmt.Errorf("backends.mock.scores: %w", err)
	}
	return nil
}

// FallbackResult converts the fallback section to a classification result.
func (c *Root) FallbackResult() (emotion.Result, error) {
	label, err := emotion.ParseLabel(c.Fallback.Emotion)
	if err != nil {
		return emotion.Result{}, err
	}
	if c.Fallback.Confidence < 0 || c.Fallback.Confidence > 1 {
		return emotion.Result{}, fmt.Errorf("confidence %f outside [0,1]", c.Fallback.Confidence)
	}
	raw, err := parseScores(c.Fallback.Scores)
	if err != nil {
		return emotion.Result{}, err
	}
	scores := make(emotion.Scores, len(raw))
	for l, v := range raw {
		scores[l] = v
	}
	if len(scores) == 0 {
		scores[label] = 1
	}
	for l, v := range scores {
		if v > scores[label] {
			return emotion.Result{}, fmt.Errorf("emotion %s is not the highest score, %s scores %g", label, l, v)
		}
	}
	return emotion.Result{Dominant: label, Confidence: c.Fallback.Confidence, Scores: scores}.Complete(), nil
}

// MockScores returns the fixed mock distribution, if any.
func (c *Root) MockScores() emotion.RawScores {
	raw, _ := parseScores(c.Backends.Mock.Scores)
	return raw
}

// Locator returns the locator strategy configured for m.
func (c *Root) Locator(m emotion.Method) face.Strategy {
	if mc, ok := c.Methods[string(m)]; ok {
		if s, err := face.ParseStrategy(mc.Locator); err == nil {
			return s
		}
	}
	return face.StrategyPassthrough
}

func parseScores(in map[string]float64) (emotion.RawScores, error) {
	out := make(emotion.RawScores, len(in))
	for k, v := range in {
		l, err := emotion.ParseLabel(k)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, fmt.Errorf("negative score for %s", l)
		}
		out[l] = v
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
