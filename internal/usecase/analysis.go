package usecase

import (
	"context"
	"errors"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/face"
	"github.com/example/emotion-sense/internal/ingest"
	"github.com/example/emotion-sense/internal/logging"
)

// Analysis is the outcome of AnalyzeEmotion.
type Analysis struct {
	emotion.Result
	Age    *int
	Gender string
	// Face is the region that was classified, nil for the full frame.
	Face *face.Box
	// Fallback is set when Result is the configured default.
	Fallback bool
}

// FaceCrop is the outcome of DetectFace.
type FaceCrop struct {
	// Image is a JPEG data URL.
	Image string
	Box   face.Box
	// Detected is false when the whole frame was returned for lack of a face.
	Detected bool
	// Fallback is set when the locator failed and was skipped.
	Fallback bool
}

// Options tunes the use case. Zero values select defaults.
type Options struct {
	DefaultMethod  emotion.Method
	NoFacePolicy   face.NoFacePolicy
	NeutralPolicy  emotion.NeutralPolicy
	Workers        int
	RequestTimeout time.Duration
	MaxPixels      int
}

// AnalysisUseCase runs the decode, locate and classify pipeline for every
// registered method.
type AnalysisUseCase struct {
	registry       *Registry
	fallback       *FallbackPolicy
	metrics        MetricsStore
	decoder        ingest.Decoder
	pool           *WorkerPool
	transitions    emotion.TransitionClassifier
	noFace         face.NoFacePolicy
	defaultMethod  emotion.Method
	timeout        time.Duration
	metricsTimeout time.Duration
	logger         *zap.Logger
}

// NewAnalysisUseCase constructs a new use case instance. A nil metrics store
// disables metrics.
func NewAnalysisUseCase(registry *Registry, fallback *FallbackPolicy, metrics MetricsStore, opts Options, logger *zap.Logger) *AnalysisUseCase {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if opts.DefaultMethod == "" {
		opts.DefaultMethod = emotion.MethodDeepFace
	}
	if opts.NoFacePolicy == "" {
		opts.NoFacePolicy = face.NoFaceWholeImage
	}
	if opts.NeutralPolicy == "" {
		opts.NeutralPolicy = emotion.NeutralDistinct
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &AnalysisUseCase{
		registry:       registry,
		fallback:       fallback,
		metrics:        metrics,
		decoder:        ingest.Decoder{MaxPixels: opts.MaxPixels},
		pool:           NewWorkerPool(opts.Workers),
		transitions:    emotion.NewTransitionClassifier(opts.NeutralPolicy),
		noFace:         opts.NoFacePolicy,
		defaultMethod:  opts.DefaultMethod,
		timeout:        opts.RequestTimeout,
		metricsTimeout: 2 * time.Second,
		logger:         logger.Named("analysis_usecase"),
	}
}

// Methods lists the methods this instance serves.
func (uc *AnalysisUseCase) Methods() []emotion.Method {
	return uc.registry.Methods()
}

// DefaultMethod is used when a request names no method.
func (uc *AnalysisUseCase) DefaultMethod() emotion.Method {
	return uc.defaultMethod
}

// DetectFace decodes encoded, locates the largest face with the method's
// locator and returns it as a JPEG data URL. When no face is usable the
// no-face policy decides between the whole frame and a nil crop.
func (uc *AnalysisUseCase) DetectFace(ctx context.Context, encoded, method string) (*FaceCrop, error) {
	start := time.Now()
	requestID := logging.RequestID(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.detect_face", requestID)

	m, pipeline, err := uc.resolve(method)
	if err != nil {
		return nil, uc.finish(ctx, OperationDetectFace, method, requestID, start, opLogger, err, false)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	var (
		crop     *FaceCrop
		degraded bool
	)
	err = uc.pool.Run(ctx, func(ctx context.Context) error {
		img, err := uc.decoder.Decode(encoded)
		if err != nil {
			return err
		}
		loc, err := uc.locate(ctx, requestID, pipeline.Locator, img)
		if err != nil {
			return err
		}
		degraded = loc.degraded

		region := img
		result := &FaceCrop{Detected: loc.found, Fallback: loc.degraded}
		switch {
		case loc.found:
			region = face.Crop(img, loc.box)
			result.Box = loc.box
		case uc.noFace == face.NoFaceNull:
			return nil
		default:
			b := img.Bounds()
			result.Box = face.Box{W: b.Dx(), H: b.Dy()}
		}

		encodedCrop, err := ingest.EncodeJPEG(region)
		if err != nil {
			return err
		}
		result.Image = encodedCrop
		crop = result
		return nil
	})
	if err != nil {
		return nil, uc.finish(ctx, OperationDetectFace, string(m), requestID, start, opLogger, err, false)
	}

	uc.finish(ctx, OperationDetectFace, string(m), requestID, start, opLogger, nil, degraded)
	return crop, nil
}

// AnalyzeEmotion classifies the dominant emotion in encoded. With cropFace
// the method's locator runs first and the largest face is classified; the
// full frame is used when none is found. Backend failures resolve to the
// fallback result; invalid input and timeouts are returned as errors.
func (uc *AnalysisUseCase) AnalyzeEmotion(ctx context.Context, encoded, method string, cropFace bool) (*Analysis, error) {
	start := time.Now()
	requestID := logging.RequestID(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze_emotion", requestID)

	m, pipeline, err := uc.resolve(method)
	if err != nil {
		return nil, uc.finish(ctx, OperationAnalyzeEmotion, method, requestID, start, opLogger, err, false)
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	var analysis *Analysis
	err = uc.pool.Run(ctx, func(ctx context.Context) error {
		img, err := uc.decoder.Decode(encoded)
		if err != nil {
			return err
		}

		input := img
		var region *face.Box
		if cropFace {
			loc, err := uc.locate(ctx, requestID, pipeline.Locator, img)
			if err != nil {
				return err
			}
			if loc.degraded {
				analysis = &Analysis{Result: uc.fallback.Result(), Fallback: true}
				return nil
			}
			if loc.found {
				input = face.Crop(img, loc.box)
				box := loc.box
				region = &box
			}
		}

		a, err := uc.fallback.Classify(requestID, func() (*Analysis, error) {
			out, err := pipeline.Backend.Classify(ctx, input)
			if err != nil {
				return nil, err
			}
			res := &Analysis{Result: emotion.NewResult(out.Scores, pipeline.Backend.Scale())}
			if pipeline.Backend.SupportsAttributes() {
				res.Age, res.Gender = out.Age, out.Gender
			}
			return res, nil
		})
		if err != nil {
			return err
		}
		a.Face = region
		analysis = a
		return nil
	})
	if err != nil {
		return nil, uc.finish(ctx, OperationAnalyzeEmotion, string(m), requestID, start, opLogger, err, false)
	}

	opLogger.Debug("emotion analyzed",
		zap.String("method", string(m)),
		zap.String("emotion", string(analysis.Dominant)),
		zap.Float64("confidence", analysis.Confidence),
		zap.Bool("fallback", analysis.Fallback),
	)
	uc.finish(ctx, OperationAnalyzeEmotion, string(m), requestID, start, opLogger, nil, analysis.Fallback)
	return analysis, nil
}

// CompareEmotion classifies the transition between an entry and an exit
// emotion label.
func (uc *AnalysisUseCase) CompareEmotion(ctx context.Context, entry, exit string) (emotion.Verdict, error) {
	start := time.Now()
	requestID := logging.RequestID(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.compare_emotion", requestID)

	from, err := emotion.ParseLabel(entry)
	if err != nil {
		return emotion.Verdict{}, uc.finish(ctx, OperationCompareEmotion, "", requestID, start, opLogger, err, false)
	}
	to, err := emotion.ParseLabel(exit)
	if err != nil {
		return emotion.Verdict{}, uc.finish(ctx, OperationCompareEmotion, "", requestID, start, opLogger, err, false)
	}

	verdict := uc.transitions.Compare(from, to)
	uc.finish(ctx, OperationCompareEmotion, "", requestID, start, opLogger, nil, false)
	return verdict, nil
}

// Warm loads every registered model eagerly.
func (uc *AnalysisUseCase) Warm(ctx context.Context) {
	uc.registry.Warm(ctx, uc.logger)
}

func (uc *AnalysisUseCase) resolve(method string) (emotion.Method, Pipeline, error) {
	m, err := emotion.ParseMethod(method, uc.defaultMethod)
	if err != nil {
		return "", Pipeline{}, err
	}
	p, err := uc.registry.Lookup(m)
	if err != nil {
		return m, Pipeline{}, err
	}
	return m, p, nil
}

type location struct {
	box      face.Box
	found    bool
	degraded bool
}

func (uc *AnalysisUseCase) locate(ctx context.Context, requestID string, locator face.Locator, img *image.NRGBA) (location, error) {
	candidates, degraded, err := uc.fallback.Locate(requestID, func() ([]face.Candidate, error) {
		return locator.Locate(ctx, img)
	})
	if err != nil {
		return location{}, err
	}
	b := img.Bounds()
	box, found := face.SelectBest(candidates, b.Dx(), b.Dy())
	return location{box: box, found: found, degraded: degraded}, nil
}

// finish records metrics and, for a non-nil err, logs it and returns it
// wrapped with the operation context.
func (uc *AnalysisUseCase) finish(ctx context.Context, operation, method, requestID string, start time.Time, opLogger *zap.Logger, err error, fallback bool) error {
	uc.record(ctx, operation, start, err, fallback)
	if err == nil {
		return nil
	}

	wrapped := logging.NewMethodError("usecase."+operation, method, requestID, err)
	switch {
	case emotion.IsClientError(err):
		opLogger.Info("request rejected", zap.Error(wrapped))
	case errors.Is(err, emotion.ErrTimeout):
		opLogger.Warn("request timed out", zap.Duration("timeout", uc.timeout), zap.Error(wrapped))
	default:
		opLogger.Error("request failed", zap.Error(wrapped))
	}
	return wrapped
}
