package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/emotion-sense/internal/emotion"
	"github.com/example/emotion-sense/internal/face"
	"github.com/example/emotion-sense/internal/logging"
	"github.com/example/emotion-sense/internal/usecase"
)

// DefaultMaxBodySize bounds JSON request bodies when no limit is configured.
const DefaultMaxBodySize = 10 << 20

type detectFaceRequest struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
	Method      string `json:"method"`
}

type analyzeEmotionRequest struct {
	ImageBase64 string `json:"image_base64" binding:"required"`
	Method      string `json:"method"`
	CropFace    bool   `json:"crop_face"`
}

type compareEmotionRequest struct {
	Entry string `json:"entry" binding:"required"`
	Exit  string `json:"exit" binding:"required"`
}

type detectFaceResponse struct {
	FaceCropBase64 *string   `json:"face_crop_base64"`
	Box            *face.Box `json:"box,omitempty"`
	Detected       bool      `json:"detected"`
	Fallback       bool      `json:"fallback"`
}

type analyzeEmotionResponse struct {
	Emotion       emotion.Label  `json:"emotion"`
	Confidence    float64        `json:"confidence"`
	EmotionScores emotion.Scores `json:"emotion_scores"`
	Age           *int           `json:"age,omitempty"`
	Gender        string         `json:"gender,omitempty"`
	Face          *face.Box      `json:"face,omitempty"`
	Fallback      bool           `json:"fallback"`
}

type compareEmotionResponse struct {
	Satisfaction emotion.Satisfaction `json:"satisfaction"`
	Delta        string               `json:"delta"`
	Summary      string               `json:"summary"`
	EntryEmotion emotion.Label        `json:"entry_emotion"`
	ExitEmotion  emotion.Label        `json:"exit_emotion"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router. POST bodies are
// capped at maxBodySize bytes.
func RegisterRoutes(router *gin.Engine, uc *usecase.AnalysisUseCase, maxBodySize int64) {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":        "emotion-sense",
			"methods":        uc.Methods(),
			"default_method": uc.DefaultMethod(),
			"endpoints": []string{
				"GET /health",
				"POST /detect-face",
				"POST /analyze_emotion",
				"POST /compare-emotion",
				"GET /metrics",
			},
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", func(c *gin.Context) {
		summaries, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"operations": summaries})
	})

	api := router.Group("/", LimitBody(maxBodySize))

	api.POST("/detect-face", func(c *gin.Context) {
		var req detectFaceRequest
		if !bindJSON(c, &req) {
			return
		}

		crop, err := uc.DetectFace(c.Request.Context(), req.ImageBase64, req.Method)
		if err != nil {
			writeError(c, err)
			return
		}

		resp := detectFaceResponse{}
		if crop != nil {
			resp.FaceCropBase64 = &crop.Image
			resp.Box = &crop.Box
			resp.Detected = crop.Detected
			resp.Fallback = crop.Fallback
		}
		c.JSON(http.StatusOK, resp)
	})

	api.POST("/analyze_emotion", func(c *gin.Context) {
		var req analyzeEmotionRequest
		if !bindJSON(c, &req) {
			return
		}

		analysis, err := uc.AnalyzeEmotion(c.Request.Context(), req.ImageBase64, req.Method, req.CropFace)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, analyzeEmotionResponse{
			Emotion:       analysis.Dominant,
			Confidence:    analysis.Confidence,
			EmotionScores: analysis.Scores,
			Age:           analysis.Age,
			Gender:        analysis.Gender,
			Face:          analysis.Face,
			Fallback:      analysis.Fallback,
		})
	})

	api.POST("/compare-emotion", func(c *gin.Context) {
		var req compareEmotionRequest
		if !bindJSON(c, &req) {
			return
		}

		verdict, err := uc.CompareEmotion(c.Request.Context(), req.Entry, req.Exit)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, compareEmotionResponse{
			Satisfaction: verdict.Satisfaction,
			Delta:        verdict.Delta,
			Summary:      verdict.Satisfaction.Summary(),
			EntryEmotion: verdict.Entry,
			ExitEmotion:  verdict.Exit,
		})
	})
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
	return false
}

// writeError maps use case errors onto HTTP statuses. Only client errors
// expose their message.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case emotion.IsClientError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": clientMessage(err)})
	case errors.Is(err, emotion.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": emotion.ErrTimeout.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func clientMessage(err error) string {
	var opErr *logging.OperationError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Err.Error()
	}
	return err.Error()
}
