package emotion

import (
	"fmt"
	"strings"
)

// Method selects the face locator and classifier backend pair used for a request.
type Method string

const (
	MethodDeepFace    Method = "deepface"
	MethodFER         Method = "fer"
	MethodHuggingFace Method = "huggingface"
	MethodMock        Method = "mock"
)

// Methods lists every supported method.
var Methods = []Method{MethodDeepFace, MethodFER, MethodHuggingFace, MethodMock}

// ParseMethod validates s against the closed method set. An empty string
// resolves to fallback.
func ParseMethod(s string, fallback Method) (Method, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		key = string(fallback)
	}
	for _, m := range Methods {
		if string(m) == key {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
}
