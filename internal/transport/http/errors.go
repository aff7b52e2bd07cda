package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"voice-quiz-service/internal/domain"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
	}
}

func jsonFieldName(field reflect.StructField) string {
	name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}
	return name
}

type errorResponse struct {
	Error      string   `json:"error"`
	Details    []string `json:"details,omitempty"`
	RetryAfter int      `json:"retryAfter,omitempty"`
}

// writeError translates err into the status and body clients are told about.
// Anything outside the domain taxonomy is logged and reported generically.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var (
		validation *domain.ValidationError
		limited    *domain.RateLimitError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request", Details: validation.Messages})
	case errors.As(err, &limited):
		retryAfter := limited.RetryAfterSeconds()
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, errorResponse{
			Error:      "Too many requests. Please try again later.",
			RetryAfter: retryAfter,
		})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
	case errors.Is(err, domain.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "Question not found"})
	case errors.Is(err, domain.ErrQuizNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "Quiz not found or inactive"})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: "Not found"})
	default:
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

// bindingError converts a gin binding failure into a ValidationError with one
// message per offending field.
func bindingError(err error) *domain.ValidationError {
	var (
		fieldErrs validator.ValidationErrors
		typeErr   *json.UnmarshalTypeError
	)
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return domain.NewValidationError(fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type))
	}
	if !errors.As(err, &fieldErrs) {
		return domain.NewValidationError("Request body must be valid JSON")
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return domain.NewValidationError(msgs...)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("At least %s %s required", fe.Param(), strings.TrimSuffix(fe.Field(), "s"))
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
