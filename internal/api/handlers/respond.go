package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/gocomet/carpool/internal/api/dto"
	"github.com/gocomet/carpool/internal/api/middleware"
	apperrors "github.com/gocomet/carpool/pkg/errors"
	"github.com/gocomet/carpool/pkg/logger"
	"github.com/google/uuid"
)

// respondError writes {"code","message"} with the error's HTTP status.
// Server-side failures are logged with their cause and never leak it.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status, body := h.errorBody(c, err)
	c.AbortWithStatusJSON(status, body)
}

func (h *Handlers) errorBody(c *gin.Context, err error) (int, dto.ErrorResponse) {
	appErr := apperrors.GetAppError(err)

	if appErr.Status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed",
			logger.String("request_id", middleware.GetRequestID(c)),
			logger.String("path", c.FullPath()),
			logger.String("code", appErr.Code),
			logger.Err(err),
		)
	}

	return appErr.Status, dto.ErrorResponse{Code: appErr.Code, Message: appErr.Message}
}

func (h *Handlers) respondBindError(c *gin.Context, err error) {
	h.respondError(c, apperrors.ErrInvalidRequest.Withf("%s", bindErrorMessage(err)))
}

// bindErrorMessage describes a binding failure by field, without validator
// or decoder internals
func bindErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return strings.Join(msgs, "; ")
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s has the wrong type", typeErr.Field)
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return "Timestamps must be RFC 3339, e.g. 2026-10-15T08:30:00Z"
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return fmt.Sprintf("%q is not a valid number", numErr.Num)
	}
	if errors.Is(err, io.EOF) {
		return "Request body is required"
	}
	return "Request body is not valid JSON"
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "email":
		return fe.Field() + " must be a valid email address"
	default:
		return fe.Field() + " is invalid"
	}
}

var fieldNamesOnce sync.Once

// useWireFieldNames makes validation errors name fields by their json or
// form tag
func useWireFieldNames() {
	fieldNamesOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
	})
}

// pathUUID parses a uuid path parameter. A malformed ID cannot name an
// existing record, so it is reported as notFound.
func (h *Handlers) pathUUID(c *gin.Context, name string, notFound *apperrors.AppError) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.respondError(c, notFound)
		return uuid.Nil, false
	}
	return id, true
}

// caller returns the authenticated user
func (h *Handlers) caller(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		h.respondError(c, apperrors.ErrInvalidToken)
		return uuid.Nil, false
	}
	return id, true
}
