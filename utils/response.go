package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Dalmocabral/crewcenter/apperr"
)

// JSONResponse defines the uniform structure for API responses.
type JSONResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Respond writes a JSON response with the given status code.
func Respond(ctx *gin.Context, status int, code int, message string, data interface{}) {
	ctx.JSON(status, JSONResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success returns a standard success response.
func Success(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusOK, 0, "success", data)
}

// Created returns 201 with the created resource.
func Created(ctx *gin.Context, data interface{}) {
	Respond(ctx, http.StatusCreated, 0, "created", data)
}

// Error returns a standard error response.
func Error(ctx *gin.Context, status int, code int, message string) {
	Respond(ctx, status, code, message, nil)
}

// ErrorFrom writes err using the status of its apperr kind. The envelope code
// is status*100 + offset so handlers keep distinct codes per failure site.
// Unclassified errors are logged and hidden behind a generic message.
func ErrorFrom(ctx *gin.Context, err error, offset int) {
	var status int
	message := "internal server error"
	switch kind := apperr.GetKind(err); kind {
	case apperr.KindUnknown, apperr.KindInternal, apperr.KindInvariant:
		status = http.StatusInternalServerError
		if Logger != nil {
			Logger.Error("request failed", zap.String("path", ctx.Request.URL.Path), zap.Error(err))
		}
	default:
		status = apperr.New(kind, "").HTTPStatus()
		message = err.Error()
		if kind == apperr.KindTransient {
			message = "service temporarily unavailable"
		}
	}
	Error(ctx, status, status*100+offset, message)
}
