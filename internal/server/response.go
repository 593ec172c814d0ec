package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vishalSecmark/tradewebx-sub002/internal/errors"
)

// Response is the JSON envelope of every non-streaming endpoint.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Message: message})
}

// failErr answers with the status matching err's type.
func failErr(c *gin.Context, err error) {
	fail(c, statusFor(err), errors.Message(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrInvalidTransition):
		return http.StatusConflict
	}

	switch errors.GetErrorType(err) {
	case errors.ErrorTypeValidation, errors.ErrorTypeParse:
		return http.StatusBadRequest
	case errors.ErrorTypeReloadLoss:
		return http.StatusConflict
	case errors.ErrorTypeNetwork, errors.ErrorTypeServer:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
