package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// 业务码：0 成功，其余按失败来源区分
const (
	codeOK            = 0
	codeInvalidAgent  = 40001
	codeNoActiveRound = 40401
	codeStoreFailed   = 50001
	codeJobFailed     = 50002
	codeJobUnwired    = 50301
)

type battleResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func respond(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, battleResponse{Code: codeOK, Message: "ok", Data: data, Meta: meta})
}

// fail maps a business code onto its HTTP status.
func fail(c *gin.Context, code int, message string, meta map[string]any) {
	c.JSON(statusFor(code), battleResponse{Code: code, Message: message, Meta: meta})
}

func statusFor(code int) int {
	switch code {
	case codeInvalidAgent:
		return http.StatusBadRequest
	case codeNoActiveRound:
		return http.StatusNotFound
	case codeJobUnwired:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}
