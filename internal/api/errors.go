package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gridapi/gridapi/internal/codec"
	"github.com/gridapi/gridapi/internal/queryir"
	"github.com/gridapi/gridapi/internal/store"
)

// writeError maps an error to its response. Client-input failures carry
// their message; internal failures are logged and hidden.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case queryir.IsBadRequest(err) || codec.IsValueError(err):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
	default:
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": msg})
}
