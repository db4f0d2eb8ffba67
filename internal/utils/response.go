package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{
		"success": false,
		"error":   msg,
	})
}
