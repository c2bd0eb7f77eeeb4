package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SuccessResponse wraps data in the dashboard envelope {"success":true,"data":...}
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// ErrorResponse sends {"success":false,"error":message}
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   message,
	})
}

// PartialResponse reports a failure that still produced a result, such
// as a rotation where only some machines failed
func PartialResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   message,
		"data":    data,
	})
}
