package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload interface{}) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload interface{}) {
	JSON(c, http.StatusOK, payload)
}

// Accepted writes a 202 Accepted JSON response.
func Accepted(c *gin.Context, payload interface{}) {
	JSON(c, http.StatusAccepted, payload)
}

// Data writes a raw body, optionally as a named attachment.
func Data(c *gin.Context, status int, contentType string, attachment string, body []byte) {
	if attachment != "" {
		c.Header("Content-Disposition", "attachment;filename="+attachment)
	}
	c.Data(status, contentType, body)
}
