package respond

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Created writes a 201 JSON response.
func Created(c *gin.Context, payload any) {
	JSON(c, http.StatusCreated, payload)
}

// Attachment streams r as a download named fileName. A negative size omits
// Content-Length.
func Attachment(c *gin.Context, contentType, fileName string, size int64, r io.Reader) {
	headers := map[string]string{
		"Content-Disposition": `attachment; filename="` + fileName + `"`,
		"Cache-Control":       "private, max-age=300",
	}
	c.DataFromReader(http.StatusOK, size, contentType, r, headers)
}
