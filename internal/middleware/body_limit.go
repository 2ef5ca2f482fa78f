package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio/internal/pkg/response"
)

// MultipartOverhead is the allowance for multipart boundaries and headers on
// top of the file itself.
const MultipartOverhead = 1 << 20

// BodyLimit rejects requests whose body exceeds limit bytes before anything
// is parsed or staged. Bodies without a Content-Length are capped while read.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			response.Abort(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
