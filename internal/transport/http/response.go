package httptransport

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// APIResponse is the JSON envelope for non-image answers.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Code    int         `json:"code"`
}

// RespondSuccess writes a JSON success envelope.
func RespondSuccess(c *gin.Context, httpStatus int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}

	resp := APIResponse{
		Success: true,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// RespondError writes a JSON failure envelope.
func RespondError(c *gin.Context, httpStatus int, message string, data interface{}) {
	resp := APIResponse{
		Success: false,
		Message: message,
		Code:    httpStatus,
		Data:    data,
	}

	c.JSON(httpStatus, resp)
}

// SetNoCache marks the response as not storable by any cache.
func SetNoCache(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

// RespondText writes a plain-text body.
func RespondText(c *gin.Context, httpStatus int, message string) {
	c.String(httpStatus, message)
}

// RespondImage writes body as-is with identity encoding. headers are applied
// first, so the no-cache directives and content-length always win.
func RespondImage(c *gin.Context, headers http.Header, body []byte) {
	dst := c.Writer.Header()
	for name, values := range headers {
		dst.Del(name)
		for _, v := range values {
			dst.Add(name, v)
		}
	}
	dst.Set("Content-Encoding", "identity")
	dst.Set("Content-Length", strconv.Itoa(len(body)))
	SetNoCache(c)

	contentType := dst.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, body)
}

// RespondRedirect sends the client to location with a 302.
func RespondRedirect(c *gin.Context, location, reason string) {
	SetNoCache(c)
	c.Header("Location", location)
	if reason != "" {
		c.Header("X-Redirect-Reason", reason)
	}
	c.Status(http.StatusFound)
}
