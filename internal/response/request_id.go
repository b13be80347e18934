package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the Gin context key carrying the request ID.
const ContextKeyRequestID = "request_id"

// RequestID tags each request with an ID so a response can be matched
// to its log lines. An ID set by an upstream proxy is kept; otherwise
// one is minted here. Either way it is echoed back to the client.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}
