package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Capability header and known capability flags. The auth layer in front of
// this service resolves the caller's permissions and forwards them as a
// comma-separated list; this middleware only enforces presence.
const (
	CapabilitiesHeaderKey = "X-Capabilities"
	CapabilityBulk        = "bulk"
)

// RequireCapability rejects requests whose X-Capabilities header does not
// carry the named capability. Matching is case-insensitive.
func RequireCapability(capability string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !HasCapability(c, capability) {
			respondForbidden(c, "Missing required capability: "+capability)
			return
		}
		c.Next()
	}
}

// HasCapability reports whether the request carries the named capability
func HasCapability(c *gin.Context, capability string) bool {
	header := c.GetHeader(CapabilitiesHeaderKey)
	if header == "" {
		return false
	}
	for _, entry := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(entry), capability) {
			return true
		}
	}
	return false
}

// respondForbidden sends a forbidden response
func respondForbidden(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "FORBIDDEN",
			"message": message,
		},
	})
}
