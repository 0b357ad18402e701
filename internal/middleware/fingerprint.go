package middleware

import (
	"github.com/gin-gonic/gin"
)

const (
	// HeaderDeviceFingerprint carries the client-generated device token.
	HeaderDeviceFingerprint = "X-Device-Fingerprint"

	// ContextKeyFingerprint is the Gin context key for the fingerprint.
	ContextKeyFingerprint = "device_fingerprint"
)

// ExtractFingerprint copies the device fingerprint header into the Gin
// context. An absent header is not an error; binding and conflict decisions
// belong to the attempt service.
func ExtractFingerprint() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeyFingerprint, c.GetHeader(HeaderDeviceFingerprint))
		c.Next()
	}
}

// GetFingerprint retrieves the device fingerprint from the Gin context.
// Returns "" when the client sent none.
func GetFingerprint(c *gin.Context) string {
	val, exists := c.Get(ContextKeyFingerprint)
	if !exists {
		return ""
	}
	fp, ok := val.(string)
	if !ok {
		return ""
	}
	return fp
}
