package apihandlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"skald/internal/models"
)

const (
	HeaderProjectID  = "X-Project-ID"
	HeaderCredential = "X-Credential-Key"

	tenantContextKey = "skald.tenant"
)

// TenantMiddleware resolves the calling tenant from its headers. The raw
// credential is hashed here and goes no further.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		project := strings.TrimSpace(c.GetHeader(HeaderProjectID))
		credential := c.GetHeader(HeaderCredential)
		if project == "" || credential == "" {
			Unauthorized(c, HeaderProjectID+" and "+HeaderCredential+" headers are required")
			c.Abort()
			return
		}

		tenant := models.NewTenantKey(project, credential)
		if err := tenant.Validate(); err != nil {
			Unauthorized(c, err.Error())
			c.Abort()
			return
		}
		c.Set(tenantContextKey, tenant)
		c.Next()
	}
}

func tenantFrom(c *gin.Context) models.TenantKey {
	v, _ := c.Get(tenantContextKey)
	tenant, _ := v.(models.TenantKey)
	return tenant
}
