package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/coursegen/internal/http/response"
	"github.com/yungbote/coursegen/internal/platform/ctxutil"
)

const headerUserID = "X-User-Id"

// RequireUser reads the caller id set by the upstream gateway. Authentication
// happens before requests reach this service.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(headerUserID))
		if raw == "" {
			raw = strings.TrimSpace(c.Query("user_id"))
		}
		if raw == "" {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("missing %s header", headerUserID))
			c.Abort()
			return
		}
		uid, err := uuid.Parse(raw)
		if err != nil || uid == uuid.Nil {
			response.RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("invalid %s header", headerUserID))
			c.Abort()
			return
		}
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: uid})
		c.Request = c.Request.WithContext(ctx)
		c.Set("user_id", uid.String())
		c.Next()
	}
}
