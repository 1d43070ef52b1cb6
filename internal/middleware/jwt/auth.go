package jwt

import (
	"EchoDesk/pkg/back"
	"EchoDesk/pkg/redis"
	"EchoDesk/pkg/util/myjwt"
	"EchoDesk/pkg/xerr"
	"strings"

	"github.com/gin-gonic/gin"
)

func Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			back.Error(c, xerr.Unauthorized, "missing or invalid authorization header")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := myjwt.ParseToken(tokenString)
		if err != nil {
			back.Error(c, xerr.Unauthorized, "invalid token")
			c.Abort()
			return
		}

		// 已登出的账号在令牌过期前都被拦下
		if redis.IsConnected() {
			if n, err := redis.Exists(c.Request.Context(), "jwt:block:"+claims.Uuid); err == nil && n > 0 {
				back.Error(c, xerr.Unauthorized, "token revoked")
				c.Abort()
				return
			}
		}

		c.Set("uuid", claims.Uuid)
		c.Set("username", claims.Username)
		c.Set("orgId", claims.OrgID)
		c.Next()
	}
}
