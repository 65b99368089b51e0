package api

import (
	"net/http"
	"strings"

	"github.com/annel0/mmo-level/internal/auth"
	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// jwtMiddleware проверяет JWT токен в заголовке Authorization
func (rs *RestServer) jwtMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Отсутствует токен авторизации",
			})
			return
		}

		// Формат "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Неверный формат токена",
			})
			return
		}

		claims, err := rs.tokens.Validate(parts[1])
		if err != nil {
			rs.log.Debug("🔒 %s %s: %v", c.Request.Method, c.FullPath(), err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, GenericResponse{
				Success: false,
				Message: "Недействительный токен",
			})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ownerMiddleware пускает только владельца :userID или администратора.
// Ставится после userIDMiddleware и jwtMiddleware.
func (rs *RestServer) ownerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := c.MustGet(claimsKey).(*auth.Claims)
		if !claims.IsAdmin && claims.PlayerID != c.GetUint64(userIDKey) {
			c.AbortWithStatusJSON(http.StatusForbidden, GenericResponse{
				Success: false,
				Message: "Нельзя изменять позицию другого игрока",
			})
			return
		}
		c.Next()
	}
}

// adminMiddleware проверяет, что пользователь является администратором
func (rs *RestServer) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := c.MustGet(claimsKey).(*auth.Claims)
		if !claims.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, GenericResponse{
				Success: false,
				Message: "Недостаточно прав доступа",
			})
			return
		}
		c.Next()
	}
}
