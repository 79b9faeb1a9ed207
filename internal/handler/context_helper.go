package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/enrollhub/enrollment-service/internal/middleware"
)

func ownerFromContext(c *gin.Context) string {
	user, _ := middleware.CurrentUser(c)
	return user
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
