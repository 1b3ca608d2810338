package approuters

import (
	"Forumus/internal/configuration"

	"github.com/gin-gonic/gin"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	h := container.ChatHandler

	api := router.Group("/api")
	{
		api.POST("/threads", h.CreateThread)
		api.POST("/threads/:threadId/messages", h.SendMessage)
		api.GET("/threads/:threadId/messages", h.LoadOlder)
		api.POST("/threads/:threadId/read", h.MarkRead)
		api.DELETE("/threads/:threadId", h.DeleteThread)
		api.DELETE("/messages/:messageId", h.DeleteMessage)
	}
}
