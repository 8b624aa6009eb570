package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Assistant *AssistantHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/validate/input", deps.Assistant.ValidateInput)
	api.POST("/intent", deps.Assistant.DetectIntent)
	api.POST("/context", deps.Assistant.BuildContext)
	api.POST("/validate/output", deps.Assistant.ValidateOutput)
	api.POST("/prepare", deps.Assistant.Prepare)

	api.GET("/debug/retrieval", deps.Assistant.DebugRetrieval)
	api.GET("/stats", deps.Assistant.Stats)
}
