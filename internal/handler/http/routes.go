package http

import "github.com/gin-gonic/gin"

// RegisterRoutes 在 api 分组下注册会话相关路由
func RegisterRoutes(api *gin.RouterGroup, sessions *SessionHandler, strokes *StrokeHandler, canvas *CanvasHandler) {
	api.POST("/sessions", sessions.CreateSession)
	group := api.Group("/sessions/:id")
	{
		group.GET("", sessions.GetSession)
		group.GET("/strokes", strokes.ListStrokes)
		group.POST("/strokes", strokes.SubmitStroke)
		group.DELETE("/strokes", strokes.ClearSession)
		group.POST("/undo", strokes.UndoLast)
		group.GET("/presence", strokes.ListPresence)
		group.GET("/canvas.png", canvas.PNG)
	}
}
