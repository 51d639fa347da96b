package api

import (
	"github.com/fyerfyer/advisor-rag/api/handler"
	"github.com/fyerfyer/advisor-rag/api/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(sessionHandler *handler.SessionHandler, indexHandler *handler.IndexHandler) *gin.Engine {
	router := gin.New()

	// 追踪ID必须先于日志与错误处理写入上下文
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(Cors())

	api := router.Group("/api")
	{
		sessions := api.Group("/sessions")
		{
			// 创建会话 - POST /api/sessions
			sessions.POST("", sessionHandler.CreateSession)

			// 发送消息 - POST /api/sessions/:id/messages
			sessions.POST("/:id/messages", sessionHandler.SendMessage)

			// 获取历史 - GET /api/sessions/:id/history
			sessions.GET("/:id/history", sessionHandler.GetHistory)

			// 结束会话 - POST /api/sessions/:id/end
			sessions.POST("/:id/end", sessionHandler.EndSession)
		}

		index := api.Group("/index")
		{
			// 重建索引 - POST /api/index/rebuild
			index.POST("/rebuild", indexHandler.Rebuild)

			// 索引状态 - GET /api/index/status
			index.GET("/status", indexHandler.GetStatus)

			// 重建任务 - GET /api/index/tasks/:id
			index.GET("/tasks/:id", indexHandler.GetTask)
		}

		// 健康检查 - GET /api/health
		api.GET("/health", indexHandler.Health)
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
