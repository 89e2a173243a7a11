package router

import (
	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/etl-dispatch/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", handler.Health)

	itemHandler := handler.NewItemHandler(deps)
	r.GET("/items", itemHandler.ListItems)

	jobHandler := handler.NewJobHandler(deps)
	r.POST("/jobs", jobHandler.SubmitJob)

	return r
}
