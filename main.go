package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/campusmarket/communication-service/config"
	"github.com/campusmarket/communication-service/controllers"
	"github.com/campusmarket/communication-service/middleware"
	"github.com/campusmarket/communication-service/models"
	"github.com/campusmarket/communication-service/realtime"
	"github.com/campusmarket/communication-service/services"
)

func main() {
	// Basic logging
	log.Println("Starting Campus Market communication service...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if err := config.ConnectDatabase(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := db.AutoMigrate(
		&models.User{},
		&models.Service{},
		&models.Response{},
		&models.Message{},
		&models.Feedback{},
	); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	// Attachment storage
	if _, err := services.InitS3Service(); err != nil {
		log.Fatalf("Failed to initialize S3 service: %v", err)
	}

	// Auth0 userinfo client for profile provisioning
	controllers.SetAuth0Service(services.NewAuth0Service(cfg))

	// Realtime hub for live message delivery
	hub := realtime.NewHub()
	go hub.Run()
	controllers.SetHub(hub)

	// Initialize Gin router
	router := gin.Default()
	router.Use(cors.New(corsConfig(cfg)))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		authed := v1.Group("")
		authed.Use(middleware.EnsureValidToken(cfg))
		{
			// Profiles
			authed.POST("/users", controllers.CreateUser)
			authed.GET("/users/me", controllers.GetMyProfile)
			authed.GET("/users/:id", controllers.GetUser)
			authed.GET("/users/:id/responses", controllers.ListUserResponses)
			authed.PATCH("/users/:id/rate", controllers.UpdateUserRate)

			// Listings (read-only) and response lifecycle
			authed.GET("/services/:id", controllers.GetService)
			authed.POST("/services/:id/responses", controllers.CreateResponse)
			authed.PATCH("/services/:id/responses/:responseId/status", controllers.UpdateResponseStatus)
			authed.DELETE("/services/:id/responses/:responseId", controllers.DeleteResponse)

			// Feedback
			authed.POST("/services/:id/feedback", controllers.CreateFeedback)
			authed.GET("/services/:id/feedback", controllers.ListFeedback)

			// Chat threads and messages
			authed.GET("/responses/chats/sent", controllers.ListSentChats)
			authed.GET("/responses/chats/owned", controllers.ListOwnedChats)
			authed.GET("/responses/:id/messages", controllers.ListMessages)
			authed.POST("/responses/:id/messages", controllers.SendMessage)

			// Live delivery channel
			authed.GET("/ws", controllers.ServeWS)
		}
	}

	// Start server
	port := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Communication service is running",
	})
}

// corsConfig builds the CORS policy from the configured origin list
func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
	corsCfg.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	if cfg.AllowedOrigins == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
	}
	return corsCfg
}
