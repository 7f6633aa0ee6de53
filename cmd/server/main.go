package main

import (
	"os"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/PAAPII10/slack-clone-sub001/internal/config"
	"github.com/PAAPII10/slack-clone-sub001/internal/database"
	"github.com/PAAPII10/slack-clone-sub001/internal/handlers"
	"github.com/PAAPII10/slack-clone-sub001/internal/middleware"
	"github.com/PAAPII10/slack-clone-sub001/internal/services"
	"github.com/PAAPII10/slack-clone-sub001/internal/ws"
)

// @title           Team Chat Huddle API
// @version         1.0
// @description     Huddle (voice/video call) lifecycle API for channels and direct messages
// @host            localhost:8080
// @BasePath        /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter "Bearer {token}"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()

	db := database.Connect(cfg)
	database.AutoMigrate(db)

	hub := ws.NewHub()

	scheduler, err := services.NewCleanupScheduler(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect cleanup scheduler")
	}
	defer scheduler.Close()

	authService := services.NewAuthService(db, cfg.JWTSecret)
	workspaceService := services.NewWorkspaceService(db)
	tokenService := services.NewRoomTokenService(cfg.MediaAPIKey, cfg.MediaAPISecret, cfg.MediaURL)
	huddleService := services.NewHuddleService(db, hub, scheduler, tokenService, cfg.HuddleCleanupDelay)

	worker, mux, err := services.NewCleanupWorker(cfg.RedisURL, huddleService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build cleanup worker")
	}
	go func() {
		if err := worker.Run(mux); err != nil {
			log.Fatal().Err(err).Msg("cleanup worker stopped")
		}
	}()
	defer worker.Shutdown()

	authHandler := handlers.NewAuthHandler(authService)
	workspaceHandler := handlers.NewWorkspaceHandler(workspaceService)
	huddleHandler := handlers.NewHuddleHandler(workspaceService, huddleService, tokenService, db)
	wsHandler := handlers.NewWSHandler(hub, authService, workspaceService)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/ws/session/:id", wsHandler.HandleSession)
	r.GET("/ws/workspace/:id", wsHandler.HandleMember)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		workspaces := api.Group("/workspaces")
		workspaces.Use(middleware.JWTAuth(authService))
		{
			workspaces.POST("", workspaceHandler.CreateWorkspace)
			workspaces.POST("/:id/join", workspaceHandler.JoinWorkspace)
			workspaces.POST("/:id/channels", workspaceHandler.CreateChannel)
			workspaces.POST("/:id/channels/:channelId/join", workspaceHandler.JoinChannel)
			workspaces.POST("/:id/conversations", workspaceHandler.OpenConversation)

			workspaces.POST("/:id/huddles", huddleHandler.CreateOrJoin)
			workspaces.POST("/:id/huddles/close", huddleHandler.Close)
			workspaces.GET("/:id/huddles/active", huddleHandler.GetActive)
			workspaces.GET("/:id/huddles/mine", huddleHandler.GetMine)
			workspaces.GET("/:id/huddles/incoming", huddleHandler.GetIncoming)
			workspaces.POST("/:id/huddles/:huddleId/join", huddleHandler.Join)
			workspaces.POST("/:id/huddles/:huddleId/leave", huddleHandler.Leave)
			workspaces.POST("/:id/huddles/:huddleId/decline", huddleHandler.Decline)
			workspaces.PUT("/:id/huddles/:huddleId/mute", huddleHandler.SetMute)
			workspaces.GET("/:id/huddles/:huddleId/roster", huddleHandler.GetRoster)
			workspaces.POST("/:id/huddles/:huddleId/token", huddleHandler.IssueToken)
		}
	}

	log.Info().Str("port", cfg.ServerPort).Msg("server starting")
	if err := r.Run(":" + cfg.ServerPort); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
