package main

import (
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"jobrunner/config"
	"jobrunner/controllers"
	"jobrunner/database"
	"jobrunner/middleware"
	"jobrunner/models"
	"jobrunner/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment as-is")
	}

	cfg := config.GetAppConfig()
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	var runModel *models.RunModel
	if cfg.Database.DBName != "" {
		db, err := database.Connect(cfg.Database)
		if err != nil {
			log.Printf("Warning: database unavailable, run records will not be persisted: %v", err)
		} else {
			if err := database.EnsureSchema(db); err != nil {
				log.Printf("Warning: could not ensure schema: %v", err)
			}
			runModel = models.NewRunModel(db)
		}
	}

	store, err := services.NewEvidenceStore(cfg)
	if err != nil {
		log.Printf("Warning: S3 evidence store not available, screenshots stay local: %v", err)
		store = nil
	}

	orchestrator := services.NewOrchestrator(cfg, store, runModel)
	applicationController := controllers.NewApplicationController(orchestrator, runModel)
	limiters := middleware.CreateRateLimiters()

	r := gin.Default()
	r.Use(cors.Default())
	r.Static("/static", cfg.ScreenshotDir)

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "jobrunner"})
	})

	api := r.Group("/api", middleware.Auth(cfg.JWTSecret), limiters["general"].Limit())
	api.POST("/applications/submit", limiters["submit"].Limit(), applicationController.SubmitApplication)
	api.GET("/applications/runs/:id", applicationController.GetRun)

	log.Printf("jobrunner listening on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
