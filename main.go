package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ledgermate/recon-api/config"
	"github.com/ledgermate/recon-api/handlers"
	"github.com/ledgermate/recon-api/middleware"
	"github.com/ledgermate/recon-api/routes"
	"github.com/ledgermate/recon-api/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	db, err := config.InitDB()
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	defer db.Close()

	log.Println("✅ Database connected successfully")

	if err := config.RunMigrations(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	go scheduleLockReaping(db)

	wsHandler := handlers.NewWSHandler()
	ruleService := services.NewRuleService(db)

	router := gin.Default()

	allowedOrigins := []string{"http://localhost:3000"}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		allowedOrigins = strings.Split(origins, ",")
	}

	log.Printf("🌍 CORS: Allowing origins:")
	for _, origin := range allowedOrigins {
		log.Printf("   - %s", origin)
	}

	corsConfig := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           86400,
	}
	router.Use(cors.New(corsConfig))

	router.Use(func(c *gin.Context) {
		start := time.Now()
		log.Printf("📨 %s %s from %s", c.Request.Method, c.Request.URL.Path, c.ClientIP())
		c.Next()
		duration := time.Since(start)
		log.Printf("✅ %s %s - %d (%v)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), duration)
	})

	router.Use(middleware.RateLimiter(100, time.Minute))

	v1 := router.Group("/api/v1")
	{
		routes.SetupAuthRoutes(v1, db)

		protected := v1.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.GET("/ws/events", wsHandler.HandleWS)
			routes.SetupAccountRoutes(protected, db)
			routes.SetupTransactionRoutes(protected, db)
			routes.SetupRuleRoutes(protected, db, ruleService, wsHandler)
			routes.SetupReconciliationRoutes(protected, db)
			routes.SetupSyncRoutes(protected, db, ruleService, wsHandler)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("🚀 Server starting on port %s...", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// scheduleLockReaping clears expired batch locks so the table stays small.
// Correctness never depends on this: acquisition takes over expired rows.
func scheduleLockReaping(db *sql.DB) {
	locks := services.NewPGLockStore(db)
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	reapExpiredLocks(locks)
	for range ticker.C {
		reapExpiredLocks(locks)
	}
}

func reapExpiredLocks(locks *services.PGLockStore) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reaped, err := locks.ReapExpired(ctx)
	if err != nil {
		log.Printf("❌ Lock reaping failed: %v", err)
		return
	}
	if reaped > 0 {
		log.Printf("🧹 Cleared %d expired batch lock(s)", reaped)
	}
}
