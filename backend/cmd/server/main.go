package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"kindred/backend/internal/adapter"
	"kindred/backend/internal/constants"
	"kindred/backend/internal/coordinate"
	"kindred/backend/internal/graph"
	"kindred/backend/pkg/config"
	"kindred/backend/pkg/errors"
	"kindred/backend/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting matching engine server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Connect to Neo4j. A failed initial connect is not fatal: the
	// connection manager keeps retrying in the background and operations
	// degrade until the store is back.
	ctx := context.Background()
	conn := graph.NewConnection(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	if !conn.Connect(ctx) {
		log.Warn("Neo4j unavailable at startup; operating in degraded mode")
	}
	conn.StartHealthChecks()
	defer conn.Stop()

	// Initialize dependencies
	repo := graph.NewRepository(conn)
	if conn.IsAvailable() {
		repo.EnsureStructuralIndexes(ctx)
		repo.UpsertAgent(ctx, constants.DefaultAgentID, constants.DefaultAgentID)
	}

	embedder := adapter.NewEmbeddingsAdapter(cfg.EmbeddingsURL, cfg.EmbeddingsAPIKey, cfg.EmbeddingModel)
	coordinator := coordinate.NewCoordinator(repo, &logLinker{log: log})

	sweeper := coordinate.NewSweeper(repo, &logNotifier{log: log}, coordinate.Policy{
		ProposalWindow: time.Duration(cfg.ProposalWindowHours) * time.Hour,
		ResponseWindow: time.Duration(cfg.ResponseWindowHours) * time.Hour,
		ReminderWindow: time.Duration(cfg.ReminderWindowHours) * time.Hour,
		FeedbackWindow: time.Duration(cfg.FeedbackWindowHours) * time.Hour,
		Interval:       time.Duration(cfg.SweepIntervalMinutes) * time.Minute,
	})
	sweeper.Start()
	defer sweeper.Stop()

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		if !conn.IsAvailable() {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{
			"status": status,
			"neo4j":  conn.IsAvailable(),
		})
	})

	// API routes
	api := router.Group("/api")
	{
		// Upsert a person. A missing id means "create" and the generated
		// id comes back in the response.
		api.POST("/people", func(c *gin.Context) {
			var req struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				Status   string `json:"status"`
				Metadata string `json:"metadata"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if req.ID == "" {
				req.ID = uuid.NewString()
			}

			ok := repo.UpsertPerson(c.Request.Context(), req.ID, graph.PersonAttrs{
				Name:     req.Name,
				Status:   graph.PersonStatus(req.Status),
				Metadata: req.Metadata,
			})
			if !ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to store person"})
				return
			}
			repo.LinkAgentToPerson(c.Request.Context(), repo.AgentID(), req.ID)
			c.JSON(http.StatusOK, gin.H{"status": "stored", "id": req.ID})
		})

		// Get a person
		api.GET("/people/:id", func(c *gin.Context) {
			person, ok := repo.GetPerson(c.Request.Context(), c.Param("id"))
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "Person not found"})
				return
			}
			c.JSON(http.StatusOK, person)
		})

		// Record an extracted dimension for a person
		api.POST("/people/:id/dimensions", func(c *gin.Context) {
			personID := c.Param("id")
			var req struct {
				Kind      string    `json:"kind" binding:"required"`
				Name      string    `json:"name" binding:"required"`
				Value     string    `json:"value" binding:"required"`
				Embedding []float64 `json:"embedding"`
				Evidence  string    `json:"evidence"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			embedding := req.Embedding
			if len(embedding) == 0 {
				vec, embedErr := embedder.Embed(c.Request.Context(), req.Value)
				if embedErr != nil {
					log.Error("Failed to embed dimension value", zap.Error(embedErr))
					c.JSON(http.StatusBadGateway, gin.H{"error": "Embedding failed"})
					return
				}
				embedding = vec
			}

			ok := repo.RecordDimension(c.Request.Context(), personID,
				graph.DimensionKind(req.Kind), graph.DimensionName(req.Name),
				req.Value, embedding, req.Evidence)
			if !ok {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Failed to record dimension"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "recorded"})
		})

		// List a person's stored dimensions
		api.GET("/people/:id/dimensions", func(c *gin.Context) {
			kind := graph.DimensionKind(c.DefaultQuery("kind", string(graph.KindPersona)))
			dims, ok := repo.GetDimensions(c.Request.Context(), c.Param("id"), kind)
			if !ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"dimensions": dims})
		})

		// Similarity search for match candidates
		api.POST("/search", func(c *gin.Context) {
			var req struct {
				PersonID  string    `json:"person_id" binding:"required"`
				Kind      string    `json:"kind" binding:"required"`
				Names     []string  `json:"names"`
				Text      string    `json:"text"`
				Embedding []float64 `json:"embedding"`
				Limit     int       `json:"limit"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			embedding := req.Embedding
			if len(embedding) == 0 {
				if req.Text == "" {
					c.JSON(http.StatusBadRequest, gin.H{"error": "text or embedding is required"})
					return
				}
				vec, embedErr := embedder.Embed(c.Request.Context(), req.Text)
				if embedErr != nil {
					log.Error("Failed to embed search text", zap.Error(embedErr))
					c.JSON(http.StatusBadGateway, gin.H{"error": "Embedding failed"})
					return
				}
				embedding = vec
			}

			names := make([]graph.DimensionName, 0, len(req.Names))
			for _, n := range req.Names {
				names = append(names, graph.DimensionName(n))
			}
			if len(names) == 0 {
				names = graph.DimensionNames()
			}

			hits := repo.SearchAcrossDimensions(c.Request.Context(),
				graph.DimensionKind(req.Kind), names, req.PersonID, embedding, req.Limit)
			c.JSON(http.StatusOK, gin.H{"hits": hits})
		})

		// Create a match between two people
		api.POST("/matches", func(c *gin.Context) {
			var req struct {
				FromID    string   `json:"from_id" binding:"required"`
				ToID      string   `json:"to_id" binding:"required"`
				Reasoning string   `json:"reasoning"`
				Score     *float64 `json:"score"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			if !repo.CreateMatch(c.Request.Context(), req.FromID, req.ToID, req.Reasoning, req.Score) {
				c.JSON(http.StatusConflict, gin.H{"error": "Match not created"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "created"})
		})

		// Check whether two people were ever matched
		api.GET("/matches/exists", func(c *gin.Context) {
			a := c.Query("a")
			b := c.Query("b")
			if a == "" || b == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "a and b are required"})
				return
			}
			exists, ok := repo.HasExistingMatch(c.Request.Context(), a, b)
			if !ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"exists": exists})
		})

		// Advance a user's active match with one coordination event
		api.POST("/matches/advance", func(c *gin.Context) {
			var req struct {
				UserID string           `json:"user_id" binding:"required"`
				Event  coordinate.Event `json:"event" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			result, err := coordinator.AdvanceMatch(c.Request.Context(), req.UserID, req.Event)
			if err != nil {
				if errors.IsErrorType(err, errors.ErrorTypeMatch) {
					c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
					return
				}
				log.Error("Failed to advance match", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to advance match"})
				return
			}
			c.JSON(http.StatusOK, result)
		})

		// List matches in non-terminal states
		api.GET("/matches/active", func(c *gin.Context) {
			matches, ok := repo.ListActiveMatches(c.Request.Context(), nil)
			if !ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"matches": matches})
		})

		// List confirmed meetings coming up within a window
		api.GET("/matches/upcoming", func(c *gin.Context) {
			matches, ok := repo.ListUpcomingScheduled(c.Request.Context(), intQuery(c, "hours", cfg.ReminderWindowHours))
			if !ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"matches": matches})
		})

		// List meetings that recently elapsed
		api.GET("/matches/past", func(c *gin.Context) {
			matches, ok := repo.ListPastScheduled(c.Request.Context(), intQuery(c, "hours", cfg.FeedbackWindowHours))
			if !ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Store unavailable"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"matches": matches})
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func intQuery(c *gin.Context, key string, fallback int) int {
	var n int
	if _, err := fmt.Sscanf(c.Query(key), "%d", &n); err == nil && n > 0 {
		return n
	}
	return fallback
}

// logLinker records connection establishment until an external transport
// is wired in
type logLinker struct {
	log *zap.Logger
}

func (l *logLinker) EstablishConnection(ctx context.Context, userA, userB string) error {
	l.log.Info("Connection established",
		zap.String("user_a", userA),
		zap.String("user_b", userB))
	return nil
}

// logNotifier records outbound prompts until an external transport is
// wired in
type logNotifier struct {
	log *zap.Logger
}

func (n *logNotifier) Notify(ctx context.Context, userID, message string) error {
	n.log.Info("Notification",
		zap.String("user_id", userID),
		zap.String("message", message))
	return nil
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
