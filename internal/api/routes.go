package api

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/clearing-engine/internal/db"
	"github.com/rawblock/clearing-engine/internal/settlement"
	"github.com/rawblock/clearing-engine/pkg/models"
)

// maxCycleTrades caps a single settlement cycle request to prevent
// runaway resource exhaustion from unconstrained payloads.
const maxCycleTrades = 100_000

// APIHandler wires the settlement pipeline to the HTTP surface. The
// core components are single-writer; mu serializes every mutating
// call so concurrent HTTP requests cannot corrupt engine state.
type APIHandler struct {
	mu       sync.Mutex
	pipeline *settlement.SettlementPipeline
	dbStore  *db.PostgresStore
	wsHub    *Hub
}

func SetupRouter(pipeline *settlement.SettlementPipeline, dbStore *db.PostgresStore, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://ops.example.com
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		pipeline: pipeline,
		dbStore:  dbStore,
		wsHub:    wsHub,
	}

	// ── Public endpoints (no auth) ─────────────────────────────
	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
		pub.GET("/cycle/progress", handler.handleCycleProgress)
	}

	// ── Protected endpoints (require bearer token if API_AUTH_TOKEN set) ──
	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	// Cycle execution runs netting, clearing and persistence in one
	// call — rate-limit the mutating surface to 60 req/min per IP.
	auth.Use(NewRateLimiter(60, 10).Middleware())
	{
		auth.POST("/accounts", handler.handleRegisterAccount)
		auth.GET("/accounts/:id", handler.handleGetAccount)

		auth.POST("/cycle/run", handler.handleRunCycle)

		auth.GET("/journal", handler.handleJournal)
		auth.GET("/journal/hash", handler.handleJournalHash)
		auth.POST("/replay/verify", handler.handleReplayVerify)

		auth.POST("/margin/portfolio", handler.handlePortfolioMargin)
		auth.POST("/waterfall/simulate", handler.handleWaterfallSimulate)
	}

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	h.mu.Lock()
	accounts := h.pipeline.House().AccountCount()
	journalLen := h.pipeline.Journal().Len()
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     "ccp-settlement-core",
		"accounts":    accounts,
		"journalLen":  journalLen,
		"dbConnected": h.dbStore != nil,
		"progress":    h.pipeline.Progress(),
	})
}

func (h *APIHandler) handleCycleProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.Progress())
}

type registerAccountRequest struct {
	AccountID      uint64 `json:"accountId"`
	InitialBalance int64  `json:"initialBalance"`
}

func (h *APIHandler) handleRegisterAccount(c *gin.Context) {
	var req registerAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	h.mu.Lock()
	h.pipeline.House().RegisterAccount(req.AccountID, req.InitialBalance)
	acc, _ := h.pipeline.House().GetAccount(req.AccountID)
	h.mu.Unlock()

	if h.dbStore != nil {
		if err := h.dbStore.UpsertAccount(c.Request.Context(), req.AccountID, req.InitialBalance); err != nil {
			log.Printf("[API] Warning: failed to mirror account %d: %v", req.AccountID, err)
		}
	}

	c.JSON(http.StatusCreated, acc)
}

func (h *APIHandler) handleGetAccount(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Account id must be numeric"})
		return
	}

	h.mu.Lock()
	acc, ok := h.pipeline.House().GetAccount(id)
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}
	c.JSON(http.StatusOK, acc)
}

type runCycleRequest struct {
	Trades []models.Trade `json:"trades"`
}

func (h *APIHandler) handleRunCycle(c *gin.Context) {
	var req runCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if len(req.Trades) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No trades submitted"})
		return
	}
	if len(req.Trades) > maxCycleTrades {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many trades in one cycle"})
		return
	}

	h.mu.Lock()
	report := h.pipeline.RunCycle(c.Request.Context(), req.Trades)
	steps := settlement.BuildReplayLog(h.pipeline.Journal())
	h.mu.Unlock()

	if h.dbStore != nil {
		if err := h.dbStore.SaveJournalEntries(c.Request.Context(), steps); err != nil {
			log.Printf("[API] Warning: failed to mirror journal after cycle %s: %v", report.CycleID, err)
		}
	}

	c.JSON(http.StatusOK, report)
}

func (h *APIHandler) handleJournal(c *gin.Context) {
	h.mu.Lock()
	entries := h.pipeline.Journal().Entries()
	steps := settlement.BuildReplayLog(h.pipeline.Journal())
	h.mu.Unlock()

	type journalItem struct {
		Sequence    uint64              `json:"sequence"`
		TimestampNS uint64              `json:"timestampNs"`
		EventKind   uint8               `json:"eventKind"`
		ContentHash uint64              `json:"contentHash"`
		Event       models.JournalEvent `json:"event"`
	}
	items := make([]journalItem, 0, len(entries))
	for i, entry := range entries {
		items = append(items, journalItem{
			Sequence:    entry.Sequence,
			TimestampNS: entry.TimestampNS,
			EventKind:   steps[i].EventKind,
			ContentHash: steps[i].ContentHash,
			Event:       entry.Event,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": items, "count": len(items)})
}

func (h *APIHandler) handleJournalHash(c *gin.Context) {
	h.mu.Lock()
	hash := settlement.ComputeJournalHash(h.pipeline.Journal())
	length := h.pipeline.Journal().Len()
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"journalHash": strconv.FormatUint(hash, 16),
		"entryCount":  length,
	})
}

type replayVerifyRequest struct {
	Expected []settlement.ReplayStep `json:"expected"`
	Actual   []settlement.ReplayStep `json:"actual"`
}

func (h *APIHandler) handleReplayVerify(c *gin.Context) {
	var req replayVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	// Verification is pure; no lock needed.
	c.JSON(http.StatusOK, settlement.Verify(req.Expected, req.Actual))
}

type portfolioMarginRequest struct {
	AccountID   uint64                 `json:"accountId"`
	Obligations []models.NetObligation `json:"obligations"`
}

func (h *APIHandler) handlePortfolioMargin(c *gin.Context) {
	var req portfolioMarginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.pipeline.MarginEngine().ComputePortfolioMargin(req.AccountID, req.Obligations))
}

type waterfallSimulateRequest struct {
	Losses []int64 `json:"losses"`
}

func (h *APIHandler) handleWaterfallSimulate(c *gin.Context) {
	var req waterfallSimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	wf := h.pipeline.Waterfall()
	c.JSON(http.StatusOK, gin.H{
		"results":       wf.AbsorbLosses(req.Losses),
		"totalCapacity": wf.TotalCapacity(),
	})
}
