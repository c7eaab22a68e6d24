package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/rawblock/clearing-engine/internal/api"
	"github.com/rawblock/clearing-engine/internal/db"
	"github.com/rawblock/clearing-engine/internal/settlement"
)

func main() {
	log.Println("Starting RawBlock CCP Settlement Engine (Microservice: ccp-settlement-core)...")
	log.Println("Initializing Netting Accumulators and Default Waterfall...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Export them in the shell
	// (or load a local .env file into the environment) before starting.
	// ────────────────────────────────────────────────────────────────────

	dbUrl := requireEnv("DATABASE_URL")

	dbConn, err := db.Connect(dbUrl)
	if err != nil {
		log.Printf("Warning: Failed to connect to PostgreSQL, continuing without persisting audit data. Error: %v", err)
		dbConn = nil
	} else {
		defer dbConn.Close()
		if err := dbConn.InitSchema(); err != nil {
			log.Printf("Warning: DB schema init failed: %v", err)
		}
	}

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	// Assemble the settlement pipeline from env-configured components.
	marginCfg := marginConfigFromEnv()
	waterfallCfg := waterfallConfigFromEnv()
	pipelineCfg := settlement.PipelineConfig{
		Multilateral:       envBool("MULTILATERAL_NETTING", true),
		EscalateShortfalls: envBool("ESCALATE_SHORTFALLS", false),
	}

	var store settlement.CycleStore
	if dbConn != nil {
		store = dbConn
	}
	pipeline := settlement.NewSettlementPipeline(marginCfg, waterfallCfg, pipelineCfg,
		store, api.BroadcastCycleAlert(wsHub))

	// Warm-load clearing accounts so members survive a restart.
	if dbConn != nil {
		accounts, err := dbConn.LoadAccounts(context.Background())
		if err != nil {
			log.Printf("Warning: failed to warm-load clearing accounts: %v", err)
		} else if len(accounts) > 0 {
			for _, acc := range accounts {
				pipeline.House().RegisterAccount(acc.AccountID, acc.Balance)
			}
			log.Printf("Warm-loaded %d clearing accounts", len(accounts))
		}
	}

	// Setup the Gin Router
	r := api.SetupRouter(pipeline, dbConn, wsHub)

	port := getEnvOrDefault("PORT", "5340")

	// Start the server
	log.Printf("Engine running on :%s (API Node: ccp-settlement-core)\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// marginConfigFromEnv builds the margin configuration, falling back to
// the reference defaults per knob.
func marginConfigFromEnv() settlement.MarginConfig {
	cfg := settlement.DefaultMarginConfig()
	cfg.InitialMarginRate = envFloat("INITIAL_MARGIN_RATE", cfg.InitialMarginRate)
	cfg.VariationMarginRate = envFloat("VARIATION_MARGIN_RATE", cfg.VariationMarginRate)
	cfg.MarginFloor = envInt64("MARGIN_FLOOR", cfg.MarginFloor)

	if raw := os.Getenv("STRESS_SCENARIOS"); raw != "" {
		var scenarios []float64
		for _, field := range strings.Split(raw, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				log.Fatalf("FATAL: STRESS_SCENARIOS contains a non-numeric entry %q", field)
			}
			scenarios = append(scenarios, v)
		}
		cfg.StressScenarios = scenarios
	}
	return cfg
}

// waterfallConfigFromEnv builds the waterfall layer capacities.
func waterfallConfigFromEnv() settlement.WaterfallConfig {
	cfg := settlement.DefaultWaterfallConfig()
	cfg.DefaulterMargin = envInt64("WATERFALL_DEFAULTER_MARGIN", cfg.DefaulterMargin)
	cfg.DefaulterFund = envInt64("WATERFALL_DEFAULTER_FUND", cfg.DefaulterFund)
	cfg.CcpFirstLoss = envInt64("WATERFALL_CCP_FIRST_LOSS", cfg.CcpFirstLoss)
	cfg.MembersFund = envInt64("WATERFALL_MEMBERS_FUND", cfg.MembersFund)
	cfg.CcpCapital = envInt64("WATERFALL_CCP_CAPITAL", cfg.CcpCapital)
	return cfg
}

// requireEnv reads a required environment variable and exits if it is not set.
// This prevents the binary from starting with missing critical configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Set it in the environment before starting the engine.", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		log.Fatalf("FATAL: %s must be a boolean, got %q", key, val)
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		log.Fatalf("FATAL: %s must be numeric, got %q", key, val)
	}
	return parsed
}

func envInt64(key string, fallback int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		log.Fatalf("FATAL: %s must be an integer, got %q", key, val)
	}
	return parsed
}
