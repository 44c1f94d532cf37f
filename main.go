package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"forex-agent/config"
	"forex-agent/internal/api"
	"forex-agent/internal/audit"
	"forex-agent/internal/auth"
	"forex-agent/internal/bot"
	"forex-agent/internal/calendar"
	"forex-agent/internal/decision"
	"forex-agent/internal/events"
	"forex-agent/internal/execution"
	"forex-agent/internal/health"
	"forex-agent/internal/logging"
	"forex-agent/internal/market"
	"forex-agent/internal/risk"
	"forex-agent/internal/sequencer"
	"forex-agent/internal/vault"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	generateConfig := flag.Bool("generate-config", false, "write a sample config file and exit")
	issueToken := flag.String("issue-token", "", "issue an API token for the given operator and exit")
	flag.Parse()

	if *generateConfig {
		if err := config.GenerateSampleConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote sample config to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		// Fall back to defaults plus env when the file is absent.
		cfg, err = config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	}

	if *issueToken != "" {
		if !cfg.AuthConfig.Enabled {
			fmt.Fprintln(os.Stderr, "issue-token: auth is disabled in config")
			os.Exit(1)
		}
		tokens, err := auth.NewTokenService(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.TokenDuration)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
			os.Exit(1)
		}
		token, err := tokens.Issue(*issueToken)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue-token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger := logging.New(cfg.LoggingConfig)
	logger.Info().
		Str("instrument", cfg.SystemConfig.Instrument).
		Str("granularity", cfg.SystemConfig.Granularity).
		Str("provider", cfg.MarketConfig.Provider).
		Msg("forex agent starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger, err := audit.Open(cfg.SystemConfig.AuditFile, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open audit ledger")
	}

	var calProvider calendar.Provider = calendar.NewMockProvider()
	if cfg.RedisConfig.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisConfig.Address,
			Password: cfg.RedisConfig.Password,
			DB:       cfg.RedisConfig.DB,
		})
		calProvider = calendar.NewCachedProvider(calProvider, rdb, logger)
	}
	gate := calendar.NewEngine(cfg.EventsConfig, calProvider, ledger, logger)

	provider, err := buildMarketProvider(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build market provider")
	}

	var history *market.HistoryStore
	if cfg.DatabaseConfig.Enabled {
		history, err = market.NewHistoryStore(ctx, market.HistoryConfig{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect candle archive")
		}
		defer history.Close()
	}

	store := execution.NewStore(cfg.SystemConfig.PositionsFile)
	exec := execution.NewEngine(provider, store, ledger, logger)
	decider := decision.NewEngine(gate, nil, ledger, logger)
	riskMgr := risk.NewManager(cfg.RiskConfig, cfg.SystemConfig.InitialBalance, ledger, logger)
	posMgr := risk.NewPositionManager(cfg.RiskConfig.BreakEvenActivation, cfg.RiskConfig.TrailingActivation, cfg.RiskConfig.TrailingDistance, logger)

	seq, err := sequencer.New(cfg.SystemConfig.Instrument, gate, decider, riskMgr, posMgr, exec, ledger, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build sequencer")
	}

	monitor := health.NewMonitor(ledger, cfg.SystemConfig.MaxDataFailures, logger)
	bus := events.NewEventBus()

	agent := bot.New(bot.Config{
		Instrument:   cfg.SystemConfig.Instrument,
		Granularity:  cfg.SystemConfig.Granularity,
		Lookback:     cfg.SystemConfig.LookbackCandles,
		TickInterval: time.Duration(cfg.SystemConfig.TickInterval) * time.Second,
		ProviderName: cfg.MarketConfig.Provider,
	}, provider, seq, gate, monitor, bus, history, logger)

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		var tokens *auth.TokenService
		if cfg.AuthConfig.Enabled {
			tokens, err = auth.NewTokenService(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.TokenDuration)
			if err != nil {
				logger.Fatal().Err(err).Msg("init token service")
			}
		}
		server = api.NewServer(cfg.ServerConfig, cfg.SystemConfig.AuditFile, seq, riskMgr, exec, monitor, bus, tokens, logger)
		server.Start()
	}

	agent.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	agent.Stop()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}
	logger.Info().Msg("forex agent stopped")
}

// buildMarketProvider wires the configured candle source. OANDA credentials
// come from Vault when enabled, otherwise from the config file or env.
func buildMarketProvider(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (market.Provider, error) {
	switch cfg.MarketConfig.Provider {
	case "mock", "":
		return market.NewMockProvider(time.Now().UnixNano()), nil
	case "oanda":
		token := cfg.MarketConfig.APIToken
		accountID := cfg.MarketConfig.AccountID
		environment := cfg.MarketConfig.Environment
		if cfg.VaultConfig.Enabled {
			vc, err := vault.NewClient(cfg.VaultConfig)
			if err != nil {
				return nil, fmt.Errorf("vault client: %w", err)
			}
			creds, err := vc.GetBrokerCredentials(ctx)
			if err != nil {
				return nil, fmt.Errorf("vault credentials: %w", err)
			}
			token = creds.APIToken
			accountID = creds.AccountID
			if creds.Environment != "" {
				environment = creds.Environment
			}
		}
		return market.NewOandaProvider(market.OandaConfig{
			Environment: environment,
			APIToken:    token,
			AccountID:   accountID,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown market provider %q", cfg.MarketConfig.Provider)
	}
}
