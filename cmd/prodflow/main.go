package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/studiokit/prodflow/internal/bot"
	"github.com/studiokit/prodflow/internal/discord"
	"github.com/studiokit/prodflow/internal/httpapi"
	"github.com/studiokit/prodflow/internal/prodflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := os.Getenv("PRODFLOW_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	botToken := strings.TrimSpace(os.Getenv("PRODFLOW_DISCORD_TOKEN"))
	if botToken == "" {
		log.Fatal("PRODFLOW_DISCORD_TOKEN is required")
	}
	configPath := strings.TrimSpace(os.Getenv("PRODFLOW_CONFIG_FILE"))
	if configPath == "" {
		configPath = "workflows.json"
	}

	configs, err := prodflow.LoadWorkflowConfigs(configPath)
	if err != nil {
		log.Fatalf("failed to load workflow config: %v", err)
	}
	registry, err := prodflow.NewRegistry(configs)
	if err != nil {
		log.Fatalf("failed to build workflow registry: %v", err)
	}
	if err := prodflow.WatchConfig(ctx, configPath, registry, log.Printf); err != nil {
		log.Printf("config watch disabled: %v", err)
	}

	tokenSource, err := googleTokenSourceFromEnv(ctx)
	if err != nil {
		log.Fatalf("failed to initialize sheet credentials: %v", err)
	}
	tokenProvider := func(ctx context.Context) (string, error) {
		token, err := tokenSource.Token()
		if err != nil {
			return "", err
		}
		return token.AccessToken, nil
	}
	sheets := prodflow.NewHTTPSheetClient(prodflow.SheetsHTTPClientOptions{
		TokenProvider: tokenProvider,
		UserAgent:     "prodflow",
	})

	ledgerBackend, err := prodflow.BuildLedgerBackendFromDSN(os.Getenv("PRODFLOW_LEDGER_DSN"))
	if err != nil {
		log.Fatalf("failed to initialize ledger backend: %v", err)
	}
	ledger := prodflow.NewInMemoryLedgerWithBackend(ledgerBackend)
	defer func() {
		if err := ledger.Close(); err != nil {
			log.Printf("ledger close: %v", err)
		}
	}()

	var notifier prodflow.Notifier = prodflow.NoopNotifier{}
	lineToken := strings.TrimSpace(os.Getenv("PRODFLOW_LINE_TOKEN"))
	if lineToken != "" {
		notifier = prodflow.NewHTTPLineNotifier(prodflow.LineNotifierOptions{
			TokenProvider: func(context.Context) (string, error) { return lineToken, nil },
		})
	}

	rest := discord.NewClient(discord.ClientOptions{
		BotToken:  botToken,
		AppID:     os.Getenv("PRODFLOW_DISCORD_APP_ID"),
		UserAgent: "prodflow",
	})
	service := prodflow.NewService(prodflow.ServiceOptions{
		Registry:          registry,
		Sheets:            sheets,
		Chat:              &bot.RestChatClient{Rest: rest},
		Ledger:            ledger,
		Notifier:          notifier,
		NotifyDestination: os.Getenv("PRODFLOW_LINE_DESTINATION"),
		Logf:              log.Printf,
	})
	intake := &prodflow.UploadIntake{
		Drive: prodflow.NewHTTPDriveClient(prodflow.DriveHTTPClientOptions{
			TokenProvider: tokenProvider,
			UserAgent:     "prodflow",
		}),
		Sheets:   sheets,
		Registry: registry,
		Logf:     log.Printf,
	}
	router := bot.NewRouter(bot.Options{
		Service: service,
		Rest:    rest,
		Intake:  intake,
		Logf:    log.Printf,
	})
	gateway := discord.NewGateway(discord.GatewayOptions{
		BotToken: botToken,
		Handler:  router,
		Logf:     log.Printf,
	})

	server := httpapi.NewServer(registry, ledger, httpapi.ServerConfig{
		WebhookSecret:   os.Getenv("PRODFLOW_LINE_CHANNEL_SECRET"),
		RateLimitMax:    intEnv("PRODFLOW_RATE_LIMIT_MAX", 0),
		RateLimitWindow: durationEnv("PRODFLOW_RATE_LIMIT_WINDOW", time.Minute),
		MaxBodyBytes:    int64Env("PRODFLOW_MAX_BODY_BYTES", 0),
	}, log.Printf)
	httpServer := &http.Server{Addr: addr, Handler: server}

	errc := make(chan error, 2)
	go func() {
		log.Printf("prodflow listening on %s", addr)
		errc <- httpServer.ListenAndServe()
	}()
	go func() {
		errc <- gateway.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Print("shutting down")
	case err := <-errc:
		log.Printf("fatal: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func googleTokenSourceFromEnv(ctx context.Context) (oauth2.TokenSource, error) {
	credentialsFile := strings.TrimSpace(os.Getenv("PRODFLOW_GOOGLE_CREDENTIALS_FILE"))
	if credentialsFile == "" {
		credentialsFile = "credentials.json"
	}
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, err
	}
	config, err := google.JWTConfigFromJSON(data,
		"https://www.googleapis.com/auth/spreadsheets",
		"https://www.googleapis.com/auth/drive",
	)
	if err != nil {
		return nil, err
	}
	return config.TokenSource(ctx), nil
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
