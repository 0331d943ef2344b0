package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"susd/config"
	"susd/engine"
	"susd/gateway"
	"susd/observability"
	"susd/observability/logging"
	telemetry "susd/observability/otel"
	"susd/oracle"
	"susd/state"
	"susd/storage"
	"susd/token"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to susdd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SUSD_ENV"))
	logging.Setup("susdd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "susdd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var db storage.Database
	if cfg.Storage.Path != "" {
		leveldb, err := storage.NewLevelDB(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("open position store at %s: %v", cfg.Storage.Path, err)
		}
		db = leveldb
	} else {
		db = storage.NewMemDB()
	}
	defer db.Close()

	vault := cfg.VaultAddress()
	debtToken := token.NewLedger(cfg.DebtToken.Symbol, common.HexToAddress(cfg.DebtToken.Address))

	collateral := make([]token.Collateral, 0, len(cfg.Assets))
	priceFeeds := make([]oracle.PriceFeed, 0, len(cfg.Assets))
	feeds := make(map[common.Address]*oracle.ManualFeed, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		addr := common.HexToAddress(asset.Address)
		ledger := token.NewLedger(asset.Symbol, addr)
		collateral = append(collateral, token.Bind(ledger, vault))

		feed := oracle.NewManualFeed(asset.FeedDecimals)
		if asset.InitialPrice != "" {
			price, ok := new(big.Int).SetString(asset.InitialPrice, 10)
			if ok {
				feed.Set(price, time.Now())
			}
		}
		priceFeeds = append(priceFeeds, feed)
		feeds[addr] = feed
	}

	eng, err := engine.New(engine.Config{
		Vault:         vault,
		State:         state.NewStore(db),
		DebtToken:     debtToken,
		Collateral:    collateral,
		PriceFeeds:    priceFeeds,
		OracleTimeout: cfg.Oracle.Timeout(),
	})
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}
	eng.SetEmitter(observability.MeterEvents(nil))

	handler, err := gateway.New(gateway.Config{
		Engine:    eng,
		Feeds:     feeds,
		APITokens: cfg.Auth.APITokens,
	})
	if err != nil {
		log.Fatalf("build gateway: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("susdd listening on %s", cfg.ListenAddress)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown: %v", err)
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}
}
