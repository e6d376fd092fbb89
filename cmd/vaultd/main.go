package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brickvault/corechain/cmd/vaultd/config"
	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/genesis"
	"github.com/brickvault/corechain/native/common"
	"github.com/brickvault/corechain/native/kyc"
	"github.com/brickvault/corechain/native/property"
	"github.com/brickvault/corechain/native/vault"
	"github.com/brickvault/corechain/observability/logging"
	"github.com/brickvault/corechain/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "vaultd.yaml", "path to vaultd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VAULTD_ENV"))
	logger := logging.Setup("vaultd", env)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		log.Fatalf("open state db: %v", err)
	}
	defer db.Close()

	manifest, err := genesis.Load(cfg.GenesisPath)
	if err != nil {
		log.Fatalf("load genesis manifest: %v", err)
	}

	if manifest.AdminKeystorePath != "" {
		if _, err := crypto.LoadFromKeystore(manifest.AdminKeystorePath, os.Getenv(genesis.AdminKeystorePassphraseEnv)); err != nil {
			log.Fatalf("decrypt admin keystore %s: %v", manifest.AdminKeystorePath, err)
		}
		logger.Info("admin keystore unlocked", "path", manifest.AdminKeystorePath)
	}

	registry := kyc.NewRegistry()
	registry.SetState(kyc.NewStore(db))

	ledger := common.NewSimpleLedger(db)

	vaultEngine := vault.NewEngine()
	vaultEngine.SetState(vault.NewStore(db))
	vaultEngine.SetLedger(ledger)

	properties := make(map[string]*property.Engine)
	for _, p := range manifest.Properties {
		eng := property.NewEngine()
		eng.SetState(property.NewStore(db))
		eng.SetLedger(ledger)
		eng.SetKyc(registry)
		eng.SetVault(vaultEngine)
		properties[p.Name] = eng
	}

	if _, err := genesis.Apply(manifest, registry, vaultEngine, properties); err != nil {
		if errors.Is(err, kyc.ErrAlreadyInitialized) || errors.Is(err, vault.ErrAlreadyInitialized) {
			logger.Info("genesis already applied, resuming from persisted state")
		} else {
			log.Fatalf("apply genesis: %v", err)
		}
	}

	server := NewServer(logger, registry, vaultEngine, properties)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: server.Handler(),
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.MetricsPort),
		Handler: metricsMux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("vaultd listening", "addr", cfg.ListenAddress)
		serverErr <- httpServer.ListenAndServe()
	}()
	go func() {
		logger.Info("metrics listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		_ = httpServer.Close()
		_ = metricsServer.Close()
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve http: %v", err)
		}
	}
	fmt.Fprintln(os.Stderr, "vaultd stopped")
}
