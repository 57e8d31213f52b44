package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"cngnlend/chain"
	"cngnlend/config"
	"cngnlend/gate"
	"cngnlend/gateway"
	"cngnlend/observability/logging"
	"cngnlend/syncer"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "lendgateway.yaml", "path to gateway config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("LENDGATEWAY_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("lendgatewayd", env, cfg.Chain.ChainID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addresses := chain.Addresses{
		LendingPool:       common.HexToAddress(cfg.Chain.LendingPool),
		CollateralManager: common.HexToAddress(cfg.Chain.CollateralManager),
		PriceOracle:       common.HexToAddress(cfg.Chain.PriceOracle),
		BorrowAsset:       common.HexToAddress(cfg.Chain.BorrowAsset),
	}

	reader, client, err := chain.Dial(ctx, cfg.Chain.RPCEndpoint, cfg.Chain.ChainID, addresses)
	if err != nil {
		logger.Error("dial chain", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	signer, err := chain.NewKeystoreSigner(cfg.Wallet.KeystoreDir, cfg.WalletAddress(), cfg.Wallet.Passphrase)
	if err != nil {
		logger.Error("open keystore", "error", err)
		os.Exit(1)
	}
	writer, err := chain.NewWriter(ctx, client, signer, cfg.Chain.ChainID, addresses)
	if err != nil {
		logger.Error("wire writer", "error", err)
		os.Exit(1)
	}

	store := syncer.NewStore()
	sync := syncer.New(reader, store, signer.Address(), cfg.Refresh.Interval, logger)
	g := gate.New(store, writer, sync, logger)

	server, err := gateway.NewServer(cfg, sync, g, logger)
	if err != nil {
		logger.Error("wire server", "error", err)
		os.Exit(1)
	}

	go sync.Run(ctx)

	logger.Info("gateway listening",
		"addr", cfg.ListenAddress, "account", signer.Address().Hex(),
		logging.Endpoint("rpc", cfg.Chain.RPCEndpoint),
		logging.Secret("keystore_passphrase", cfg.Wallet.Passphrase))
	if err := server.ListenAndServe(ctx); err != nil {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}
