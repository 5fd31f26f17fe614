package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/gipsh/safe-approver-go/internal/api"
	"github.com/gipsh/safe-approver-go/internal/approver"
	"github.com/gipsh/safe-approver-go/internal/auth"
	"github.com/gipsh/safe-approver-go/internal/config"
	"github.com/gipsh/safe-approver-go/internal/events"
	"github.com/gipsh/safe-approver-go/internal/policy"
	"github.com/gipsh/safe-approver-go/internal/safe"
	"github.com/gipsh/safe-approver-go/internal/types"
	"github.com/gipsh/safe-approver-go/internal/units"
	"github.com/gipsh/safe-approver-go/internal/ws"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the approver server",
	GroupID: "server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if config.SafeAddress == (common.Address{}) {
			return errors.New("SAFE_ADDRESS is required")
		}
		if config.AdminAddress == (common.Address{}) {
			return errors.New("ADMIN_ADDRESS is required")
		}
		log.Printf("safe-approver starting | network=%s chain=%s safe=%s limit=%s ETH",
			config.Network, config.ChainID, config.SafeAddress.Hex(), units.FormatEther(config.Limit))

		bus := events.NewBus()
		bus.Subscribe(func(ev types.Event) { log.Printf("[event] %s", ev) })

		store, err := policy.New(policy.Config{
			Admin:     config.AdminAddress,
			Safe:      config.SafeAddress,
			Limit:     config.Limit,
			Whitelist: config.Whitelist,
		}, bus)
		if err != nil {
			return err
		}

		wallet, introspector, closeSafe, err := connectSafe(ctx)
		if err != nil {
			return err
		}
		defer closeSafe()

		gate := approver.New(store, wallet, introspector, bus)
		hub := ws.NewHub()
		bus.Subscribe(hub.Publish)

		server := api.NewServer(gate,
			auth.NewVerifier(time.Duration(config.AuthMaxSkewSec)*time.Second),
			api.WithEvents(hub),
			api.WithCallTimeout(time.Duration(config.CallTimeoutSec)*time.Second),
		)
		httpSrv := &http.Server{
			Addr:              config.ListenAddr,
			Handler:           server.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("[serve] listening on %s", config.ListenAddr)
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen: %w", err)
			}
		}

		log.Println("shutting down")
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	},
}

// connectSafe picks the Safe the approver consults. With an RPC endpoint it
// reads the deployed contract; without one, or when a development network
// lists its owners explicitly, it answers from configuration.
func connectSafe(ctx context.Context) (approver.Safe, approver.Introspector, func(), error) {
	listed := safe.NewStatic(config.AssetContracts...)

	if config.RPCURL == "" || (config.IsDevelopment(config.Network) && len(config.SafeOwners) > 0) {
		if len(config.SafeOwners) == 0 {
			log.Println("[serve] WARNING: offline Safe with no SAFE_OWNERS, every approval will be rejected")
		}
		hasher := safe.NewHasherForVersion(config.SafeVersion, config.ChainID, config.SafeAddress)
		log.Printf("[serve] offline Safe v%s, %d owner(s)", config.SafeVersion, len(config.SafeOwners))
		return safe.NewOffline(hasher, config.SafeOwners...), listed, func() {}, nil
	}

	ec, wallet, err := safe.Dial(ctx, config.RPCURL, config.SafeAddress)
	if err != nil {
		return nil, nil, nil, err
	}
	wallet.SetDebug(config.Debug())

	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, nil, nil, fmt.Errorf("chain id: %w", err)
	}
	if chainID.Cmp(config.ChainID) != 0 {
		ec.Close()
		return nil, nil, nil, fmt.Errorf("RPC is on chain %s, network %q expects %s", chainID, config.Network, config.ChainID)
	}
	version, err := wallet.Version(ctx)
	if err != nil {
		ec.Close()
		return nil, nil, nil, err
	}
	owners, err := wallet.Owners(ctx)
	if err != nil {
		ec.Close()
		return nil, nil, nil, err
	}
	threshold, err := wallet.Threshold(ctx)
	if err != nil {
		ec.Close()
		return nil, nil, nil, err
	}
	log.Printf("[serve] Safe v%s at %s: %d owner(s), threshold %s", version, config.SafeAddress.Hex(), len(owners), threshold)

	return wallet, safe.Any{listed, safe.NewERC165(ec)}, ec.Close, nil
}
