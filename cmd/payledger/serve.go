package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/jask/payledger/internal/api"
	"github.com/jask/payledger/internal/events"
	"github.com/jask/payledger/internal/gateway"
	"github.com/jask/payledger/internal/secrets"
	"github.com/jask/payledger/internal/service"
)

func serveCmd() *cobra.Command {
	var (
		addr    string
		sandbox bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and webhook endpoint",
		Long: `Run the HTTP API and the gateway webhook endpoint.

Examples:
  payledger serve
  payledger serve --addr :9090
  payledger serve --sandbox`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()
			if addr == "" {
				addr = e.cfg.Server.Addr
			}

			var gw gateway.Client
			if sandbox {
				e.log.Warn("using in-memory sandbox gateway; payments are not real")
				gw = gateway.NewSandbox(localURL(addr))
			} else {
				client, closeFn, err := newGatewayClient(ctx, e)
				if err != nil {
					return err
				}
				defer closeFn()
				gw = client
			}

			bus := events.NewBus(e.log)
			bus.Subscribe(events.LogListener(e.log),
				events.KindPaid, events.KindFailed, events.KindAuthorized, events.KindStatusChanged)

			payments := &service.PaymentService{
				Transactions: e.txs,
				LineItems:    e.items,
				Gateway:      gw,
				Logger:       e.log,
				Testmode:     e.cfg.Gateway.Testmode,
				Currency:     e.cfg.Gateway.Currency,
				FeePercent:   e.cfg.FeePercent(),
				WebhookURL:   e.cfg.Gateway.WebhookURL,
			}
			webhooks := &service.WebhookReconciler{Transactions: e.txs, Gateway: gw, Events: bus, Logger: e.log}

			srv := api.NewServer(api.Deps{
				Payments: payments,
				Webhooks: webhooks,
				Ledger:   e.ledger,
				Imports:  e.imports,
				Logger:   e.log,
				Location: e.cfg.Location(),
			})
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().BoolVar(&sandbox, "sandbox", false, "use the in-memory sandbox gateway")
	return cmd
}

// newGatewayClient builds the HTTP gateway client. OAuth tokens are shared
// through Redis when redis.addr is set and reachable.
func newGatewayClient(ctx context.Context, e *env) (gateway.Client, func(), error) {
	noop := func() {}
	gcfg := e.cfg.GatewayClientConfig(resolveAPIKey(e))
	var opts []gateway.Option
	closeFn := noop
	if e.cfg.Redis.Addr != "" && gcfg.ClientID != "" {
		rdb := redis.NewClient(&redis.Options{Addr: e.cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			e.log.Warn("redis unavailable, gateway tokens are not shared", "addr", e.cfg.Redis.Addr, "err", err)
			_ = rdb.Close()
		} else {
			opts = append(opts, gateway.WithTokenCache(gateway.NewRedisTokenCache(rdb, e.cfg.Redis.TokenTTL)))
			closeFn = func() { _ = rdb.Close() }
		}
	}
	client, err := gateway.NewHTTPClient(ctx, gcfg, opts...)
	if err != nil {
		closeFn()
		return nil, noop, fmt.Errorf("gateway: %w", err)
	}
	return client, closeFn, nil
}

// resolveAPIKey prefers config and env, then the keyring entry for the
// configured mode.
func resolveAPIKey(e *env) string {
	if k := e.cfg.APIKey(); k != "" {
		return k
	}
	store, err := secrets.Open(secrets.Options{Password: os.Getenv("PAYLEDGER_KEYRING_PASSWORD")})
	if err != nil {
		e.log.Debug("keyring unavailable", "err", err)
		return ""
	}
	k, err := store.Get(secrets.GatewayKeyName(e.cfg.Gateway.Testmode))
	if err != nil {
		if !errors.Is(err, secrets.ErrNotFound) {
			e.log.Warn("read gateway key from keyring", "err", err)
		}
		return ""
	}
	return k
}

func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
