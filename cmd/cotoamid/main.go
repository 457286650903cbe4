// Command cotoamid runs a single Cotoami node: its SQLite store, local
// service, federation supervisor, and HTTP surface, wired the way
// ppriyankuu-godkv/cmd/server wires a KV node, generalized from flag to
// cobra since go.mod already carries spf13/cobra for this entrypoint.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cotoami/cotoami-go/internal/api"
	"github.com/cotoami/cotoami-go/internal/bus"
	"github.com/cotoami/cotoami-go/internal/clock"
	"github.com/cotoami/cotoami-go/internal/config"
	"github.com/cotoami/cotoami-go/internal/entity"
	"github.com/cotoami/cotoami-go/internal/importer"
	"github.com/cotoami/cotoami-go/internal/logging"
	"github.com/cotoami/cotoami-go/internal/node"
	"github.com/cotoami/cotoami-go/internal/service"
	"github.com/cotoami/cotoami-go/internal/store"
	"github.com/cotoami/cotoami-go/internal/supervisor"
)

func main() {
	root := &cobra.Command{
		Use:   "cotoamid",
		Short: "Run or administer a Cotoami federated knowledge graph node",
	}
	root.AddCommand(newServeCommand(), newImportCommand())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the node's HTTP server and federation supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("cotoamid: load config: %w", err)
	}

	log := logging.New()
	clk := clock.System{}

	dbPath := cfg.DBDir + "/cotoami.db"
	if err := os.MkdirAll(cfg.DBDir, 0o755); err != nil {
		return fmt.Errorf("cotoamid: create db dir: %w", err)
	}
	db, err := store.Open(dbPath, log)
	if err != nil {
		return fmt.Errorf("cotoamid: open store: %w", err)
	}
	defer db.Close()

	localNodeID, err := node.Bootstrap(ctx, db, clk, cfg.NodeName, cfg.OwnerPassword)
	if err != nil {
		return fmt.Errorf("cotoamid: bootstrap node: %w", err)
	}
	log.Infof("cotoamid: local node %s ready", localNodeID)

	buses := bus.NewBuses()
	local := &service.LocalService{
		DB: db, LocalNodeID: localNodeID, Clock: clk, OwnerPassword: cfg.OwnerPassword,
		OnLocalChange: func(entry entity.ChangelogEntry) { buses.Changes.Publish(localNodeID, entry) },
	}

	sv := supervisor.New(supervisor.Config{
		LocalNodeID: localNodeID, DB: db, Buses: buses,
		Dial: newDialer(localNodeID.String(), cfg.OwnerPassword, cfg.Server.EnableWebSocket, cfg.MaxMessageSizeAsClient),
		Log:  log.With("component", "supervisor"),
	})
	if err := connectConfiguredServers(ctx, db, sv); err != nil {
		return fmt.Errorf("cotoamid: connect configured servers: %w", err)
	}

	router := api.NewRouter(api.Config{
		DB: db, Local: local, Buses: buses, LocalNodeID: localNodeID, Clock: clk,
		SessionDuration: cfg.SessionDuration(), MaxMessageSize: cfg.MaxMessageSizeAsServer,
		EnableWebSocket: cfg.Server.EnableWebSocket, Log: log.With("component", "api"),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr, Handler: router,
		ReadTimeout: 30 * time.Second, WriteTimeout: 0, // WriteTimeout=0: SSE streams are long-lived
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("cotoamid: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("cotoamid: server error: %w", err)
	case <-quit:
	}

	log.Infof("cotoamid: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("cotoamid: server shutdown: %v", err)
	}
	return nil
}

// connectConfiguredServers starts the supervisor against every server node
// already registered in the store, so a restarted node resumes every
// parent it was syncing from without needing them re-added.
func connectConfiguredServers(ctx context.Context, db *store.Database, sv *supervisor.Supervisor) error {
	servers, err := store.Read(ctx, db, func(sctx *store.Context) ([]entity.ServerNode, error) {
		return store.AllServerNodes(sctx)
	})
	if err != nil {
		return err
	}
	for _, sn := range servers {
		if sn.Disabled {
			continue
		}
		sv.Connect(sn)
	}
	return nil
}

func newImportCommand() *cobra.Command {
	var dbDir string
	cmd := &cobra.Command{
		Use:   "import <dump.json>",
		Short: "Import a legacy JSON export into this node's store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("cotoamid: load config: %w", err)
			}
			if dbDir != "" {
				cfg.DBDir = dbDir
			}

			log := logging.New()
			db, err := store.Open(cfg.DBDir+"/cotoami.db", log)
			if err != nil {
				return fmt.Errorf("cotoamid: open store: %w", err)
			}
			defer db.Close()

			localNodeID, err := node.Bootstrap(cmd.Context(), db, clock.System{}, cfg.NodeName, cfg.OwnerPassword)
			if err != nil {
				return fmt.Errorf("cotoamid: bootstrap node: %w", err)
			}

			report, err := importer.ImportFile(cmd.Context(), db, clock.System{}, localNodeID, args[0])
			if err != nil {
				return fmt.Errorf("cotoamid: import: %w", err)
			}
			log.Infof("cotoamid: imported %d cotos, %d cotonomas, %d itos (skipped %d)",
				report.Cotos, report.Cotonomas, report.Itos, report.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbDir, "db-dir", "", "override COTOAMI_DB_DIR for this import")
	return cmd
}
