package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kitchenai/kitchen/internal/config"
	"github.com/kitchenai/kitchen/internal/event"
	"github.com/kitchenai/kitchen/internal/generation"
	"github.com/kitchenai/kitchen/internal/logging"
	"github.com/kitchenai/kitchen/internal/machine"
	"github.com/kitchenai/kitchen/internal/persistence"
	"github.com/kitchenai/kitchen/internal/prompt"
	"github.com/kitchenai/kitchen/internal/provider"
	"github.com/kitchenai/kitchen/internal/server"
	"github.com/kitchenai/kitchen/internal/session"
	"github.com/kitchenai/kitchen/internal/storage"
	"github.com/kitchenai/kitchen/pkg/types"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
	serveWatch    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kitchen server",
	Long: `Start the kitchen HTTP server. Page sessions are created over HTTP and
followed through a websocket or an SSE stream. Sessions are hibernated to
the storage directory on shutdown and rehydrated on first access.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
	serveCmd.Flags().BoolVar(&serveWatch, "watch-prompts", true, "Reload prompt templates when they change")
}

// categoryModels builds the per-category model overrides. The small model
// serves the suggestion categories unless a category is configured
// explicitly.
func categoryModels(cfg *types.Config) map[string]string {
	models := make(map[string]string)
	if cfg.SmallModel != "" {
		models[string(event.CategoryPlaceholder)] = cfg.SmallModel
		models[string(event.CategorySuggestTokens)] = cfg.SmallModel
	}
	for k, v := range cfg.CategoryModel {
		models[k] = v
	}
	return models
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	storageDir := config.StorageDir(appConfig)
	store := persistence.NewStore(storage.NewOS(storageDir))

	ctx := context.Background()
	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to initialize some providers")
	}
	if len(providerReg.List()) == 0 {
		logging.Warn().Msg("no providers configured; generation requests will fail")
	}

	library := prompt.NewLibrary()
	promptsDir := config.PromptsDir(appConfig)
	if n, err := library.LoadDir(promptsDir); err != nil {
		return err
	} else if n > 0 {
		logging.Info().Int("templates", n).Str("dir", promptsDir).Msg("prompt overrides loaded")
	}
	if serveWatch {
		if watcher, err := prompt.NewWatcher(library, promptsDir); err == nil {
			watcher.Start()
			defer watcher.Stop()
		} else {
			logging.Debug().Err(err).Str("dir", promptsDir).Msg("prompt watcher disabled")
		}
	}

	generator := generation.NewGenerator(providerReg, library, categoryModels(appConfig))
	runner := generation.NewRunner(generator, logging.Logger)

	bus := event.NewBus()
	opts := session.Options{
		Machine: machine.New(machine.ConfigFrom(appConfig.Session)),
		Tasks:   runner,
		Store:   store,
		Bus:     bus,
	}
	if appConfig.Session != nil {
		opts.QueueSize = appConfig.Session.QueueSize
	}
	sessions := session.NewManager(opts)

	serverConfig := server.DefaultConfig()
	serverConfig.Port = servePort
	serverConfig.Hostname = serveHostname
	if sc := appConfig.Server; sc != nil {
		if sc.Port != 0 && !cmd.Flags().Changed("port") {
			serverConfig.Port = sc.Port
		}
		if sc.Hostname != "" && !cmd.Flags().Changed("hostname") {
			serverConfig.Hostname = sc.Hostname
		}
		serverConfig.EnableCORS = !sc.DisableCORS
	}

	srv := server.New(serverConfig, sessions)

	logging.Info().
		Str("version", Version).
		Str("workDir", workDir).
		Str("storage", storageDir).
		Msg("starting kitchen server")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}

	logging.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown failed")
	}
	if err := sessions.Close(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("failed to hibernate sessions")
	}
	runner.Wait()
	if err := bus.Close(); err != nil {
		logging.Error().Err(err).Msg("failed to close event bus")
	}

	logging.Info().Msg("server stopped")
	return nil
}
