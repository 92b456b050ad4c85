package cli

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mfp-dev/mfp/internal/cache"
	"github.com/mfp-dev/mfp/internal/config"
	"github.com/mfp-dev/mfp/internal/errs"
	"github.com/mfp-dev/mfp/internal/executor"
	"github.com/mfp-dev/mfp/internal/logging"
	"github.com/mfp-dev/mfp/internal/mcp"
	"github.com/mfp-dev/mfp/internal/registry"
	"github.com/mfp-dev/mfp/internal/sandbox"
	"github.com/mfp-dev/mfp/internal/vault"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the compiled registry and cache, and serve the MCP meta-tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			return runServe(cmd, configPath, verbose, cmd.Flags())
		},
	}
	cmd.Flags().String("transport", "stdio", "Transport to serve MCP tools over (stdio|http)")
	cmd.Flags().String("host", "127.0.0.1", "Host to bind when --transport=http")
	cmd.Flags().Int("port", 8080, "Port to bind when --transport=http")
	return cmd
}

// applyServeFlagOverrides layers explicitly-set flags over the config
// file's transport/host/port, so an operator who only set these in
// mfp.yaml isn't forced to repeat them on the command line.
func applyServeFlagOverrides(flags *pflag.FlagSet, cfg *config.Config) error {
	if flags.Changed("transport") {
		v, err := flags.GetString("transport")
		if err != nil {
			return err
		}
		cfg.Transport = v
	}
	if flags.Changed("host") {
		v, err := flags.GetString("host")
		if err != nil {
			return err
		}
		cfg.Host = v
	}
	if flags.Changed("port") {
		v, err := flags.GetInt("port")
		if err != nil {
			return err
		}
		cfg.Port = v
	}
	return nil
}

func runServe(cmd *cobra.Command, configPath string, verbose bool, flags *pflag.FlagSet) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyEnvOverrides(&cfg); err != nil {
		return err
	}
	if verbose {
		cfg.Verbose = true
	}
	if err := applyServeFlagOverrides(flags, &cfg); err != nil {
		return err
	}

	log, err := logging.New(cfg.Verbose)
	if err != nil {
		return errs.Wrap(errs.InternalError, err, "cli: build logger: %v", err)
	}
	defer log.Sync()

	reg := registry.New()
	if err := reg.Load(cfg.CompiledDir); err != nil {
		return err
	}

	store, err := cache.Open(cfg.CacheDBPath, cfg.CacheTTL, cfg.CacheMaxEntries)
	if err != nil {
		return err
	}
	defer store.Close()

	sources := make(map[string]executor.SourceInfo, len(cfg.Sources))
	for _, src := range cfg.Sources {
		sources[src.Name] = executor.SourceInfo{BaseURL: src.BaseURL, AuthHeader: src.AuthHeader}
		if err := vault.RequireAllResolved(src.Name, src.AuthHeader); err != nil {
			log.Warn("serve: credential not resolved", zap.String("server", src.Name), zap.Error(err))
		}
	}

	exec := &executor.Executor{
		Registry:        reg,
		Cache:           store,
		Runtime:         sandbox.NewProcessRuntime(""),
		Lint:            resolveLintRunner(),
		Sources:         sources,
		LibraryRoot:     cfg.CompiledDir,
		DomainAllowlist: cfg.DomainAllowlist,
		Limits: executor.Limits{
			MaxCodeBytes: cfg.MaxCodeBytes,
			Image:        cfg.ContainerImage,
			MemoryMiB:    cfg.ContainerMemoryMiB,
			CPUPercent:   cfg.ContainerCPUPercent,
			Timeout:      cfg.ExecutionTimeout,
			CacheEnabled: cfg.CacheEnabled,
			CacheTTL:     cfg.CacheTTL,
		},
	}

	server := mcp.New(reg, store, exec)

	switch cfg.Transport {
	case "", "stdio":
		log.Info("serve: listening on stdio")
		return server.ServeStdio(cmd.Context(), os.Stdin, cmd.OutOrStdout(), log)
	case "http":
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		log.Info("serve: listening on http", zap.String("addr", addr))
		httpSrv := &http.Server{Addr: addr, Handler: server.HTTPHandler(log)}
		go func() {
			<-cmd.Context().Done()
			httpSrv.Close()
		}()
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errs.Wrap(errs.InternalError, err, "cli: http server: %v", err)
		}
		return nil
	default:
		return newUsageError(fmt.Sprintf("serve: unknown transport %q (want stdio|http)", cfg.Transport))
	}
}
