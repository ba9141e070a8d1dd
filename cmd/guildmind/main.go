package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/guildmind/internal/profile"
	"github.com/hrygo/guildmind/plugin/ai"
	"github.com/hrygo/guildmind/plugin/ai/cache"
	"github.com/hrygo/guildmind/plugin/ai/maintenance"
	"github.com/hrygo/guildmind/plugin/ai/memory"
	"github.com/hrygo/guildmind/plugin/ai/narrative"
	"github.com/hrygo/guildmind/plugin/ai/session"
	"github.com/hrygo/guildmind/server"
	apiv1 "github.com/hrygo/guildmind/server/router/api/v1"
	"github.com/hrygo/guildmind/store"
	"github.com/hrygo/guildmind/store/db"
)

// version is set at build time.
var version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:   "guildmind",
		Short: "Long-lived user memory for guild chat bots",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger(viper.GetString("log-level"), viper.GetString("log-format"))
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP surface, maintenance scheduler and enrichment workers",
		RunE:  runServe,
	}

	maintainCmd = &cobra.Command{
		Use:   "maintain",
		Short: "Run one maintenance sweep and print its report",
		RunE:  runMaintain,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply the storage schema",
		RunE:  runMigrate,
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "text")

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 8081, "port of server")
	flags.String("data", "", "data directory")
	flags.String("driver", "sqlite", "database driver: sqlite, postgres or mongo")
	flags.String("dsn", "", "database source name (or mongodb:// URI)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "log-level", "log-format"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	maintainCmd.Flags().Int("decay-days", 0, "days per decay period (default GUILDMIND_DECAY_DAYS)")
	maintainCmd.Flags().Float64("prune-threshold", 0, "prune facts below this confidence (default GUILDMIND_PRUNE_THRESHOLD)")

	viper.SetEnvPrefix("guildmind")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, maintainCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogger(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return errors.Errorf("invalid log format %q: use text or json", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func loadProfile() (*profile.Profile, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version,
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid profile")
	}
	return p, nil
}

func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	driver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	s := store.New(driver, p)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}
	return s, nil
}

// closer is a cache backend that owns background resources.
type closer interface {
	Close() error
}

// newCache builds the in-process tier, backed by Redis when configured.
func newCache(ctx context.Context, p *profile.Profile) cache.CacheService {
	l1 := cache.NewService(cache.ServiceConfig{DefaultTTL: p.EnvelopeTTL})
	if !p.IsRedisEnabled() {
		return l1
	}
	l2, err := cache.NewRedisCache(ctx, &cache.RedisConfig{
		Addr:         p.RedisAddr,
		Password:     p.RedisPassword,
		DB:           p.RedisDB,
		KeyPrefix:    p.RedisPrefix,
		DefaultTTL:   p.EnvelopeTTL,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	if err != nil {
		slog.Warn("redis unavailable, using in-process cache only", "addr", p.RedisAddr, "error", err)
		return l1
	}
	return cache.NewTieredCache(l1, l2)
}

// newLLM returns nil when AI is disabled; enrichment is then skipped.
func newLLM(p *profile.Profile) (ai.LLMService, error) {
	cfg := ai.NewConfigFromProfile(p)
	if !cfg.Enabled {
		slog.Info("AI disabled, session enrichment is off")
		return nil, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid AI configuration")
	}
	llm, err := ai.NewLLMService(&cfg.LLM)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create LLM service")
	}
	slog.Info("LLM configured", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	return llm, nil
}

// components is the wired memory subsystem.
type components struct {
	store      *store.Store
	cache      cache.CacheService
	memory     *memory.Service
	sessions   *session.Service
	narratives *narrative.Service
	sweeper    *maintenance.Sweeper
}

func wire(ctx context.Context, p *profile.Profile) (*components, error) {
	s, err := openStore(ctx, p)
	if err != nil {
		return nil, err
	}
	llm, err := newLLM(p)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	backend := newCache(ctx, p)

	mem := memory.NewService(s, backend, llm, memory.WithConfig(memory.ConfigFromProfile(p)))
	sessions := session.NewService(s, nil, mem)
	return &components{
		store:      s,
		cache:      backend,
		memory:     mem,
		sessions:   sessions,
		narratives: narrative.NewService(s, nil),
		sweeper: maintenance.NewSweeper(s, mem, sessions, nil, maintenance.Config{
			SessionRetentionDays: p.SessionRetentionDays,
		}),
	}, nil
}

func (c *components) close() {
	c.memory.Wait()
	if cl, ok := c.cache.(closer); ok {
		if err := cl.Close(); err != nil {
			slog.Warn("failed to close cache", "error", err)
		}
	}
	if err := c.store.Close(); err != nil {
		slog.Warn("failed to close store", "error", err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	p, err := loadProfile()
	if err != nil {
		return err
	}
	c, err := wire(ctx, p)
	if err != nil {
		return err
	}
	defer c.close()

	scheduler := maintenance.NewScheduler(c.sweeper, maintenance.SchedulerConfig{
		Spec:           p.MaintenanceSpec,
		DecayDays:      p.DecayDays,
		PruneThreshold: p.PruneThreshold,
	})
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	s := server.NewServer(p, &apiv1.APIV1Service{
		Store:      c.store,
		Memory:     c.memory,
		Narratives: c.narratives,
		Sessions:   c.sessions,
		Sweeper:    c.sweeper,
		Scheduler:  scheduler,
		DecayDays:  p.DecayDays,
		PruneBelow: p.PruneThreshold,
		StartedAt:  time.Now(),
	})
	if err := s.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start server")
	}
	printGreetings(p)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-done:
		slog.Info("signal received", "signal", sig.String())
	case <-ctx.Done():
	}

	s.Shutdown(context.Background())
	return nil
}

func runMaintain(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	p, err := loadProfile()
	if err != nil {
		return err
	}
	decayDays, pruneThreshold := p.DecayDays, p.PruneThreshold
	if cmd.Flags().Changed("decay-days") {
		decayDays, _ = cmd.Flags().GetInt("decay-days")
	}
	if cmd.Flags().Changed("prune-threshold") {
		pruneThreshold, _ = cmd.Flags().GetFloat64("prune-threshold")
	}
	if decayDays <= 0 {
		return errors.Errorf("--decay-days must be positive, got %d", decayDays)
	}
	if pruneThreshold < 0 || pruneThreshold > 1 {
		return errors.Errorf("--prune-threshold %.2f outside [0, 1]", pruneThreshold)
	}

	c, err := wire(ctx, p)
	if err != nil {
		return err
	}
	defer c.close()

	report := c.sweeper.RunMaintenance(ctx, decayDays, pruneThreshold)
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode report")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	if len(report.Errors) > 0 {
		return errors.Errorf("maintenance finished with %d errors", len(report.Errors))
	}
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	s, err := openStore(cmd.Context(), p)
	if err != nil {
		return err
	}
	defer s.Close()
	slog.Info("schema is up to date", "driver", p.Driver)
	return nil
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("guildmind %s started successfully!\n", p.Version)
	fmt.Printf("Data directory: %s\nStore driver: %s\n", p.Data, p.Driver)
	if p.Addr == "" {
		fmt.Printf("Serving on http://localhost:%d\n", p.Port)
	} else {
		fmt.Printf("Serving on http://%s:%d\n", p.Addr, p.Port)
	}
}
