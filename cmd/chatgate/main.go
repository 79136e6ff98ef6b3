package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lessucettes/chatgate/internal/command"
	"github.com/lessucettes/chatgate/internal/config"
	"github.com/lessucettes/chatgate/internal/event"
	"github.com/lessucettes/chatgate/internal/metrics"
	"github.com/lessucettes/chatgate/internal/policy"
	"github.com/lessucettes/chatgate/internal/store"
	"github.com/lessucettes/chatgate/internal/whitelist"
)

var version = "dev"

const maxLineSize = 1 << 20

type HostInput struct {
	Event event.Event `json:"event"`
}

// gate is everything rebuilt on a config reload.
type gate struct {
	pipeline *policy.Pipeline
	commands *command.Handler
}

// shared survives reloads.
type shared struct {
	registry  *whitelist.Registry
	throttle  *policy.FeedbackThrottle
	collector *metrics.Collector
}

var (
	currentGate *gate
	gateMutex   sync.RWMutex
)

func setGate(g *gate) *gate {
	gateMutex.Lock()
	defer gateMutex.Unlock()
	old := currentGate
	currentGate = g
	return old
}

func getGate() *gate {
	gateMutex.RLock()
	defer gateMutex.RUnlock()
	return currentGate
}

func buildGate(cfg *config.Config, s *shared) *gate {
	var (
		collector policy.MetricsCollector
		observer  command.Observer
	)
	if s.collector != nil {
		collector = s.collector
		observer = s.collector
	}
	return &gate{
		pipeline: policy.NewGatePipeline(cfg, s.registry, s.throttle, collector),
		commands: command.NewHandler(cfg, s.registry, observer),
	}
}

// openShared seeds and loads the whitelists from db and creates the
// feedback throttle.
func openShared(ctx context.Context, cfg *config.Config, db store.Store) (*shared, error) {
	reg := whitelist.NewRegistry(db)
	seed := map[whitelist.Category][]string{
		whitelist.Friend: cfg.Gate.Friend.Entries,
		whitelist.Group:  cfg.Gate.Group.Entries,
		whitelist.Global: cfg.Gate.Global.Entries,
	}
	if err := reg.Seed(ctx, seed); err != nil {
		return nil, err
	}
	if err := reg.Load(ctx); err != nil {
		return nil, err
	}
	th, err := policy.NewFeedbackThrottle(&cfg.Feedback)
	if err != nil {
		return nil, fmt.Errorf("failed to create feedback throttle: %w", err)
	}
	return &shared{registry: reg, throttle: th}, nil
}

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "./config.toml", "Path to the configuration file.")
	useDefaults := flag.Bool("use-defaults", false, "Run with internal defaults if the config file is missing.")
	validateConfig := flag.Bool("validate", false, "Validate the configuration file and exit.")
	dryRun := flag.Bool("dry-run", false, "Log what would be blocked without actually blocking it.")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}
	if *validateConfig {
		if err := validateConfiguration(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration is INVALID: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration is VALID.")
		return
	}
	if err := runApp(*configPath, *useDefaults, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Application run failed: %v\n", err)
		os.Exit(1)
	}
}

func runApp(configPath string, useDefaults bool, dryRun bool) error {
	cfg, defaultsUsed, err := config.Load(configPath, useDefaults)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.Level.ToSlogLevel()}))
	slog.SetDefault(logger)
	if dryRun {
		slog.Warn("Gate is running in DRY-RUN mode.")
	}
	slog.Info("Chat gate starting up", "version", version, "config_path", configPath, "using_defaults", defaultsUsed)
	logPlatformIDs(cfg)
	if len(cfg.Commands.Admins) == 0 {
		slog.Warn("commands.admins is empty, add_wl and del_wl will be refused for everyone")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewBadgerStore(&cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	s, err := openShared(ctx, cfg, db)
	if err != nil {
		return err
	}

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		reg := prometheus.NewRegistry()
		s.collector = metrics.NewCollector(reg, s.throttle.Len)
		go func() {
			if err := metrics.Serve(ctx, addr, reg); err != nil {
				slog.Error("Metrics server failed", "addr", addr, "error", err)
			}
		}()
	}

	setGate(buildGate(cfg, s))

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdownChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	onReload := func(newCfg *config.Config) {
		slog.Info("Reloading gate with new configuration...")
		if err := s.throttle.UpdateConfig(&newCfg.Feedback); err != nil {
			slog.Error("Failed to apply feedback settings on config reload, keeping old gate", "error", err)
			return
		}
		if newCfg.DB != cfg.DB || newCfg.Metrics != cfg.Metrics {
			slog.Warn("Database and metrics settings only take effect after a restart")
		}
		logPlatformIDs(newCfg)

		old := setGate(buildGate(newCfg, s))
		if old != nil {
			go old.pipeline.Close()
		}
		slog.Info("Gate reloaded successfully.", "path", configPath)
	}
	go config.NewWatcher(configPath, onReload, 0).Run(ctx)

	return processEvents(ctx, os.Stdin, os.Stdout, dryRun)
}

func logPlatformIDs(cfg *config.Config) {
	if len(cfg.Gate.PlatformIDs) == 0 {
		slog.Warn("gate.platform_ids is empty")
		return
	}
	slog.Info("Configured platforms", "platform_ids", cfg.Gate.PlatformIDs)
}

// handleEvent runs the gate and, for events it lets through, the admin
// commands. A dry-run accept of a message the gate would block does not
// count as letting it through.
func handleEvent(ctx context.Context, g *gate, ev *event.Event, dryRun bool) (policy.PolicyResponse, error) {
	resp, err := g.pipeline.ProcessEvent(ctx, ev, dryRun)
	if err != nil || resp.Action != policy.ActionAccept || resp.WouldBlock {
		return resp, err
	}
	if reply, ok := g.commands.Handle(ctx, ev); ok {
		return policy.PolicyResponse{ID: ev.ID, Action: policy.ActionReply, Msg: reply}, nil
	}
	return resp, nil
}

func processEvents(ctx context.Context, r io.Reader, w io.Writer, dryRun bool) error {
	linesChan := make(chan []byte)
	errChan := make(chan error, 1)
	encoder := json.NewEncoder(w)

	go func() {
		defer close(errChan)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			lineCopy := make([]byte, len(scanner.Bytes()))
			copy(lineCopy, scanner.Bytes())
			linesChan <- lineCopy
		}
		if err := scanner.Err(); err != nil {
			errChan <- err
		}
		close(linesChan)
	}()

	slog.Info("Ready to process events from stdin...")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-linesChan:
			if !ok {
				if err := <-errChan; err != nil {
					return err
				}
				slog.Info("Input stream closed, shutting down.")
				return nil
			}

			if len(line) == 0 {
				continue
			}
			var input HostInput
			if err := json.Unmarshal(line, &input); err != nil {
				slog.Warn("Failed to decode host input JSON", "error", err, "raw_line_prefix", prefix(line, 128))
				continue
			}

			result, err := handleEvent(ctx, getGate(), &input.Event, dryRun)
			if err != nil {
				slog.Error("Error processing event", "event_id", input.Event.ID, "error", err)
			}

			if err := encoder.Encode(result); err != nil {
				if errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EPIPE) {
					return nil
				}
				slog.Error("Failed to write response to stdout", "error", err)
			}
		}
	}
}

func prefix(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

func validateConfiguration(configPath string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	fmt.Printf("Validating configuration file: %s\n", configPath)
	cfg, _, err := config.Load(configPath, false)
	if err != nil {
		return err
	}

	// The real database may be locked by a running instance.
	db, err := store.NewBadgerStore(&config.DBConfig{InMemory: true})
	if err != nil {
		return fmt.Errorf("failed to open database for validation: %w", err)
	}
	defer db.Close()

	s, err := openShared(context.Background(), cfg, db)
	if err != nil {
		return err
	}
	_ = buildGate(cfg, s)
	return nil
}
