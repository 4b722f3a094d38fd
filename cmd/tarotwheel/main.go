package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const version = "0.3.0"

func printVersion() {
	fmt.Printf("tarotwheel v%s\n", version)
	fmt.Println("Card wheel rotation daemon (drag, momentum, snap)")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  tarotwheel [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Owns a rotating wheel of cards. Pointer events arrive from Linux input")
	fmt.Println("  devices and over a Unix socket; the wheel follows drags, coasts after a")
	fmt.Println("  flick and snaps onto the nearest card. Rotation frames and settled cards")
	fmt.Println("  are published on a WebSocket.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES:")
	fmt.Println("  TAROTWHEEL_SLOT_COUNT, TAROTWHEEL_VIEWPORT_WIDTH, TAROTWHEEL_UPDATE_HZ,")
	fmt.Println("  TAROTWHEEL_INPUT_DEVICES (comma separated), TAROTWHEEL_PIXELS_PER_COUNT,")
	fmt.Println("  TAROTWHEEL_DECK_FILE, TAROTWHEEL_IPC_SOCKET, TAROTWHEEL_STATE_WS_ADDR,")
	fmt.Println("  TAROTWHEEL_LOG_LEVEL, TAROTWHEEL_LOG_FORMAT")
	fmt.Println("  Precedence: defaults < config file < environment < flags")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with defaults (40 cards, IPC + WebSocket only)")
	fmt.Println("  tarotwheel")
	fmt.Println()
	fmt.Println("  # Drive the wheel from a USB dial")
	fmt.Println("  tarotwheel -input-device /dev/input/event4")
	fmt.Println()
	fmt.Println("  # Use a config file and a named deck")
	fmt.Println("  tarotwheel -config ~/.config/tarotwheel.yaml -deck-file ~/decks/major.json")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Reading input devices requires root or membership in the 'input' group")
	fmt.Println()
}

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		envFile    = flag.String("env-file", "", "Path to a .env file with TAROTWHEEL_* variables")

		slotCount     = flag.Int("slot-count", defaultSlotCount, "Number of cards on the wheel")
		viewportWidth = flag.Float64("viewport-width", defaultViewportWidth, "Viewport width in pixels")
		updateHz      = flag.Int("update-hz", defaultUpdateHz, "Frame loop frequency in Hz")
		inputDevice   = flag.String("input-device", "", "Linux input event device (e.g. /dev/input/event4); empty disables input")
		deckFile      = flag.String("deck-file", "", "JSON deck file ([{\"id\":...,\"name\":...}])")
		ipcSocketPath = flag.String("ipc-socket", defaultIPCSocketPath, "Unix domain socket path for IPC")
		stateWSAddr   = flag.String("state-ws-addr", defaultStateWSAddr, "Listen address for the state WebSocket")
		logLevelStr   = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion   = flag.Bool("version", false, "Print version and exit")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	// Only explicitly set flags override file and environment.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	envOverrides, err := LoadEnvOverrides(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	envOverrides.Apply(&cfg)

	var fo FlagOverrides
	if set["slot-count"] {
		fo.SlotCount = slotCount
	}
	if set["viewport-width"] {
		fo.ViewportWidth = viewportWidth
	}
	if set["update-hz"] {
		fo.UpdateHz = updateHz
	}
	if set["input-device"] {
		fo.InputDevice = inputDevice
	}
	if set["deck-file"] {
		fo.DeckFile = deckFile
	}
	if set["ipc-socket"] {
		fo.IPCSocketPath = ipcSocketPath
	}
	if set["state-ws-addr"] {
		fo.StateWSAddr = stateWSAddr
	}
	if set["log-level"] {
		fo.LogLevel = logLevelStr
	}
	fo.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error: invalid config:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level) // checked by Validate
	logger := setupLogger(os.Stdout, logLevel, cfg.Logging.Format)

	if err := run(cfg, logger); err != nil {
		logger.Error("tarotwheel stopped", "error", err)
		os.Exit(1)
	}
}

// run wires the daemon loop, IPC, input and state WebSocket together and
// blocks until a signal arrives or one of them fails.
func run(cfg Config, logger *slog.Logger) error {
	deck, err := cfg.LoadDeck()
	if err != nil {
		return err
	}

	d, err := newWheelDaemon(cfg.ToLayout(), cfg.ToTuning(), deck, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	events := make(chan Event, 256)
	broadcasts := make(chan StateBroadcast, 256)

	g.Go(func() error {
		runDaemon(ctx, events, d, cfg.Daemon.UpdateHz, broadcasts, logger)
		return nil
	})

	g.Go(func() error {
		return runIPCServer(ctx, cfg.IPC.SocketPath, events, logger)
	})

	if len(cfg.Input.Devices) > 0 {
		g.Go(func() error {
			return runInput(ctx, cfg.Input.Devices, cfg.Input, events, logger)
		})
	}

	if cfg.StateWS.Enabled {
		srv := NewServer(logger, events, ServerConfig{Hub: HubConfig{
			SendBuf:      cfg.StateWS.SendBuf,
			BroadcastBuf: cfg.StateWS.BroadcastBuf,
		}})
		mux := http.NewServeMux()
		srv.Register(mux, cfg.StateWS.Path)

		g.Go(func() error {
			srv.Hub().Run(ctx)
			return nil
		})
		g.Go(func() error {
			coalesce := time.Duration(cfg.StateWS.FrameCoalesceMS) * time.Millisecond
			RunBroadcaster(ctx, srv.Hub(), broadcasts, coalesce, logger)
			return nil
		})
		g.Go(func() error {
			return serveHTTP(ctx, cfg.StateWS.Addr, mux, logger)
		})
	} else {
		// Nobody listens; drain so the daemon never logs drops.
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-broadcasts:
				}
			}
		})
	}

	logger.Debug("configuration",
		"slot_count", cfg.Wheel.SlotCount,
		"viewport_width", cfg.Wheel.ViewportWidth,
		"card_width", cfg.Wheel.CardWidth,
		"card_height", cfg.Wheel.CardHeight,
		"visibility", cfg.Wheel.Visibility,
		"update_hz", cfg.Daemon.UpdateHz,
		"input_devices", cfg.Input.Devices,
		"pixels_per_count", cfg.Input.PixelsPerCount,
		"deck_file", cfg.Deck.File)
	logger.Info("listening",
		"ipc", cfg.IPC.SocketPath,
		"state_ws", stateWSURL(cfg.StateWS),
		"input_devices", len(cfg.Input.Devices),
		"update_rate_hz", cfg.Daemon.UpdateHz)

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

func stateWSURL(c StateWSConfig) string {
	if !c.Enabled {
		return "disabled"
	}
	return "ws://" + c.Addr + c.Path
}

// serveHTTP runs an HTTP server until ctx is canceled.
func serveHTTP(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("state ws listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("state ws server: %w", err)
	}
	return nil
}
