package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	diag "github.com/coreman2200/ledstream/diagnostics"
	"github.com/coreman2200/ledstream/internal/app"
	"github.com/coreman2200/ledstream/internal/config"
	"github.com/coreman2200/ledstream/internal/layout"
	"github.com/coreman2200/ledstream/internal/preview"
	"github.com/coreman2200/ledstream/transmit"
)

func main() {
	// ---- Flags (config.yaml can override any of them) ----
	def := config.Default()
	var (
		configPath = flag.String("config", "config.yaml", "path to config.yaml")
		driver     = flag.String("driver", def.Driver, "driver: spi | nrzled | pwm | console | sim")
		leds       = flag.Int("leds", def.LEDCount, "number of LEDs on the strip")
		fps        = flag.Int("fps", def.FPS, "target frames per second")
		pat        = flag.String("pattern", def.Pattern, "start pattern")
		colorOrder = flag.String("color", def.ColorOrder, "LED color order (e.g. GRB, RGB, GRBW)")
		gpio       = flag.Int("gpio", def.PWM.GPIO, "PWM data pin (BCM number) for rpi_ws281x")
		addr       = flag.String("addr", def.HTTP.Addr, "HTTP listen address")
		logLevel   = flag.String("log-level", def.LogLevel, "debug | info | warn | error")
		simOnly    = flag.Bool("sim-only", false, "force simulation (no hardware output)")
		writeCfg   = flag.Bool("write-config", false, "write the effective config to -config and exit")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	cfg := def
	cfg.Driver, cfg.LEDCount, cfg.FPS, cfg.Pattern = *driver, *leds, *fps, *pat
	cfg.ColorOrder, cfg.PWM.GPIO, cfg.HTTP.Addr, cfg.LogLevel = *colorOrder, *gpio, *addr, *logLevel

	// ---- config.yaml overrides flags where it sets a field ----
	if c, err := config.LoadOver(*configPath, cfg); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with flags")
	} else {
		cfg = *c
	}
	if *simOnly {
		cfg.Driver = "sim"
	}
	if *writeCfg {
		if err := config.Save(*configPath, &cfg); err != nil {
			log.Fatal().Err(err).Msg("write config")
		}
		return
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	// ---- Driver ----
	primary, selected := openDriver(&cfg)

	// ---- Preview ----
	var core *app.Core
	l := layout.Layout{Width: cfg.Matrix.Width, Height: cfg.Matrix.Height, Serpentine: cfg.Matrix.Serpentine}
	if l.Count() != cfg.Count() {
		l = layout.Strip(cfg.Count())
	}
	hub := preview.NewHub(preview.Options{
		Layout: l,
		Order:  cfg.Order(),
		Driver: selected,
		Log:    log.Logger,
		Health: func() map[string]any {
			h := core.Health()
			h["driver"] = selected
			return h
		},
		OnControl: func(ctl preview.Control) {
			if err := core.ApplyControl(app.Control(ctl)); err != nil {
				log.Warn().Err(err).Msg("control")
			}
		},
	})

	// ---- Core ----
	tx := transmit.NewMulti(log.Logger, primary, hub.Tap())
	core, err = app.New(&cfg, tx,
		app.WithLogger(log.Logger),
		app.WithDiagnostics(diag.Tee(diag.Logger(log.Logger), hub.Diag)))
	if err != nil {
		log.Fatal().Err(err).Msg("stream init failed")
	}

	// ---- HTTP routes ----
	mux := http.NewServeMux()
	hub.Register(mux)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      withCORS(mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ---- Run loops & server ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core.Start(ctx)
	go func() {
		log.Info().
			Str("addr", cfg.HTTP.Addr).
			Str("driver", selected).
			Str("session", core.SessionID.String()).
			Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	log.Info().Msg("shutting down")

	_ = srv.Close()
	core.Stop()
	if err := primary.Close(); err != nil {
		log.Warn().Err(err).Msg("driver close")
	}
	_ = hub.Close()
}

// openDriver builds the selected hardware transmitter behind Async, falling
// back to the simulator when the hardware cannot be opened.
func openDriver(cfg *config.Config) (*transmit.Async, string) {
	n, order := cfg.Count(), cfg.Order()
	frame := n * order.Channels()
	opt := transmit.AsyncLogger(log.Logger)

	var (
		dev transmit.Sender
		err error
	)
	switch cfg.Driver {
	case "sim":
	case "spi":
		dev, err = transmit.OpenSPI(cfg.SPI.Dev, cfg.SPIOpts())
	case "nrzled":
		dev, err = transmit.OpenNRZLED(cfg.SPI.Dev, order, n, 0)
	case "pwm":
		// brightness is applied upstream
		dev, err = transmit.NewPWM(cfg.PWM.GPIO, n, order, 255)
	case "console":
		dev, err = transmit.NewConsole(order, n)
	default:
		log.Warn().Str("driver", cfg.Driver).Msg("unknown driver; using SIM")
	}
	if err != nil {
		log.Warn().Err(err).
			Str("driver", cfg.Driver).
			Str("dev", cfg.SPI.Dev).
			Int("speed_hz", cfg.SPI.SpeedHz).
			Msg("driver init failed; falling back to SIM")
		dev = nil
	}
	if dev == nil {
		return transmit.NewAsync(transmit.NewSim(transmit.WireTime(n, order.Channels())), frame, opt), "sim"
	}
	return transmit.NewAsync(dev, frame, opt), cfg.Driver
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
