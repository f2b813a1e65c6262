package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/banshee-data/pulse.monitor/internal/api"
	"github.com/banshee-data/pulse.monitor/internal/beatbus"
	"github.com/banshee-data/pulse.monitor/internal/config"
	"github.com/banshee-data/pulse.monitor/internal/db"
	"github.com/banshee-data/pulse.monitor/internal/display"
	"github.com/banshee-data/pulse.monitor/internal/fsutil"
	"github.com/banshee-data/pulse.monitor/internal/heartrate"
	"github.com/banshee-data/pulse.monitor/internal/httputil"
	"github.com/banshee-data/pulse.monitor/internal/input"
	"github.com/banshee-data/pulse.monitor/internal/kubios"
	"github.com/banshee-data/pulse.monitor/internal/monitoring"
	"github.com/banshee-data/pulse.monitor/internal/publish"
	"github.com/banshee-data/pulse.monitor/internal/sampler"
	"github.com/banshee-data/pulse.monitor/internal/security"
	"github.com/banshee-data/pulse.monitor/internal/sensor"
	"github.com/banshee-data/pulse.monitor/internal/serialmux"
	"github.com/banshee-data/pulse.monitor/internal/session"
	"github.com/banshee-data/pulse.monitor/internal/stream"
	"github.com/banshee-data/pulse.monitor/internal/tachogram"
	"github.com/banshee-data/pulse.monitor/internal/timeutil"
	"github.com/banshee-data/pulse.monitor/internal/ui"
	"github.com/banshee-data/pulse.monitor/internal/version"
	"github.com/banshee-data/pulse.monitor/internal/wlan"
)

const (
	sourceHub       = "hub"
	sourceCapture   = "capture"
	sourceSynthetic = "synthetic"
)

var (
	configPath  = flag.String("config", "", "Path to a device configuration JSON file")
	listen      = flag.String("listen", ":8080", "Listen address")
	port        = flag.String("port", "/dev/ttyACM0", "Sensor hub serial port (ignored in dev mode)")
	source      = flag.String("source", sourceHub, "Sample source: hub, capture or synthetic")
	capturePath = flag.String("capture", "", "Recording replayed when -source=capture")
	dbPath      = flag.String("db", "", "History database path (overrides the config)")
	envFile     = flag.String("env", "", "Optional .env file with the cloud credentials")
	devMode     = flag.Bool("dev", false, "Run in dev mode: no hub, keyboard input on stdin")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	setupLogging(*devMode)

	if flag.NArg() > 0 {
		if err := runCommand(flag.Args()); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	if err := validateFlags(); err != nil {
		log.Fatalf("%v", err)
	}

	cfg := config.EmptyDeviceConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadDeviceConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("Graceful shutdown complete")
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [migrate up|down|version]\n\n", os.Args[0])
	flag.PrintDefaults()
}

// validateFlags checks flag combinations before anything is opened.
func validateFlags() error {
	if *listen == "" {
		return errors.New("listen address is required")
	}
	switch *source {
	case sourceHub, sourceSynthetic:
	case sourceCapture:
		if *capturePath == "" {
			return errors.New("-capture is required with -source=capture")
		}
	default:
		return fmt.Errorf("unknown source %q (want hub, capture or synthetic)", *source)
	}
	if !*devMode && *port == "" {
		return errors.New("serial port is required")
	}
	return nil
}

func setupLogging(dev bool) {
	level := slog.LevelInfo
	if dev {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(logger)
	monitoring.SetLogger(monitoring.SlogLogf(logger, "device"))
}

// historyPath resolves the database location and checks it is inside an
// allowed data directory.
func historyPath(cfg *config.DeviceConfig) (string, error) {
	path := cfg.GetHistoryDB()
	if *dbPath != "" {
		path = *dbPath
	}
	if err := security.ValidateDataPath(path); err != nil {
		return "", fmt.Errorf("history database: %w", err)
	}
	return path, nil
}

// openADC returns the sample source selected by -source.
func openADC(cfg *config.DeviceConfig, latch *sensor.Latch) (sensor.ADC, error) {
	switch *source {
	case sourceCapture:
		if err := security.ValidateDataPath(*capturePath); err != nil {
			return nil, fmt.Errorf("capture: %w", err)
		}
		c, err := sensor.LoadCapture(fsutil.OSFileSystem{}, *capturePath)
		if err != nil {
			return nil, err
		}
		log.Printf("replaying %d samples from %s", c.Len(), *capturePath)
		return c, nil
	case sourceSynthetic:
		return sensor.NewSynthetic(float64(cfg.GetSampleRateHz()), 72, 0.02), nil
	default:
		return latch, nil
	}
}

// openHub connects the sensor hub. In dev mode the hub is simulated by an
// in-memory port fed from stdin.
func openHub(ctx context.Context, cfg *config.DeviceConfig, h serialmux.Handler) (serialmux.SerialMuxInterface, error) {
	if *devMode {
		p := serialmux.NewTestableSerialPort()
		go feedDevInput(ctx, os.Stdin, p)
		log.Printf("dev mode: type b to press, + or - to turn the knob")
		return serialmux.NewSerialMux[*serialmux.TestableSerialPort](p, h), nil
	}
	m, err := serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: cfg.GetHubBaudRate()}, h)
	if err != nil {
		return nil, fmt.Errorf("failed to open hub port: %w", err)
	}
	return m, nil
}

func run(ctx context.Context, cfg *config.DeviceConfig) error {
	clock := timeutil.RealClock{}

	paired := &input.LevelPin{}
	in := input.NewMonitor(clock, paired, cfg.GetDebounce(), cfg.GetRotaryThreshold())
	latch := &sensor.Latch{}

	hub, err := openHub(ctx, cfg, &serialmux.DeviceHandler{Latch: latch, Input: in, Paired: paired})
	if err != nil {
		return err
	}
	defer hub.Close()

	if err := hub.Initialize(cfg.GetSampleRateHz()); err != nil {
		return fmt.Errorf("failed to initialize hub: %w", err)
	}

	adc, err := openADC(cfg, latch)
	if err != nil {
		return err
	}

	path, err := historyPath(cfg)
	if err != nil {
		return err
	}
	store, err := db.NewDB(path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	history := db.NewHistory(store, db.DefaultHistoryKeep)

	creds, err := kubios.LoadCredentials(envFiles()...)
	if err != nil {
		return err
	}
	if !creds.Complete() {
		log.Printf("cloud credentials incomplete; Kubios analyses will fail")
	}

	fb := display.NewFramebuffer()
	bus := beatbus.New()
	defer bus.Close()

	smp := sampler.New(adc, in.Presses, clock, sampler.ConfigFrom(cfg))
	est := heartrate.NewEstimator(smp.Detector, cfg.GetMaxBPM())
	sess := session.New(smp, est, session.NewScreenReporter(fb), bus, clock, session.ConfigFrom(cfg))

	prompt := &ui.ButtonPrompt{Display: fb, Input: in, Clock: clock}
	cloud := kubios.NewClient(httputil.NewStandardClient(kubios.DefaultTimeout), creds, cfg.GetTokenURL(), cfg.GetAnalyzeURL(), prompt)

	deps := ui.Deps{
		Display:  fb,
		Input:    in,
		Session:  sess,
		Link:     wlan.NewDialLink(cfg.GetWLANProbeHost(), wlan.DefaultProbeTimeout),
		Cloud:    cloud,
		History:  history,
		Clock:    clock,
		Sessions: store,
	}

	var reports *tachogram.Writer
	if dir := cfg.GetPlotDir(); dir != "" {
		if err := security.ValidateDataPath(dir); err != nil {
			return fmt.Errorf("plot dir: %w", err)
		}
		reports = tachogram.NewWriter(fsutil.OSFileSystem{}, dir)
		deps.Reports = reports
	}

	if broker := cfg.GetMQTTBroker(); broker != "" {
		mp, err := publish.DialMQTT(ctx, broker, cfg.GetMQTTTopic())
		if err != nil {
			log.Printf("MQTT disabled: %v", err)
		} else {
			defer mp.Close()
			deps.Publisher = mp
		}
	}

	controller := ui.New(deps)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hub.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor hub: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	if url := cfg.GetNATSURL(); url != "" {
		np, err := publish.ConnectNATS(url, cfg.GetNATSSubject())
		if err != nil {
			log.Printf("NATS disabled: %v", err)
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer np.Close()
				if err := np.Run(ctx, bus); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("NATS publisher stopped: %v", err)
				}
			}()
		}
	}

	if addr := cfg.GetGRPCListen(); addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := stream.NewServer(bus).Listen(ctx, addr); err != nil {
				log.Printf("beat stream stopped: %v", err)
			}
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(api.Config{
			DB:      store,
			History: history,
			Status:  controller.Status,
			Screen:  fb,
			Reports: reportLister(reports),
		})
		mux := srv.ServeMux()
		hub.AttachAdminRoutes(mux)
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("admin routes unavailable: %v", err)
		}
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			http.Redirect(w, r, "/charts/history", http.StatusFound)
		})

		if err := srv.Start(ctx, *listen, mux); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	log.Printf("%s started, source=%s", version.String(), *source)
	err = controller.Run(ctx)
	wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func envFiles() []string {
	if *envFile != "" {
		return []string{*envFile}
	}
	if _, err := os.Stat(".env"); err == nil {
		return []string{".env"}
	}
	return nil
}

// reportLister avoids handing the API a typed nil when plots are disabled.
func reportLister(w *tachogram.Writer) api.ReportLister {
	if w == nil {
		return nil
	}
	return w
}
