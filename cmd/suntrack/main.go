package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/ymadsen/suntrack/internal/command"
	"github.com/ymadsen/suntrack/internal/config"
	"github.com/ymadsen/suntrack/internal/debug"
	"github.com/ymadsen/suntrack/internal/device"
	"github.com/ymadsen/suntrack/internal/hw/gpio"
	"github.com/ymadsen/suntrack/internal/track"
	"github.com/ymadsen/suntrack/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start monitor server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	mockGPIO := flag.Bool("mock", false, "force mock GPIO driver (overrides config)")
	once := flag.Bool("once", false, "process a single direction command, then exit")
	input := flag.String("input", "", "read commands from a file instead of the serial port; - for stdin")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *mockGPIO {
		cfg.Defaults.MockGPIO = true
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)

	// Initialize GPIO driver
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Probe the endpoints: all five GPIO resources or none
	mux := device.New(gpioDriver, device.Config{
		ServoPin:    cfg.Servo.Pin,
		StepperPins: cfg.Stepper.Pins,
		StepDelay:   cfg.StepDelay(),
	})
	if err := mux.Probe(); err != nil {
		log.Fatalf("probe failed: %v", err)
	}
	defer mux.Remove()

	// Open the command channel
	ch, err := openChannel(cfg, *input)
	if err != nil {
		log.Fatalf("open command channel failed: %v", err)
	}
	defer func() {
		if err := ch.Close(); err != nil {
			log.Printf("closing command channel failed: %v", err)
		}
	}()

	loop := track.New(mux.Servo(), mux.Stepper(), ch, track.Params{
		PollInterval: cfg.PollInterval(),
		StepperSteps: cfg.Stepper.Steps,
		UpAngle:      cfg.Servo.UpAngle,
		DownAngle:    cfg.Servo.DownAngle,
	})

	// Optional read-only monitor server
	if port := webPort.port(); port > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		srv := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, func() web.Status {
			st := loop.Status()
			return web.Status{
				ServoAngle:    mux.Servo().Angle(),
				StepperPhases: mux.Stepper().Levels(),
				LastDirection: st.LastDirection,
				CommandsSeen:  st.CommandsSeen,
				Actuated:      st.Actuated,
			}
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Printf("monitor server: %v", err)
			}
		}()
	}

	debug.Section("Tracking")
	if *once {
		if err := loop.RunOnce(ctx); err != nil {
			log.Fatalf("command failed: %v", err)
		}
		return
	}
	if err := loop.Run(ctx); err != nil {
		log.Fatalf("control loop: %v", err)
	}
}

// openChannel selects the command source: a file or stdin for
// development, the configured serial port otherwise.
func openChannel(cfg *config.Config, input string) (*command.Channel, error) {
	switch input {
	case "":
		return command.Open(cfg.Serial.Port, cfg.Serial.BaudRate)
	case "-":
		debug.Info("Reading commands from stdin")
		return command.NewChannel(os.Stdin), nil
	default:
		f, err := os.Open(input)
		if err != nil {
			return nil, fmt.Errorf("open input file: %w", err)
		}
		debug.Info("Reading commands from %s", input)
		return command.NewChannel(f), nil
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
