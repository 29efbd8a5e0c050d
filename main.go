// Package main provides the MPPT charger firmware host harness entry
// point and CLI interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/devskill-org/mppt-charger-fw/config"
	"github.com/devskill-org/mppt-charger-fw/hwwatchdog"
	"github.com/devskill-org/mppt-charger-fw/system"
)

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path (defaults to built-in values if absent)")
		info       = flag.Bool("info", false, "Show effective configuration and exit")
		help       = flag.Bool("help", false, "Show help message")
		wdReset    = flag.Bool("wdreset", false, "Boot as if the hardware watchdog caused this reset, for exercising hw_wd_detect")
		sim        = flag.Float64("sim", 0, "Override sim_time_acceleration: compress the daylight diagnostic's day/night cycle by this factor (0 = use config/default)")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			fmt.Println("Error loading configuration:", err)
			os.Exit(1)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if *sim > 0 {
		cfg.SimTimeAcceleration = *sim
	}

	if *info {
		printConfig(cfg)
		return
	}

	fmt.Printf("Starting MPPT charger firmware harness with the following configuration:\n")
	fmt.Printf("  Battery type:    %s\n", cfg.BatteryType)
	fmt.Printf("  Enable at night: %v\n", cfg.EnableAtNight)
	fmt.Printf("  Fast tick:       %s\n", cfg.FastTickInterval)
	fmt.Printf("  Slow tick:       %s\n", cfg.SlowTickInterval)
	fmt.Printf("  Sampler tick:    %s\n", cfg.SamplerInterval)
	fmt.Printf("  Register bus:    :%d\n", cfg.BusPort)
	fmt.Printf("  Health endpoint: :%d\n", cfg.HealthPort)
	fmt.Printf("  Web/WS endpoint: :%d\n", cfg.WebPort)
	fmt.Printf("  Site:            %.4f, %.4f\n", cfg.Latitude, cfg.Longitude)
	fmt.Println()

	logger := log.New(os.Stdout, "[MPPT] ", log.LstdFlags)

	wdCause := hwwatchdog.PowerOnReset
	if *wdReset {
		wdCause = hwwatchdog.WatchdogReset
	}

	sys := system.New(cfg, logger, wdCause)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() {
		done <- sys.Run(ctx)
	}()

	logger.Printf("harness started, press Ctrl+C to stop...")

	select {
	case <-sigChan:
		logger.Printf("shutdown signal received, stopping...")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			logger.Printf("harness stopped with error: %v", err)
			os.Exit(1)
		}
	}

	logger.Printf("harness stopped")
}

func printConfig(cfg *config.Config) {
	fmt.Printf("board_id:                    %d\n", cfg.BoardID)
	fmt.Printf("firmware_version:            %d.%d\n", cfg.FirmwareMajor, cfg.FirmwareMinor)
	fmt.Printf("battery_type:                %s\n", cfg.BatteryType)
	fmt.Printf("enable_at_night:             %v\n", cfg.EnableAtNight)
	fmt.Printf("fast_tick_interval:          %s\n", cfg.FastTickInterval)
	fmt.Printf("slow_tick_interval:          %s\n", cfg.SlowTickInterval)
	fmt.Printf("sampler_interval:            %s\n", cfg.SamplerInterval)
	fmt.Printf("bus_port:                    %d\n", cfg.BusPort)
	fmt.Printf("health_port:                 %d\n", cfg.HealthPort)
	fmt.Printf("web_port:                    %d\n", cfg.WebPort)
	fmt.Printf("latitude, longitude:         %.4f, %.4f\n", cfg.Latitude, cfg.Longitude)
	fmt.Printf("sim_panel_open_circuit_mv:   %d\n", cfg.SimPanelOpenCircuitMv)
	fmt.Printf("sim_panel_mpp_mv:            %d\n", cfg.SimPanelMpptMv)
	fmt.Printf("sim_panel_short_circuit_ma:  %d\n", cfg.SimPanelShortCircuitMa)
	fmt.Printf("sim_battery_mv:              %d\n", cfg.SimBatteryMv)
	fmt.Printf("sim_time_acceleration:       %.1f\n", cfg.SimTimeAcceleration)
	fmt.Printf("log_level:                   %s\n", cfg.LogLevel)
	fmt.Printf("log_format:                  %s\n", cfg.LogFormat)
}

func showHelp() {
	fmt.Println("mppt-charger-fw - MPPT solar battery charger control firmware host harness")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Drives the MPPT tracker, buck-converter control law, temperature")
	fmt.Println("  compensation, and charge/load/watchdog state machines against a")
	fmt.Println("  synthetic panel and battery model standing in for real hardware.")
	fmt.Println("  Exposes the firmware's register-address bus over TCP and live")
	fmt.Println("  telemetry over a websocket feed.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  mppt-charger-fw [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Basic usage with default settings")
	fmt.Println("  mppt-charger-fw")
	fmt.Println()
	fmt.Println("  # Custom configuration")
	fmt.Println("  mppt-charger-fw --config=config.json")
	fmt.Println()
	fmt.Println("  # Show effective configuration")
	fmt.Println("  mppt-charger-fw -info")
	fmt.Println()
	fmt.Println("  # Boot as if the hardware watchdog caused a reset")
	fmt.Println("  mppt-charger-fw -wdreset")
	fmt.Println()
	fmt.Println("  # Compress the day/night cycle 200x for a quick demo")
	fmt.Println("  mppt-charger-fw -sim=200")
	fmt.Println()
	fmt.Println("  # Show this help")
	fmt.Println("  mppt-charger-fw -help")
}
