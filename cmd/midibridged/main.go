package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/showpilot/midibridge/midi"
)

// -------------------- Logger --------------------

// logger is the process-wide structured logger. Safe to use before
// initLogger is called; defaults to slog.Default().
var logger = slog.Default()

// initLogger configures the shared slog logger and calls
// slog.SetDefault so the stdlib log package routes through the same
// handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

// -------------------- Main --------------------

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (adds source location)")
	configPath := flag.String("config", "midibridge.yaml", "settings file path")
	list := flag.Bool("list", false, "list MIDI devices and exit")
	allowFallback := flag.Bool("allow-fallback", false, "let reconnection attach to the first available device when the remembered one stays absent")
	flag.Parse()

	initLogger(*debug)

	opts := []midi.Option{
		midi.WithLogger(logger),
		midi.WithActions(actionDelegates()),
		midi.WithStatusSink(func(st midi.Status) {
			logger.Info("midi: status changed",
				"enabled", st.Enabled,
				"input", st.InputName,
				"output", st.OutputName,
				"reconnecting", st.Reconnecting,
			)
		}),
		midi.WithDeviceListSink(func(dl midi.DeviceList) {
			logger.Info("midi: device list refreshed",
				"inputs", strings.Join(dl.Inputs, ", "),
				"outputs", strings.Join(dl.Outputs, ", "),
			)
		}),
	}
	if *allowFallback {
		opts = append(opts, midi.AllowFallbackDevice())
	}
	svc := midi.NewService(opts...)

	if *list {
		printDevices(svc.Devices())
		return
	}

	if !svc.Enable() {
		logger.Error("midi: no transport binding on this platform, exiting")
		os.Exit(1)
	}
	defer svc.Disable()

	cfg, err := midi.LoadSettings(*configPath)
	if err != nil {
		logger.Warn("settings load failed, starting with no bindings", "path", *configPath, "err", err)
	} else {
		svc.ApplySettings(cfg)
	}

	if cfg.Devices.Input != "" {
		svc.ConnectInputByName(cfg.Devices.Input, true)
	}
	if cfg.Devices.Output != "" {
		svc.ConnectOutputByName(cfg.Devices.Output, true)
	}

	logger.Info("midibridged running", "config", *configPath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
}

// actionDelegates wires the closed action set. The standalone daemon
// has no presentation engine attached, so delegates log the dispatch;
// a host application embeds the midi package and supplies real ones.
func actionDelegates() midi.Actions {
	return midi.Actions{
		NavigatePresentation: func(dir midi.Direction) {
			logger.Info("action: navigate presentation", "direction", dir.String())
		},
		StartExternalStream: func() {
			logger.Info("action: start external stream")
		},
		StopExternalStream: func() {
			logger.Info("action: stop external stream")
		},
		SwitchScene: func(name string) {
			logger.Info("action: switch scene", "scene", name)
		},
	}
}

func printDevices(dl midi.DeviceList) {
	fmt.Println("inputs:")
	for i, name := range dl.Inputs {
		fmt.Printf("  %d: %s\n", i, name)
	}
	fmt.Println("outputs:")
	for i, name := range dl.Outputs {
		fmt.Printf("  %d: %s\n", i, name)
	}
}
