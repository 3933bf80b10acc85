package main

import (
	"fmt"
	"os"

	"github.com/edaniels/golog"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/gwillem/cyberdog/pkg/robot"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"cyberdog.json" description:"Configuration file"`
	Verbose bool   `short:"v" long:"verbose" description:"Log debug messages"`

	Setup   SetupCommand   `command:"setup" description:"Configure the backend and calibrate the legs"`
	Run     RunCommand     `command:"run" description:"Drive the dog from the keyboard"`
	Serve   ServeCommand   `command:"serve" description:"Accept remote commands without a terminal UI"`
	Do      DoCommand      `command:"do" description:"Play one action and wait for it to finish"`
	Ports   PortsCommand   `command:"ports" description:"List serial ports"`
	History HistoryCommand `command:"history" description:"Show recently executed actions"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "CyberDog - quadruped gait controller"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads the configured file, falling back to a simulated dog
// when it does not exist yet.
func loadConfig() (*robot.Config, error) {
	if !robot.ConfigExists(opts.Config) {
		fmt.Fprintf(os.Stderr, "No configuration at %s, using the simulator. Run 'cyberdog setup' to configure hardware.\n", opts.Config)
		return robot.DefaultConfig(), nil
	}
	return robot.LoadConfigFrom(opts.Config)
}

// newLogger builds the process logger. With a path, output goes to that
// file so it does not corrupt a terminal UI.
func newLogger(path string) (golog.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !opts.Verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	if path != "" {
		cfg.OutputPaths = []string{path}
		cfg.ErrorOutputPaths = []string{path}
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}
