package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/cyberdog/pkg/hw"
	"github.com/gwillem/cyberdog/pkg/motion"
	"github.com/gwillem/cyberdog/pkg/robot"
)

var (
	titleHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
)

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(titleHeaderStyle.Render("CyberDog Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg := robot.DefaultConfig()
	if robot.ConfigExists(opts.Config) {
		existing, err := robot.LoadConfigFrom(opts.Config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ignoring unreadable %s: %v\n", opts.Config, err)
		} else {
			cfg = existing
		}
	}

	// Step 1: Backend
	if err := chooseBackend(cfg); err != nil {
		return err
	}

	// Step 2: Pins
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Leg wiring ━━━"))
	fmt.Println()
	if err := askPins(cfg); err != nil {
		return err
	}
	if cfg.Backend.Kind != hw.KindSim {
		identify := true
		if err := huh.NewConfirm().
			Title("Wiggle each leg to check the wiring?").
			Value(&identify).
			Run(); err != nil {
			return err
		}
		if identify {
			if err := identifyLegs(cfg); err != nil {
				return err
			}
		}
	}

	// Step 3: Trims and options
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Trims and options ━━━"))
	fmt.Println()
	if err := askTrims(cfg); err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Drive the dog with: " + titleHeaderStyle.Render("cyberdog run"))
	return nil
}

func chooseBackend(cfg *robot.Config) error {
	kind := cfg.Backend.Kind
	if kind == "" {
		kind = hw.KindSim
	}
	if err := huh.NewSelect[string]().
		Title("Which servo backend?").
		Options(
			huh.NewOption("Simulator (no hardware)", hw.KindSim),
			huh.NewOption("Feetech bus servos", hw.KindFeetech),
			huh.NewOption("PWM bridge board on a serial port", hw.KindBridge),
		).
		Value(&kind).
		Run(); err != nil {
		return err
	}
	cfg.Backend.Kind = kind
	if kind == hw.KindSim {
		cfg.Backend.Port = ""
		cfg.Backend.Baud = 0
		return nil
	}

	ports, err := hw.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println("Make sure the board is connected and powered on.")
		os.Exit(1)
	}

	options := make([]huh.Option[string], 0, len(ports))
	for _, p := range ports {
		options = append(options, huh.NewOption(p, p))
	}
	port := cfg.Backend.Port
	if err := huh.NewSelect[string]().
		Title("Which serial port?").
		Options(options...).
		Value(&port).
		Run(); err != nil {
		return err
	}
	cfg.Backend.Port = port
	return nil
}

func askPins(cfg *robot.Config) error {
	pins := make(map[robot.LimbName]*string)
	var fields []huh.Field
	for _, name := range robot.AllLimbs() {
		v := strconv.Itoa(cfg.Calibration[name].Pin)
		pins[name] = &v
		fields = append(fields, huh.NewInput().
			Title(fmt.Sprintf("Pin for %s", name)).
			Description("-1 if the leg is not connected").
			Value(&v).
			Validate(validateInt(motion.NoPin, 253)))
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return err
	}
	for name, v := range pins {
		pin, _ := strconv.Atoi(*v)
		lc := cfg.Calibration[name]
		lc.Pin = pin
		cfg.Calibration[name] = lc
	}
	return cfg.Calibration.Validate()
}

// identifyLegs moves every configured pin in turn and asks which leg moved.
func identifyLegs(cfg *robot.Config) error {
	probe := *cfg
	probe.SpeedLimit = 0
	probe.Calibration = make(robot.Calibration, len(cfg.Calibration))
	for name, lc := range cfg.Calibration {
		lc.Trim = 0
		probe.Calibration[name] = lc
	}

	dog, err := robot.NewDog(&probe, nil)
	if err != nil {
		return err
	}
	defer dog.Close()

	ctx := context.Background()
	if err := dog.Start(ctx); err != nil {
		return err
	}

	assigned := make(robot.Calibration, len(cfg.Calibration))
	for _, name := range robot.AllLimbs() {
		lc := cfg.Calibration[name]
		if lc.Pin == motion.NoPin {
			continue
		}
		l, _ := name.Limb()

		fmt.Printf("\n  Wiggling pin %d...\n", lc.Pin)
		for _, angle := range []int{60, 120, motion.NeutralAngle} {
			dog.Group().MoveSingle(l, angle)
			time.Sleep(600 * time.Millisecond)
		}

		var options []huh.Option[string]
		for _, other := range robot.AllLimbs() {
			if _, taken := assigned[other]; !taken {
				options = append(options, huh.NewOption(string(other), string(other)))
			}
		}
		options = append(options, huh.NewOption("Nothing moved", ""))

		leg := string(name)
		if err := huh.NewSelect[string]().
			Title(fmt.Sprintf("Which leg is on pin %d?", lc.Pin)).
			Description("The leg that just wiggled").
			Options(options...).
			Value(&leg).
			Run(); err != nil {
			return err
		}
		if leg == "" {
			continue
		}
		assigned[robot.LimbName(leg)] = lc
	}

	for _, name := range robot.AllLimbs() {
		lc, ok := assigned[name]
		if !ok {
			lc = robot.LimbCalibration{Pin: motion.NoPin}
		}
		lc.Trim = cfg.Calibration[name].Trim
		cfg.Calibration[name] = lc
	}
	return nil
}

func askTrims(cfg *robot.Config) error {
	trims := make(map[robot.LimbName]*string)
	reversed := make(map[robot.LimbName]*bool)
	var fields []huh.Field
	for _, name := range robot.AllLimbs() {
		lc := cfg.Calibration[name]
		if lc.Pin == motion.NoPin {
			continue
		}
		t := strconv.Itoa(lc.Trim)
		r := lc.Reversed
		trims[name] = &t
		reversed[name] = &r
		fields = append(fields,
			huh.NewInput().
				Title(fmt.Sprintf("Trim for %s (degrees)", name)).
				Value(&t).
				Validate(validateInt(-robot.MaxTrim, robot.MaxTrim)),
			huh.NewConfirm().
				Title(fmt.Sprintf("Is %s mounted reversed?", name)).
				Value(&r),
		)
	}

	speed := strconv.Itoa(cfg.SpeedLimit)
	fields = append(fields,
		huh.NewInput().
			Title("Speed limit (degrees per second)").
			Description("0 disables the limiter").
			Value(&speed).
			Validate(validateInt(0, 10000)),
		huh.NewInput().
			Title("Remote control address").
			Description("For example :7125, empty to disable").
			Value(&cfg.RemoteAddr),
		huh.NewInput().
			Title("Action journal").
			Description("SQLite file, empty to disable").
			Value(&cfg.JournalPath),
		huh.NewConfirm().
			Title("Return home when the queue runs dry?").
			Value(&cfg.HomeOnIdle),
		huh.NewConfirm().
			Title("Release the servos when idle?").
			Value(&cfg.ReleaseOnIdle),
	)

	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return err
	}

	for name, t := range trims {
		lc := cfg.Calibration[name]
		lc.Trim, _ = strconv.Atoi(*t)
		lc.Reversed = *reversed[name]
		cfg.Calibration[name] = lc
	}
	cfg.SpeedLimit, _ = strconv.Atoi(speed)
	return nil
}

func validateInt(lo, hi int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("not a number")
		}
		if n < lo || n > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}
