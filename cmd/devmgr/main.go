package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/tcfw/kernel/services/go/devmgr"
	"github.com/tcfw/kernel/services/go/devmgr/config"
	"github.com/tcfw/kernel/services/go/devmgr/devices"
	"github.com/tcfw/kernel/services/go/devmgr/drivers"
	"github.com/tcfw/kernel/services/go/devmgr/drivers/dl"
	"github.com/tcfw/kernel/services/go/devmgr/internal/log"
	"github.com/tcfw/kernel/services/go/devmgr/probe"
	"github.com/tcfw/kernel/services/go/devmgr/topology"

	_ "github.com/tcfw/kernel/services/go/devmgr/drivers/loop"
	_ "github.com/tcfw/kernel/services/go/devmgr/drivers/ramdisk"
)

// newProber uses the static description when one is given and the live
// system otherwise.
func newProber(ctx *cli.Context) (topology.Prober, error) {
	var namer *probe.PCINamer
	if path := ctx.String("pci-ids"); path != "" {
		n, err := probe.LoadPCINamer(path)
		if err != nil {
			return nil, err
		}
		namer = n
	}

	if path := ctx.String("topology"); path != "" {
		p, err := probe.LoadStatic(path)
		if err != nil {
			return nil, err
		}
		if namer != nil {
			p.Namer = namer
		}
		return p, nil
	}

	p := probe.NewSysfs(ctx.String("sysfs-root"), nil)
	if namer != nil {
		p.DB = namer.DB()
	}

	return p, nil
}

func newManager(ctx *cli.Context) (*devmgr.Manager, func(), error) {
	var cfg *config.Config
	if path := ctx.String("config"); path != "" {
		c, err := config.Load(path)
		if err != nil {
			return nil, nil, err
		}
		cfg = c
	}

	prober, err := newProber(ctx)
	if err != nil {
		return nil, nil, err
	}

	var loader drivers.Loader = drivers.Builtin()
	cleanup := func() {}
	if dir := ctx.String("modules"); dir != "" {
		native := dl.NewLoader(dir)
		loader = drivers.Chain(loader, native)
		cleanup = func() {
			if err := native.Close(); err != nil {
				log.WithError(err).Warn("closing native modules")
			}
		}
	}

	m := devmgr.New(devmgr.Options{
		Config:     cfg,
		Prober:     prober,
		Loader:     loader,
		MaxDevices: ctx.Int("max-devices"),
	})

	return m, cleanup, nil
}

func topologyAction(ctx *cli.Context) error {
	m, cleanup, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := m.Enumerate(); err != nil {
		log.WithError(err).Warn("hardware enumeration incomplete")
	}

	m.Topology().Dump(ctx.App.Writer)

	return nil
}

func bootAction(ctx *cli.Context) error {
	m, cleanup, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := m.Boot(); err != nil {
		return err
	}

	w := ctx.App.Writer
	if ctx.Bool("tree") {
		m.Topology().Dump(w)
		fmt.Fprintln(w)
	}

	printBindings(w, m)
	printDevices(w, m.Devices())

	return nil
}

func printBindings(w io.Writer, m *devmgr.Manager) {
	for _, b := range m.Bindings() {
		fmt.Fprintf(w, "binding %s\n", b)
	}
}

func printDevices(w io.Writer, devs *devices.Registry) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "DEVNO\tNAME\tDRIVER\tUNIT")
	for _, dev := range devs.Devices() {
		unit := "-"
		if dev.Unit != nil {
			unit = dev.Unit.String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", dev.No, dev.Name, dev.Driver.DriverName(), unit)
	}
}

func modulesAction(ctx *cli.Context) error {
	for _, name := range drivers.Builtin().Names() {
		fmt.Fprintln(ctx.App.Writer, name)
	}

	return nil
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "devmgr"
	app.Usage = "enumerate hardware, bind and install device drivers"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "policy file with bindings and drivers sections",
			EnvVars: []string{"DEVMGR_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "topology",
			Usage:   "static machine description to enumerate instead of the live system",
			EnvVars: []string{"DEVMGR_TOPOLOGY"},
		},
		&cli.StringFlag{
			Name:    "sysfs-root",
			Value:   "/",
			Usage:   "root the sysfs tree is read under",
			EnvVars: []string{"DEVMGR_SYSFS_ROOT"},
		},
		&cli.StringFlag{
			Name:    "modules",
			Usage:   "directory of native driver modules",
			EnvVars: []string{"DEVMGR_MODULES"},
		},
		&cli.IntFlag{
			Name:    "max-devices",
			Value:   devices.MaxDevices,
			Usage:   "device table capacity",
			EnvVars: []string{"DEVMGR_MAX_DEVICES"},
		},
		&cli.StringFlag{
			Name:    "pci-ids",
			Usage:   "pci.ids database used to name units",
			EnvVars: []string{"DEVMGR_PCI_IDS"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "debug, info, warn or error",
			EnvVars: []string{"DEVMGR_LOG_LEVEL"},
		},
	}
	app.Before = func(ctx *cli.Context) error {
		log.SetLevel(ctx.String("log-level"))
		return nil
	}
	app.Commands = []*cli.Command{
		{
			Name:   "topology",
			Usage:  "enumerate and print the hardware tree",
			Action: topologyAction,
		},
		{
			Name:  "boot",
			Usage: "enumerate, install drivers and print the device table",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "tree",
					Usage: "also print the hardware tree",
				},
			},
			Action: bootAction,
		},
		{
			Name:   "modules",
			Usage:  "list the built in driver modules",
			Action: modulesAction,
		},
	}
	app.DefaultCommand = "boot"

	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "devmgr error %v\n", err)
		os.Exit(1)
	}
}
