// Command aoectl is the control-plane client for aoed. It talks to the
// daemon's control socket to reload configuration, dump statistics, and
// inspect or clear per-device configuration, MAC masks, and reservations.
package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/bysshe/cirrostratus/internal/config"
	"github.com/bysshe/cirrostratus/internal/ctrl"
)

const defaultInterval = 1 * time.Second

func socketPath(c *cli.Context) string {
	cfgPath := c.GlobalString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return "/var/run/cirrostratus.ctl"
	}
	return cfg.Defaults.ControlSocket
}

func dial(c *cli.Context) (*ctrl.Client, error) {
	return ctrl.Dial(socketPath(c))
}

func reloadCommand(c *cli.Context) error {
	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()
	return cl.Reload()
}

func printStatBlocks(label string, blocks []ctrl.StatBlock, names []string) {
	for _, b := range blocks {
		if len(names) > 0 && !contains(names, b.Name) {
			continue
		}
		fmt.Printf("# %s statistics for %s\n", label, b.Name)
		keys := make([]string, 0, len(b.Counters))
		for k := range b.Counters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%s: %d\n", k, b.Counters[k])
		}
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func statsCommand(c *cli.Context) error {
	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	reply, err := cl.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("uptime: %ds\n", reply.UptimeSeconds)
	names := c.Args()
	printStatBlocks("device", reply.Devices, names)
	printStatBlocks("interface", reply.Interfaces, names)
	return nil
}

func monitorCommand(c *cli.Context) error {
	interval := defaultInterval
	args := []string(c.Args())
	if len(args) > 0 {
		if secs, err := strconv.ParseFloat(args[0], 64); err == nil {
			interval = time.Duration(secs * float64(time.Second))
			args = args[1:]
		}
	}

	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	for {
		reply, err := cl.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("--- uptime: %ds ---\n", reply.UptimeSeconds)
		printStatBlocks("device", reply.Devices, args)
		printStatBlocks("interface", reply.Interfaces, args)
		fmt.Println()
		time.Sleep(interval)
	}
}

func showConfigCommand(c *cli.Context) error {
	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	reply, err := cl.ShowConfig(c.Args())
	if err != nil {
		return err
	}
	names := make([]string, 0, len(reply.Devices))
	for name := range reply.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: %s\n", name, reply.Devices[name])
	}
	return nil
}

func dumpMACList(reply ctrl.MACListReply) {
	names := make([]string, 0, len(reply.Devices))
	for name := range reply.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		macs := make([]string, 0, len(reply.Devices[name]))
		for _, m := range reply.Devices[name] {
			macs = append(macs, m.String())
		}
		fmt.Printf("%s: %s\n", name, strings.Join(macs, ", "))
	}
}

func showMACMaskCommand(c *cli.Context) error {
	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()
	reply, err := cl.ShowMACMask(c.Args())
	if err != nil {
		return err
	}
	dumpMACList(reply)
	return nil
}

func showReserveCommand(c *cli.Context) error {
	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()
	reply, err := cl.ShowReserve(c.Args())
	if err != nil {
		return err
	}
	dumpMACList(reply)
	return nil
}

func requireNames(c *cli.Context) ([]string, error) {
	names := []string(c.Args())
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one device name is required")
	}
	return names, nil
}

func clearStatsCommand(c *cli.Context) error {
	names, err := requireNames(c)
	if err != nil {
		return err
	}
	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()
	return cl.ClearStats(names)
}

func clearConfigCommand(c *cli.Context) error {
	names, err := requireNames(c)
	if err != nil {
		return err
	}
	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()
	return cl.ClearConfig(names)
}

func clearMACMaskCommand(c *cli.Context) error {
	names, err := requireNames(c)
	if err != nil {
		return err
	}
	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()
	return cl.ClearMACMask(names)
}

func clearReserveCommand(c *cli.Context) error {
	names, err := requireNames(c)
	if err != nil {
		return err
	}
	cl, err := dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()
	return cl.ClearReserve(names)
}

func main() {
	app := cli.NewApp()
	app.Name = "aoectl"
	app.Usage = "control the cirrostratus ATA-over-Ethernet target daemon"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "/etc/cirrostratus/cirrostratus.conf",
			Usage: "path to the configuration file, read only for its control-socket setting",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "reload",
			Usage:  "reload the configuration file",
			Action: reloadCommand,
		},
		{
			Name:      "monitor",
			Usage:     "continuously dump device/interface statistics",
			ArgsUsage: "[interval] [name...]",
			Action:    monitorCommand,
		},
		{
			Name:      "stats",
			Usage:     "dump device/interface statistics once",
			ArgsUsage: "[name...]",
			Action:    statsCommand,
		},
		{
			Name:      "show-config",
			Usage:     "show the AoE CONFIG string for one or more devices",
			ArgsUsage: "[name...]",
			Action:    showConfigCommand,
		},
		{
			Name:      "show-macmask",
			Usage:     "show the MAC mask list for one or more devices",
			ArgsUsage: "[name...]",
			Action:    showMACMaskCommand,
		},
		{
			Name:      "show-reserve",
			Usage:     "show the reserve/release MAC list for one or more devices",
			ArgsUsage: "[name...]",
			Action:    showReserveCommand,
		},
		{
			Name:      "clear-stats",
			Usage:     "clear device/interface statistics",
			ArgsUsage: "name [name...]",
			Action:    clearStatsCommand,
		},
		{
			Name:      "clear-config",
			Usage:     "clear the AoE CONFIG string",
			ArgsUsage: "name [name...]",
			Action:    clearConfigCommand,
		},
		{
			Name:      "clear-macmask",
			Usage:     "clear the MAC mask list",
			ArgsUsage: "name [name...]",
			Action:    clearMACMaskCommand,
		},
		{
			Name:      "clear-reserve",
			Usage:     "clear the reserve/release MAC list",
			ArgsUsage: "name [name...]",
			Action:    clearReserveCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "aoectl: %v\n", err)
		os.Exit(1)
	}
}
