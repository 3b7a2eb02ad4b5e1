package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/multierr"

	"github.com/user/blue-att/logger"
	"github.com/user/blue-att/util"
	"github.com/user/blue-att/wire/att"
	"github.com/user/blue-att/wire/debug"
	"github.com/user/blue-att/wire/gatt"
	"github.com/user/blue-att/wire/l2cap"
)

func main() {
	app := cli.NewApp()

	app.Name = "attd"
	app.Usage = "Serve a GATT attribute database over ATT"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "db",
			Usage:  "YAML service table (default: Generic Access + Battery)",
			EnvVar: "ATTD_DB",
		},
		cli.StringFlag{
			Name:  "name",
			Value: "blue-att",
			Usage: "device name of the default database and the debug log directory",
		},
		cli.StringFlag{
			Name:  "socket",
			Usage: "unix socket carrying L2CAP basic frames (default: <data dir>/sockets/attd.sock)",
		},
		cli.StringFlag{
			Name:  "hci",
			Usage: "serve a local adapter instead of a socket: its address, or \"any\"",
		},
		cli.IntFlag{
			Name:  "max-mtu",
			Value: att.MaxMTU,
			Usage: "largest MTU offered in an MTU exchange",
		},
		cli.IntFlag{
			Name:  "prepare-queue",
			Value: att.DefaultPrepareQueueLimit,
			Usage: "prepared writes held per connection",
		},
		cli.StringFlag{
			Name:   "log-level",
			Value:  "info",
			Usage:  "trace, debug, info, warn or error",
			EnvVar: "ATTD_LOG_LEVEL",
		},
		cli.BoolFlag{
			Name:  "debug-log",
			Usage: "write rx/tx packets as JSONL under the data directory",
		},
		cli.DurationFlag{
			Name:  "battery-interval",
			Value: 0,
			Usage: "publish a simulated battery level at this interval (0 disables)",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "attd: %v\n", err)
		os.Exit(1)
	}
}

// loadDatabase reads the --db table or builds the default one.
func loadDatabase(path, name string) (*gatt.AttributeDatabase, []*gatt.ServiceHandleInfo, error) {
	if path == "" {
		db, infos := gatt.BuildAttributeDatabase([]gatt.Service{
			gatt.NewGenericAccessService(name, 0),
			gatt.NewBatteryService(100),
		})
		return db, infos, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open database")
	}
	defer f.Close()
	return gatt.LoadDatabase(f)
}

func run(c *cli.Context) (err error) {
	logger.SetLevel(logger.ParseLevel(c.String("log-level")))
	defer logger.Sync()

	db, infos, err := loadDatabase(c.String("db"), c.String("name"))
	if err != nil {
		return err
	}
	logger.Info("attd", "📋 %d services, %d attributes", len(infos), db.Count())
	logger.DebugJSON("attd", "Service handles", infos)

	dbg := debug.NewDebugLogger(c.String("name"), c.Bool("debug-log"))
	if c.Bool("debug-log") {
		logger.Info("attd", "📝 Debug logs in %s", dbg.Dir())
	}

	d := newDaemon(db, dbg,
		att.WithMaxMTU(c.Int("max-mtu")),
		att.WithPrepareQueueLimit(c.Int("prepare-queue")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if interval := c.Duration("battery-interval"); interval > 0 {
		h, ok := findBatteryLevel(infos)
		if !ok {
			return errors.New("--battery-interval needs a Battery Level characteristic")
		}
		go d.runBattery(ctx, h, interval)
	}

	var (
		closer   func() error
		acceptFn func() error
	)
	if hci := c.String("hci"); hci != "" {
		addr := hci
		if addr == "any" {
			addr = ""
		}
		l, err := l2cap.ListenLE(addr, "L2CAP", dbg)
		if err != nil {
			return err
		}
		logger.Info("attd", "📡 Serving ATT on adapter %s", hci)
		closer = l.Close
		acceptFn = func() error { return d.acceptLE(ctx, l) }
	} else {
		path, err := socketPath(c.String("socket"))
		if err != nil {
			return err
		}
		os.Remove(path)
		l, err := net.Listen("unix", path)
		if err != nil {
			return errors.Wrap(err, "listen")
		}
		logger.Info("attd", "🔌 Serving ATT on %s", path)
		closer = func() error {
			return multierr.Append(l.Close(), ignoreNotExist(os.Remove(path)))
		}
		acceptFn = func() error { return d.acceptStreams(ctx, l) }
	}

	acceptErr := make(chan error, 1)
	go func() { acceptErr <- acceptFn() }()

	select {
	case <-ctx.Done():
		logger.Info("attd", "🛑 Shutting down")
		err = closer()
		err = multierr.Append(err, <-acceptErr)
	case aerr := <-acceptErr:
		err = multierr.Append(aerr, closer())
	}
	start := time.Now()
	err = multierr.Append(err, d.closeAll())
	logger.Debug("attd", "closed all connections in %v", time.Since(start))
	return err
}

func socketPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	dir, err := util.GetSocketDir()
	if err != nil {
		return "", errors.Wrap(err, "socket directory")
	}
	return filepath.Join(dir, "attd.sock"), nil
}

func ignoreNotExist(err error) error {
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
