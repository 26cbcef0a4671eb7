// Command aoed is the ATA-over-Ethernet target daemon. It loads a
// configuration file, brings up the configured network interfaces and
// devices, and serves AoE requests until terminated.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/bysshe/cirrostratus"
	"github.com/bysshe/cirrostratus/internal/logging"
)

const defaultConfigPath = "/etc/cirrostratus/cirrostratus.conf"

func main() {
	configPath := flag.String("c", defaultConfigPath, "path to the configuration file")
	verbose := flag.Bool("v", false, "enable debug logging")
	foreground := flag.Bool("n", false, "log to stderr instead of syslog")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	if *verbose {
		logCfg.Level = logging.LevelDebug
	}
	if !*foreground {
		w, err := logging.SyslogWriter("aoed")
		if err != nil {
			fmt.Fprintf(os.Stderr, "aoed: syslog unavailable, logging to stderr: %v\n", err)
		} else {
			logCfg.Output = w
		}
	}
	logger := logging.NewLogger(logCfg)
	logging.SetDefault(logger)

	srv, err := cirrostratus.NewServer(*configPath, logger)
	if err != nil {
		logger.Errorf("failed to start: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP, syscall.SIGUSR1)

	runErr := make(chan error, 1)
	go func() { runErr <- srv.Run(ctx) }()

	logger.Info("aoed started", "config", *configPath, "pid", os.Getpid())

	runExited := false

loop:
	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("reload requested")
				srv.RequestReload()
			case syscall.SIGUSR1:
				dumpStacks(logger)
			default:
				logger.Info("shutdown signal received", "signal", sig.String())
				break loop
			}
		case err := <-runErr:
			runExited = true
			if err != nil {
				logger.Errorf("server loop exited: %v", err)
			}
			break loop
		}
	}

	// cancel unblocks Run if it is still executing; if it already returned
	// (runExited), this is a no-op since nothing reads ctx.Done() anymore.
	cancel()

	done := make(chan struct{})
	go func() {
		if !runExited {
			<-runErr
		}
		if err := srv.Shutdown(); err != nil {
			logger.Warnf("shutdown: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warnf("shutdown timed out, forcing exit")
	}

	os.Exit(0)
}

// dumpStacks writes every goroutine's stack to stderr and to a timestamped
// file under os.TempDir, for diagnosing a stuck daemon without restarting it.
func dumpStacks(logger *logging.Logger) {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	os.Stderr.Write(buf[:n])

	path := filepath.Join(os.TempDir(), fmt.Sprintf("aoed-goroutines-%d.txt", time.Now().Unix()))
	f, err := os.Create(path)
	if err != nil {
		logger.Warnf("goroutine dump: %v", err)
		return
	}
	defer f.Close()
	pprof.Lookup("goroutine").WriteTo(f, 2)
	logger.Info("goroutine dump written", "path", path)
}
