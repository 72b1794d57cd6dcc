package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/FishyDanny/simple-file-sharing-server/peer"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/discovery"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/metrics"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/stop"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
)

// trackerAddr resolves the tracker address from the arguments, or over mDNS
// when discovery is enabled and no arguments were given.
func trackerAddr(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 2 {
		if _, err := sharing.ParsePort(args[1]); err != nil {
			return "", errors.New("invalid tracker port: " + args[1])
		}
		return net.JoinHostPort(args[0], args[1]), nil
	}

	discover, err := cmd.Flags().GetBool("discover")
	if err != nil {
		return "", err
	}
	if !discover {
		return "", errors.New("usage: peer TRACKER_HOST TRACKER_PORT, or --discover")
	}

	timeout, err := cmd.Flags().GetDuration("discover-timeout")
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return discovery.Lookup(ctx)
}

// RootRunCmdFunc implements a Cobra command that runs an interactive peer.
func RootRunCmdFunc(cmd *cobra.Command, args []string) error {
	addr, err := trackerAddr(cmd, args)
	if err != nil {
		return err
	}

	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return err
	}

	metricsAddr, err := cmd.Flags().GetString("metrics-addr")
	if err != nil {
		return err
	}

	sg := stop.NewGroup()
	shutdown := func() {
		if errs := sg.Stop().Wait(); len(errs) != 0 {
			log.Error("failed while shutting down", log.Fields{"errors": errs})
		}
	}
	defer shutdown()

	if metricsAddr != "" {
		srv, err := metrics.NewServer(metricsAddr, nil)
		if err != nil {
			return err
		}
		sg.Add(srv)
	}

	client, err := peer.Dial(context.Background(), addr)
	if err != nil {
		return err
	}
	sg.Add(client)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	var once sync.Once
	sg.AddFunc(func() stop.Result {
		once.Do(func() {
			signal.Stop(quit)
			close(done)
		})
		return stop.AlreadyStopped
	})
	go func() {
		select {
		case <-quit:
			log.Info("shutting down")
			shutdown()
			os.Exit(0)
		case <-done:
		}
	}()

	log.Debug("connected to tracker", log.Fields{"addr": addr, "dir": dir})
	return peer.NewConsole(client, dir, cmd.InOrStdin(), cmd.OutOrStdout()).Run(context.Background())
}

// RootPreRunCmdFunc handles command line flags for the Run command.
func RootPreRunCmdFunc(cmd *cobra.Command, args []string) error {
	jsonLog, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	if jsonLog {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	debugLog, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return err
	}
	log.SetDebug(debugLog)

	// Console output goes to stdout.
	log.SetOutput(os.Stderr)
	return nil
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "peer [tracker_host tracker_port]",
		Short:             "File sharing peer",
		Long:              "An interactive client that publishes, finds and exchanges files through a tracker",
		Args:              cobra.RangeArgs(0, 2),
		PersistentPreRunE: RootPreRunCmdFunc,
		RunE:              RootRunCmdFunc,
		SilenceUsage:      true,
	}

	rootCmd.Flags().String("dir", ".", "directory files are shared from and downloaded to")
	rootCmd.Flags().Bool("discover", false, "find the tracker over mDNS")
	rootCmd.Flags().Duration("discover-timeout", 5*time.Second, "how long to browse for a tracker")
	rootCmd.Flags().String("metrics-addr", "", "address to serve metrics and pprof on")
	rootCmd.Flags().Bool("debug", false, "enable debug logging")
	rootCmd.Flags().Bool("json", false, "enable json logging")

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal("failed when executing root cobra command: " + err.Error())
	}
}
