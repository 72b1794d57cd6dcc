package main

import (
	"errors"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/FishyDanny/simple-file-sharing-server/frontend/tcp"
	"github.com/FishyDanny/simple-file-sharing-server/middleware"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/credential"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/discovery"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/metrics"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/stop"
	"github.com/FishyDanny/simple-file-sharing-server/sharing"
	"github.com/FishyDanny/simple-file-sharing-server/storage"

	// Imports to register storage drivers.
	_ "github.com/FishyDanny/simple-file-sharing-server/storage/memory"
)

// Run represents the state of a running instance of the tracker.
type Run struct {
	cfg   Config
	logic *middleware.Logic
	sg    *stop.Group
	addr  net.Addr
}

// NewRun starts a tracker from cfg.
func NewRun(cfg Config) (*Run, error) {
	r := &Run{cfg: cfg.Validate()}
	return r, r.Start()
}

// Start begins serving the control protocol and the optional metrics server
// and mDNS announcement.
func (r *Run) Start() error {
	log.Info("starting tracker", r.cfg)

	creds, err := credential.Load(r.cfg.Credentials)
	if err != nil {
		return errors.New("failed to load credentials: " + err.Error())
	}

	store, err := storage.NewStore(r.cfg.Storage.Name, r.cfg.Storage.Config, creds)
	if err != nil {
		return errors.New("failed to create storage: " + err.Error())
	}
	r.logic = middleware.NewLogic(store)
	r.sg = stop.NewGroup()

	fe, err := tcp.NewFrontend(r.logic, r.cfg.Config)
	if err != nil {
		r.logic.Stop().Wait()
		return errors.New("failed to listen: " + err.Error())
	}
	r.sg.Add(fe)
	r.addr = fe.Addr()
	log.Info("started serving control connections", log.Fields{"addr": fe.Addr().String()})

	if r.cfg.MetricsAddr != "" {
		srv, err := metrics.NewServer(r.cfg.MetricsAddr, store)
		if err != nil {
			log.Error("failed to start metrics server", log.Err(err))
		} else {
			r.sg.Add(srv)
		}
	}

	if mdns := r.cfg.MDNS.Validate(); mdns.Enabled {
		_, port, err := sharing.SplitHostPort(fe.Addr())
		if err == nil {
			var adv *discovery.Advertiser
			adv, err = discovery.Advertise(mdns.Instance, port)
			if err == nil {
				r.sg.Add(adv)
			}
		}
		if err != nil {
			log.Error("failed to advertise over mDNS", log.Err(err))
		}
	}

	return nil
}

// Addr returns the address control connections are accepted on.
func (r *Run) Addr() net.Addr { return r.addr }

func combineErrors(prefix string, errs []error) error {
	errStrs := make([]string, 0, len(errs))
	for _, err := range errs {
		errStrs = append(errStrs, err.Error())
	}

	return errors.New(prefix + ": " + strings.Join(errStrs, "; "))
}

// Stop shuts down the listeners first and the store last, so every open
// connection is cleaned up against a live store.
func (r *Run) Stop() error {
	log.Debug("stopping frontends and servers")
	if errs := r.sg.Stop().Wait(); len(errs) != 0 {
		return combineErrors("failed while shutting down frontends", errs)
	}

	log.Debug("stopping logic")
	if errs := r.logic.Stop().Wait(); len(errs) != 0 {
		return combineErrors("failed while shutting down store", errs)
	}

	return nil
}

// RootRunCmdFunc implements a Cobra command that runs the tracker and handles
// signals.
func RootRunCmdFunc(cmd *cobra.Command, args []string) error {
	configFilePath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	var cfg Config
	if configFilePath != "" {
		configFile, err := ParseConfigFile(configFilePath)
		if err != nil {
			return errors.New("failed to read config: " + err.Error())
		}
		cfg = configFile.Tracker
	}

	if len(args) == 1 {
		if cfg, err = cfg.WithPort(args[0]); err != nil {
			return err
		}
	}

	r, err := NewRun(cfg)
	if err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	return r.Stop()
}

// RootPreRunCmdFunc handles command line flags for the Run command.
func RootPreRunCmdFunc(cmd *cobra.Command, args []string) error {
	noColors, err := cmd.Flags().GetBool("nocolors")
	if err != nil {
		return err
	}
	if noColors {
		log.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	}

	jsonLog, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	if jsonLog {
		log.SetFormatter(&logrus.JSONFormatter{})
		log.Info("enabled JSON logging")
	}

	debugLog, err := cmd.Flags().GetBool("debug")
	if err != nil {
		return err
	}
	if debugLog {
		log.SetDebug(true)
		log.Info("enabled debug logging")
	}

	return nil
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "tracker [port]",
		Short:             "File sharing tracker",
		Long:              "A rendezvous server that lets peers publish, find and exchange files directly",
		Args:              cobra.MaximumNArgs(1),
		PersistentPreRunE: RootPreRunCmdFunc,
		RunE:              RootRunCmdFunc,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("json", false, "enable json logging")
	rootCmd.PersistentFlags().Bool("nocolors", false, "disable log coloring")

	rootCmd.Flags().String("config", "", "location of configuration file")

	e2eCmd := &cobra.Command{
		Use:   "e2e",
		Short: "exec e2e tests",
		Long:  "Execute the end-to-end test suite against a running tracker",
		RunE:  EndToEndRunCmdFunc,
	}

	e2eCmd.Flags().String("addr", "127.0.0.1:12000", "address of the tracker under test")
	e2eCmd.Flags().StringSlice("user", []string{"alice:alice-pw", "bob:bob-pw"}, "two username:password pairs to log in with")
	e2eCmd.Flags().Duration("delay", 0, "delay between publishing and searching")

	rootCmd.AddCommand(e2eCmd)

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal("failed when executing root cobra command: " + err.Error())
	}
}
