package main

import (
	"errors"
	"io/ioutil"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/FishyDanny/simple-file-sharing-server/frontend/tcp"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/credential"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/discovery"
	"github.com/FishyDanny/simple-file-sharing-server/pkg/log"
	"github.com/FishyDanny/simple-file-sharing-server/storage/memory"
)

// DefaultCredentialsPath is read when no credential source is configured.
const DefaultCredentialsPath = "credentials.txt"

type storageConfig struct {
	Name   string      `yaml:"name"`
	Config interface{} `yaml:"config"`
}

// Config represents the configuration used for executing the tracker.
type Config struct {
	tcp.Config  `yaml:",inline"`
	MetricsAddr string            `yaml:"metrics_addr"`
	Credentials credential.Config `yaml:"credentials"`
	Storage     storageConfig     `yaml:"storage"`
	MDNS        discovery.Config  `yaml:"mdns"`
}

// LogFields renders the current config as a set of Logrus fields.
func (cfg Config) LogFields() log.Fields {
	return log.Fields{
		"addr":           cfg.Addr,
		"maxConnections": cfg.MaxConnections,
		"metricsAddr":    cfg.MetricsAddr,
		"credentials":    cfg.Credentials.LogFields(),
		"storage":        cfg.Storage.Name,
		"mdns":           cfg.MDNS.LogFields(),
	}
}

// Validate returns a copy of cfg with defaults filled in for the parts that
// are not validated by their own packages.
func (cfg Config) Validate() Config {
	validcfg := cfg

	if cfg.Credentials.Path == "" && cfg.Credentials.RedisAddr == "" {
		validcfg.Credentials.Path = DefaultCredentialsPath
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "Credentials.Path",
			"provided": cfg.Credentials.Path,
			"default":  validcfg.Credentials.Path,
		})
	}

	if cfg.Storage.Name == "" {
		validcfg.Storage.Name = memory.Name
		log.Warn("falling back to default configuration", log.Fields{
			"name":     "Storage.Name",
			"provided": cfg.Storage.Name,
			"default":  validcfg.Storage.Name,
		})
	}

	return validcfg
}

// WithPort returns a copy of cfg listening on port, keeping the configured
// host.
func (cfg Config) WithPort(port string) (Config, error) {
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return cfg, errors.New("invalid port: " + port)
	}

	host := ""
	if cfg.Addr != "" {
		h, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			return cfg, err
		}
		host = h
	}

	cfg.Addr = net.JoinHostPort(host, port)
	return cfg, nil
}

// ConfigFile represents a namespaced YAML configation file.
type ConfigFile struct {
	Tracker Config `yaml:"tracker"`
}

// ParseConfigFile returns a new ConfigFile given the path to a YAML
// configuration file.
//
// It supports relative and absolute paths and environment variables.
func ParseConfigFile(path string) (*ConfigFile, error) {
	if path == "" {
		return nil, errors.New("no config path specified")
	}

	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	contents, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var cfgFile ConfigFile
	err = yaml.Unmarshal(contents, &cfgFile)
	if err != nil {
		return nil, err
	}

	return &cfgFile, nil
}
