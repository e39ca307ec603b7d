package main

import (
	"fmt"
	"io/ioutil"

	"github.com/asdine/storm"
	"gopkg.in/yaml.v2"

	"cannode/canbus"
)

// EnvConfig holds everything taken from the process environment plus
// handles shared across the main package.
type EnvConfig struct {
	JWT_ISSUER string `env:"CANNODE_ISSUER" envDefault:"DEV"`
	JWT_SECRET string `env:"CANNODE_SECRET" envDefault:""`
	DEBUG      bool   `env:"DEBUG" envDefault:"0"`
	DBPATH     string `env:"CANNODE_DB" envDefault:"./tmp/cannode.db"`
	DB         *storm.DB
}

// NodeConfig is the yaml file configuration for the reader node.
type NodeConfig struct {
	Version        int    `yaml:"version"`
	Datarate       string `yaml:"datarate"`
	AllowVirtual   bool   `yaml:"allow_virtual"`
	SetupDevice    bool   `yaml:"setup_device"`
	Journal        bool   `yaml:"journal"`
	Listen         string `yaml:"listen"`
	RequireVersion string `yaml:"require_version"`
	VersionID      uint32 `yaml:"version_id"`
}

func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		Version:      1,
		Datarate:     "500K",
		AllowVirtual: true,
		Journal:      true,
		Listen:       "0.0.0.0:8338",
		VersionID:    0x700,
	}
}

// LoadNodeConfig reads a yaml file over the defaults.
func LoadNodeConfig(filename string) (*NodeConfig, error) {
	config := DefaultNodeConfig()

	yamlFile, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to read yaml file: %v", err)
	}
	if err = yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, fmt.Errorf("unable to unmarshal yaml: %v", err)
	}

	return config, nil
}

var datarates = map[string]canbus.Datarate{
	"125K": canbus.Datarate125K,
	"250K": canbus.Datarate250K,
	"500K": canbus.Datarate500K,
	"1M":   canbus.Datarate1M,
}

func (c *NodeConfig) ParseDatarate() (canbus.Datarate, error) {
	rate, ok := datarates[c.Datarate]
	if !ok {
		return 0, fmt.Errorf("unknown datarate %q (want one of 125K, 250K, 500K, 1M)", c.Datarate)
	}
	return rate, nil
}

func (c *NodeConfig) OpenFlags() (flags canbus.OpenFlag) {
	if c.AllowVirtual {
		flags |= canbus.OpenAllowVirtual
	}
	if c.SetupDevice {
		flags |= canbus.OpenConfigureDevice
	}
	return flags
}
