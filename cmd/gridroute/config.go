package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/notargets/gridrouter/grid"
	"github.com/notargets/gridrouter/partitions"
	"github.com/notargets/gridrouter/router"
	"gopkg.in/yaml.v3"
)

// RunConfig is the YAML description of one routing run
type RunConfig struct {
	Grid      grid.Dims       `yaml:"grid"`
	Ranks     int             `yaml:"ranks"`
	Partition PartitionConfig `yaml:"partition"`

	Stencil     string   `yaml:"stencil"`
	Margin      *float64 `yaml:"margin"` // nil selects router.DefaultMargin
	Epsilon     float64  `yaml:"epsilon"`
	Consistency string   `yaml:"consistency"`

	HaloIterations int    `yaml:"halo_iterations"`
	OutputDir      string `yaml:"output_dir"` // Per-rank routing tables as JSON
	Verbose        bool   `yaml:"verbose"`
}

// PartitionConfig selects the stand-in partitioner
type PartitionConfig struct {
	Strategy string `yaml:"strategy"`
	Seed     uint64 `yaml:"seed"`
	Shuffle  bool   `yaml:"shuffle"`
}

// DefaultRunConfig is used when no config file is given
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Grid:           grid.Dims{Nx: 16, Ny: 16, Nz: 16},
		Ranks:          8,
		Partition:      PartitionConfig{Strategy: "slab"},
		Stencil:        "face6",
		Consistency:    "fatal",
		HaloIterations: 1,
	}
}

// LoadRunConfig overlays the YAML file at path onto the defaults
func LoadRunConfig(path string) (RunConfig, error) {
	cfg := DefaultRunConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Builder returns the partitioner described by the config
func (rc RunConfig) Builder() (*partitions.PartitionBuilder, error) {
	strategy, err := partitions.ParseStrategy(rc.Partition.Strategy)
	if err != nil {
		return nil, err
	}
	return &partitions.PartitionBuilder{
		Dims:          rc.Grid,
		NumPartitions: rc.Ranks,
		Strategy:      strategy,
		Seed:          rc.Partition.Seed,
		ShuffleOwned:  rc.Partition.Shuffle,
	}, nil
}

// RouterConfig returns the router settings described by the config
func (rc RunConfig) RouterConfig() (router.Config, error) {
	cfg := router.DefaultConfig()
	stencil, err := grid.StencilByName(rc.Stencil)
	if err != nil {
		return cfg, err
	}
	cfg.Stencil = stencil
	if rc.Margin != nil {
		cfg.Margin = *rc.Margin
	}
	if rc.Epsilon != 0 {
		cfg.Epsilon = rc.Epsilon
	}
	if cfg.Consistency, err = router.ParseSeverity(rc.Consistency); err != nil {
		return cfg, err
	}
	cfg.Verbose = rc.Verbose
	return cfg, nil
}
