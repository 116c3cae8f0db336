package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/kingrea/streamsynth/internal/config"
	"github.com/kingrea/streamsynth/internal/logging"
)

// envPrefix is the prefix of environment overrides, e.g.
// STREAMSYNTH_BALANCE_IN_PLACE=false.
const envPrefix = "streamsynth"

// settingKeys maps viper keys onto the flag that may override them.
var settingKeys = map[string]string{
	"pipelining":           "pipelining",
	"balance.in_place":     "in-place",
	"balance.max_sweeps":   "max-sweeps",
	"primepump.max_rounds": "max-rounds",
	"rate_cache.size":      "cache-size",
	"logging.level":        "log-level",
	"logging.file":         "log-file",
	"logging.json":         "log-json",
	"output.dir":           "out",
}

// keepOnZero lists flags whose zero value means "use the configured value".
var keepOnZero = map[string]bool{
	"max-sweeps": true,
	"cache-size": true,
}

// loadSettings reads the project configuration and layers environment
// variables and explicitly set flags over it.
func loadSettings(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	var (
		cfg config.Config
		err error
	)
	if path, _ := flags.GetString("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		dir, _ := flags.GetString("dir")
		cfg, err = config.LoadDir(dir)
	}
	if err != nil {
		return config.Config{}, err
	}

	vip := viper.New()
	vip.SetEnvPrefix(envPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vip.AutomaticEnv()
	vip.SetDefault("pipelining", cfg.Pipelining)
	vip.SetDefault("balance.in_place", cfg.Balance.InPlace)
	vip.SetDefault("balance.max_sweeps", cfg.Balance.MaxSweeps)
	vip.SetDefault("primepump.max_rounds", cfg.PrimePump.MaxRounds)
	vip.SetDefault("rate_cache.size", cfg.RateCache.Size)
	vip.SetDefault("logging.level", cfg.Logging.Level)
	vip.SetDefault("logging.file", cfg.Logging.File)
	vip.SetDefault("logging.json", cfg.Logging.JSON)
	vip.SetDefault("output.dir", cfg.Output.Dir)
	for key, name := range settingKeys {
		if err := bindFlag(vip, flags, key, name); err != nil {
			return config.Config{}, err
		}
	}

	cfg.Pipelining = vip.GetBool("pipelining")
	cfg.Balance.InPlace = vip.GetBool("balance.in_place")
	cfg.Balance.MaxSweeps = vip.GetInt("balance.max_sweeps")
	cfg.PrimePump.MaxRounds = vip.GetInt("primepump.max_rounds")
	cfg.RateCache.Size = vip.GetInt("rate_cache.size")
	cfg.Logging.Level = strings.ToLower(vip.GetString("logging.level"))
	cfg.Logging.File = vip.GetString("logging.file")
	cfg.Logging.JSON = vip.GetBool("logging.json")
	cfg.Output.Dir = vip.GetString("output.dir")
	if err := cfg.Validate(); err != nil {
		return config.Config{}, errors.Wrap(err, "settings")
	}
	return cfg, nil
}

func bindFlag(vip *viper.Viper, flags *pflag.FlagSet, key, name string) error {
	flag := flags.Lookup(name)
	if flag == nil {
		return nil
	}
	if keepOnZero[name] && flag.Value.String() == "0" {
		return nil
	}
	return errors.Wrapf(vip.BindPFlag(key, flag), "bind --%s", name)
}

func newLogger(cmd *cobra.Command, cfg config.Config) (*logging.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		File:   cfg.Logging.File,
		JSON:   cfg.Logging.JSON,
		Output: cmd.ErrOrStderr(),
	})
}

func addSynthFlags(flags *pflag.FlagSet) {
	flags.Bool("pipelining", true, "compute a prime-pump schedule and rotating buffers")
	flags.Bool("in-place", true, "allow buffering inside the producing segment")
	flags.Int("max-sweeps", 0, "bound on balancer input sweeps (0 keeps the configured value)")
	flags.Int("max-rounds", 0, "bound on prime-pump rounds (0 means one per segment)")
	flags.Int("cache-size", 0, "rate info cache entries (0 keeps the configured value)")
}
