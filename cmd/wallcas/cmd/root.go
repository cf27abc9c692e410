package cmd

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/wallcas"
)

var rootCmd = &cobra.Command{
	Use:          "wallcas",
	Short:        "Content store for wall posts",
	Long:         "CLI for storing, resolving, sweeping and replicating wall post content.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/wallcas/config.yaml)")
	flags.String("data-dir", "", "data directory (default: ~/.local/share/wallcas)")
	flags.String("backend", wallcas.BackendBadger, "durable backend: badger, local or memory")
	flags.Bool("compression", true, "compress stored bodies with zstd")
	flags.Duration("lookup-timeout", wallcas.DefaultLookupTimeout, "per-address timeout for batch lookups")
	flags.Int("concurrency", wallcas.DefaultConcurrency, "parallel lookups and layer transfers")
	flags.String("remote", "", "OCI reference for push/pull (e.g. ghcr.io/org/wall-content:main)")
	flags.String("log-level", "warn", "log level")

	viper.BindPFlag("data_dir", flags.Lookup("data-dir"))
	viper.BindPFlag("backend", flags.Lookup("backend"))
	viper.BindPFlag("compression", flags.Lookup("compression"))
	viper.BindPFlag("lookup_timeout", flags.Lookup("lookup-timeout"))
	viper.BindPFlag("concurrency", flags.Lookup("concurrency"))
	viper.BindPFlag("remote", flags.Lookup("remote"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("WALLCAS")
	viper.AutomaticEnv()
	viper.SetDefault("data_dir", defaultDataDir())
	viper.SetDefault("retention", wallcas.DefaultRetention)

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "wallcas")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "wallcas")
	}
	return ".wallcas"
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "wallcas")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "wallcas")
	}
	return ".wallcas"
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		log.WithError(err).Warn("unknown log level, using warn")
		level = logrus.WarnLevel
	}
	log.SetLevel(level)
	return log
}

// openStore opens the store described by flags, config and environment.
func openStore(extra ...wallcas.Option) (*wallcas.Store, error) {
	opts := []wallcas.Option{
		wallcas.WithDataDir(viper.GetString("data_dir")),
		wallcas.WithBackend(viper.GetString("backend")),
		wallcas.WithCompression(viper.GetBool("compression"), 2),
		wallcas.WithLookupTimeout(viper.GetDuration("lookup_timeout")),
		wallcas.WithConcurrency(viper.GetInt("concurrency")),
		wallcas.WithLogger(newLogger()),
	}
	if ref := viper.GetString("remote"); ref != "" {
		opts = append(opts, wallcas.WithRemote(ref))
	}
	if user := viper.GetString("registry_username"); user != "" {
		opts = append(opts, wallcas.WithBasicAuth(user, viper.GetString("registry_password")))
	}
	return wallcas.Open(append(opts, extra...)...)
}
