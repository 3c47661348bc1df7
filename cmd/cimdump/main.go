// Command cimdump is a read-only inspector for a WMI CIM repository
// directory: it lists every index key or prints a single object
// record's data type and size.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cimrepo/cimrepo/conf"
	"github.com/cimrepo/cimrepo/internal/cim/repository"
	"github.com/cimrepo/cimrepo/logger"
)

var (
	cfgFile          string
	cacheSize        int
	preferGeneration bool
	logLevel         string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cimdump",
		Short: "Inspect a WMI CIM repository directory",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to an INI config file")
	root.PersistentFlags().IntVar(&cacheSize, "cache-size", 0, "decoded page cache size (0 disables caching)")
	root.PersistentFlags().BoolVar(&preferGeneration, "prefer-generation-selector", false, "prefer Mapping.ver/Mapping<N>.map over bare Index.map/Objects.map")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("cache_size", root.PersistentFlags().Lookup("cache-size"))
	viper.BindPFlag("prefer_generation_selector", root.PersistentFlags().Lookup("prefer-generation-selector"))
	viper.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	viper.SetEnvPrefix("CIMDUMP")
	viper.AutomaticEnv()

	root.AddCommand(newKeysCmd(), newGetCmd())
	return root
}

func loadConfig() *conf.Cfg {
	cfg, err := conf.NewCfg().Load(&conf.CommandLineArgs{ConfigPath: cfgFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if viper.IsSet("cache_size") {
		cfg.CacheSize = viper.GetInt("cache_size")
	}
	if viper.IsSet("prefer_generation_selector") {
		cfg.PreferGenerationSelector = viper.GetBool("prefer_generation_selector")
	}
	if viper.IsSet("log_level") && viper.GetString("log_level") != "" {
		cfg.LogLevel = viper.GetString("log_level")
	}
	logger.Init(logger.Config{LogPath: cfg.LogPath, LogLevel: cfg.LogLevel})
	return cfg
}

func openRepository(dir string) (*repository.Repository, error) {
	cfg := loadConfig()
	return repository.Open(dir, repository.Options{
		CacheSize:                cfg.CacheSize,
		Log:                      logger.Logger,
		PreferGenerationSelector: cfg.PreferGenerationSelector,
	})
}

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys <repo-dir>",
		Short: "Print every key in the index B-tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository(args[0])
			if err != nil {
				return err
			}
			defer repo.Close()

			it, err := repo.GetKeys()
			if err != nil {
				return err
			}
			for {
				key, ok := it.Next()
				if !ok {
					break
				}
				fmt.Println(key)
			}
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <repo-dir> <key>",
		Short: "Print an object record's data type and byte length",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := openRepository(args[0])
			if err != nil {
				return err
			}
			defer repo.Close()

			record, err := repo.GetObjectRecordByKey(args[1])
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("no object record for key %q", args[1])
			}
			fmt.Printf("data_type=%s bytes=%d\n", record.DataType, len(record.Data))
			return nil
		},
	}
}
