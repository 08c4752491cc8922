package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/example/transformkernel/internal/kernelconfig"
)

var (
	flagStoreDir   string
	flagLogLevel   string
	flagConfigFile string
	flagStrict     bool
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "kernelctl",
		Short:         "Demo driver for the content-addressed transform execution kernel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagStoreDir, "store-dir", "", "kernel storage root (default kernel_store)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flagConfigFile, "config", "", "path to a config file")
	root.PersistentFlags().BoolVar(&flagStrict, "strict", false, "enable strict-load rehash verification")

	root.AddCommand(newDemoCommand())
	return root
}

func loadConfig(cmd *cobra.Command) (kernelconfig.Config, error) {
	v := viper.New()
	_ = v.BindPFlag("store_dir", cmd.Flags().Lookup("store-dir"))
	_ = v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))
	_ = v.BindPFlag("strict_load", cmd.Flags().Lookup("strict"))
	return kernelconfig.Load(v, flagConfigFile)
}
