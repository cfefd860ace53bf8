// Command audiomix renders and mixes audio assets offline: it decodes
// the given inputs, feeds each through its own render stream and
// writes the mixed result to a WAV file.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "audiomix",
	Short: "Offline multi-stream audio renderer",
	Long: `Audiomix decodes audio assets (WAV, MP3, Ogg Vorbis), converts each
to a common output format through per-stream processing chains and
mixes them into a single WAV file.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./audiomix.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().Uint32("rate", 48000, "output sample rate in Hz")
	rootCmd.PersistentFlags().Uint8("channels", 2, "output channel count")
	rootCmd.PersistentFlags().Uint32("period", 20, "mixer period in milliseconds")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	viper.BindPFlag("output.rate", rootCmd.PersistentFlags().Lookup("rate"))
	viper.BindPFlag("output.channels", rootCmd.PersistentFlags().Lookup("channels"))
	viper.BindPFlag("engine.period_ms", rootCmd.PersistentFlags().Lookup("period"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
	if verbose {
		viper.Set("logging.level", "debug")
	}
}
