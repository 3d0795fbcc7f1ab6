// Command plctl is the palletline operator CLI: outbox inspection and
// repair, dead-letter peeking, and development data seeding.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/palletline-systems/palletline-stack/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "plctl",
	Short:   "palletline operator CLI",
	Long:    "plctl inspects and repairs the palletline event backbone: outbox queue, dead-letter stream, and development seed data.",
	Version: "0.1.0",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $PALLETLINE_CONFIG)")

	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(dlqCmd)
	rootCmd.AddCommand(seedCmd)
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
}
