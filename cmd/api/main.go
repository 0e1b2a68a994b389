package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var root = &cobra.Command{
		Use:           "agrivision",
		Short:         "Multi-backend plant image analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "config file (default $CONFIG_PATH or config.yaml)")
	root.AddCommand(serveCMD(), analyzeCMD(), migrateCMD())
	return root
}

// configPath: flag > CONFIG_PATH > config.yaml
func configPath(cmd *cobra.Command) string {
	if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
		return f.Value.String()
	}
	return getenv("CONFIG_PATH", "config.yaml")
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
