package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:     "cipherswarmd",
	Version: "0.1.0",
	Short:   "CipherSwarm scheduling core",
	Long:    "cipherswarmd runs the server-side task scheduling and lifecycle subsystem for a CipherSwarm deployment.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	rootCmd.AddCommand(serveCmd)
}
