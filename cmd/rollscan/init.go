package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rollscan/rollscan/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the rollscan home directory",
	Long: `Initialize the rollscan home directory.

Creates ~/.rollscan (or --home) with a documents directory and writes
a default config.yaml if one does not already exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := openHome()
		if err != nil {
			return err
		}

		if h.ConfigExists() {
			fmt.Printf("config already exists at %s\n", h.ConfigPath())
			return nil
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		fmt.Printf("wrote default config to %s\n", h.ConfigPath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
