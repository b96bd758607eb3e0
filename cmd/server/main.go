package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "quillpost",
	Short:         "QuillPost blogging server",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func main() {
	rootCmd.AddCommand(serveCmd, userCmd, sessionsCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
