package command

// root.go defines the root command for the mobius CLI application.
// set up the global flags and configuration here.

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL string // Global flag for API server URL
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mobius",
	Short: "mobius - 3D print quote comparison from the terminal",
	Long: `mobius talks to the mobius API server. User can use this application to:
- Upload 3D model files
- Request price quotes from the connected printing services
- Push stored models to the printing services
- Watch upload progress in realtime

Use "mobius command -h" to see all available commands.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8888", "API server URL")
}
