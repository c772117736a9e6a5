package command

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mobius/internal/microservices/websocket"
)

// progress.go tails the upload progress feed, handy while a large model is
// uploading from the browser.

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Watch upload progress in realtime",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := accessToken()
		if err != nil {
			return err
		}

		channel := websocket.NewChannel(wsBase(apiURL), "/ws/upload_progress", func(msg map[string]any) {
			percent, _ := msg["progress"].(float64)
			if provider, ok := msg["provider"].(string); ok && provider != "" {
				color.Cyan("%s: %d%%", provider, int(percent))
				return
			}
			fmt.Printf("upload: %d%%\n", int(percent))
		})

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		if err := channel.Connect(cmd.Context(), header); err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}
		defer channel.Close()

		fmt.Println("✅ Connected! Watching upload progress (Ctrl-C to exit)")

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)

		select {
		case <-interrupt:
		case <-channel.Done():
			fmt.Println("Connection closed by server.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(progressCmd)
}
