package command

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mobius/cmd/cli/command/client"
	"mobius/internal/microservices/websocket"
)

// quote.go requests quotes over the realtime provider channel and renders the
// worker states as they stream in.

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Request price quotes for an uploaded model",
	RunE: func(cmd *cobra.Command, args []string) error {
		modelID, _ := cmd.Flags().GetInt64("model")
		quantity, _ := cmd.Flags().GetInt("quantity")
		expect, _ := cmd.Flags().GetInt("expect")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		token, err := accessToken()
		if err != nil {
			return err
		}

		if sync, _ := cmd.Flags().GetBool("sync"); sync {
			return syncQuotes(token, modelID, quantity)
		}

		// Terminal frames (RESULT or ERROR), one per provider.
		terminal := make(chan struct{}, expect)
		channel := websocket.NewChannel(wsBase(apiURL), "/ws/providers", func(msg map[string]any) {
			printWorkerState(msg)
			state, _ := msg["state"].(string)
			if state == "RESULT" || state == "ERROR" {
				terminal <- struct{}{}
			}
		})

		// The request is queued before the connection opens and flushed on
		// connect, so ordering does not depend on dial latency.
		err = channel.Send(map[string]any{
			"command":   "QUOTE",
			"mobius_id": modelID,
			"params":    map[string]any{"quantity": quantity},
		})
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		header := http.Header{}
		header.Set("Authorization", "Bearer "+token)
		if err := channel.Connect(ctx, header); err != nil {
			return fmt.Errorf("connection failed: %w", err)
		}
		defer channel.Close()

		fmt.Printf("⏳ Waiting for %d provider(s)...\n", expect)
		for received := 0; received < expect; {
			select {
			case <-terminal:
				received++
			case <-channel.Done():
				return fmt.Errorf("connection closed before all providers answered")
			case <-ctx.Done():
				return fmt.Errorf("timed out waiting for quotes")
			}
		}
		return nil
	},
}

// syncQuotes takes the plain HTTP path instead of the provider socket; the
// server blocks until every provider has answered.
func syncQuotes(token string, modelID int64, quantity int) error {
	httpClient := client.NewHTTPClient(apiURL)
	httpClient.SetToken(token)

	states, err := httpClient.GetQuotes(modelID, quantity)
	if err != nil {
		return err
	}
	for _, s := range states {
		switch s.State {
		case "RESULT":
			color.Green("✓ %s", s.Provider)
			fmt.Printf("  %s\n", string(s.Response))
		case "ERROR":
			color.Red("✗ %s: %s", s.Provider, s.Error)
		}
	}
	return nil
}

func printWorkerState(msg map[string]any) {
	provider, _ := msg["provider"].(string)
	state, _ := msg["state"].(string)

	switch state {
	case "UPLOADING":
		progress, _ := msg["progress"].(float64)
		color.HiBlack("%s uploading... %d%%", provider, int(progress))
	case "RESULT":
		color.Green("✓ %s", provider)
		fmt.Printf("  %v\n", msg["response"])
	case "ERROR":
		color.Red("✗ %s: %v", provider, msg["error"])
	}
}

// wsBase rewrites an http(s) API URL into its websocket origin.
func wsBase(api string) string {
	if strings.HasPrefix(api, "https://") {
		return "wss://" + strings.TrimPrefix(api, "https://")
	}
	return "ws://" + strings.TrimPrefix(api, "http://")
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().Int64P("model", "m", 0, "Model ID to quote")
	quoteCmd.Flags().IntP("quantity", "q", 1, "Number of copies")
	quoteCmd.Flags().Int("expect", 2, "Number of providers to wait for")
	quoteCmd.Flags().Duration("timeout", 2*time.Minute, "How long to wait for quotes")
	quoteCmd.Flags().Bool("sync", false, "Fetch quotes over plain HTTP instead of the provider socket")
	quoteCmd.MarkFlagRequired("model")
}
