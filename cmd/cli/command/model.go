package command

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mobius/cmd/cli/command/client"
)

// model.go handles model upload and listing commands.

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage uploaded 3D models",
}

// uploadCmd uploads a model file to the API server
var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload a 3D model file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		name, _ := cmd.Flags().GetString("name")

		token, err := accessToken()
		if err != nil {
			return err
		}

		httpClient := client.NewHTTPClient(apiURL)
		httpClient.SetToken(token)

		response, err := httpClient.Upload(path, name)
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}

		color.Green("✓ Upload successful!")
		fmt.Printf("Model ID: %d\n", response.ModelID)
		return nil
	},
}

// listCmd lists the user's uploaded models
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your uploaded models",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := accessToken()
		if err != nil {
			return err
		}

		httpClient := client.NewHTTPClient(apiURL)
		httpClient.SetToken(token)

		models, err := httpClient.ListModels()
		if err != nil {
			return fmt.Errorf("failed to list models: %w", err)
		}

		if len(models) == 0 {
			fmt.Println("No models uploaded yet.")
			return nil
		}

		for _, m := range models {
			fmt.Printf("%6d  %-50s  %8d bytes  %s\n",
				m.ID, m.Name, m.Size, m.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// deleteCmd removes one of the user's models
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete an uploaded model",
	RunE: func(cmd *cobra.Command, args []string) error {
		modelID, _ := cmd.Flags().GetInt64("model")

		token, err := accessToken()
		if err != nil {
			return err
		}

		httpClient := client.NewHTTPClient(apiURL)
		httpClient.SetToken(token)

		if err := httpClient.DeleteModel(modelID); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}

		color.Green("✓ Model %d deleted", modelID)
		return nil
	},
}

func init() {
	modelCmd.AddCommand(uploadCmd)
	modelCmd.AddCommand(listCmd)
	modelCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(modelCmd)

	uploadCmd.Flags().StringP("file", "f", "", "Path to the model file")
	uploadCmd.Flags().StringP("name", "n", "", "Display name for the model (defaults to the file name)")
	uploadCmd.MarkFlagRequired("file")

	deleteCmd.Flags().Int64P("model", "m", 0, "Model ID to delete")
	deleteCmd.MarkFlagRequired("model")
}
