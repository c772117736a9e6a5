package command

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mobius/cmd/cli/authentication"
	"mobius/cmd/cli/command/client"
)

// auth.go handles authentication commands for the mobius CLI application.
// auth login, register, logout, and token management commands live here.

// authCmd represents the auth command for authentication related subcommands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  `Authenticate with the mobius API server. Supports login, registration, logout.`,
}

// registerCmd represents the register command
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new mobius account",
	RunE: func(cmd *cobra.Command, args []string) error {
		// get data from flags
		var c client.RegisterRequest
		c.Username, _ = cmd.Flags().GetString("username")
		c.Password, _ = cmd.Flags().GetString("password")
		c.Email, _ = cmd.Flags().GetString("email")

		// call API to register user
		httpClient := client.NewHTTPClient(apiURL)
		response, err := httpClient.Register(&c)
		if err != nil {
			return fmt.Errorf("registration process failed: %w", err)
		}

		// return confirmation message
		fmt.Println("✓ Registration successful! Please login to continue.")
		fmt.Printf("UserID: %s\n", response.UserID)
		return nil
	},
}

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to your mobius account",
	RunE: func(cmd *cobra.Command, args []string) error {
		// get data from flags
		var c client.LoginRequest
		c.Username, _ = cmd.Flags().GetString("username")
		c.Password, _ = cmd.Flags().GetString("password")

		// call API to login user
		httpClient := client.NewHTTPClient(apiURL)
		response, err := httpClient.Login(&c)
		if err != nil {
			return fmt.Errorf("login process failed: %w", err)
		}

		// save tokens to the OS keyring
		err = authentication.StoreTokens(&authentication.StoredCredentials{
			AccessToken:  response.AccessToken,
			RefreshToken: response.RefreshToken,
			Username:     response.Username,
			ExpiresAt:    time.Now().Unix() + response.ExpiresIn,
		})
		if err != nil {
			return fmt.Errorf("failed to store credentials: %w", err)
		}

		// return confirmation message
		fmt.Println("✓ Successfully logged in!")
		return nil
	},
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Logout from your mobius account",
	Run: func(cmd *cobra.Command, args []string) {
		// revoke the refresh token server-side, then clear the keyring
		if creds, err := authentication.GetTokens(); err == nil {
			httpClient := client.NewHTTPClient(apiURL)
			if err := httpClient.RevokeToken(creds.RefreshToken); err != nil {
				fmt.Println("warning: could not revoke refresh token:", err)
			}
		}
		if err := authentication.DeleteTokens(); err != nil {
			fmt.Println("warning: could not clear stored credentials:", err)
		}
		fmt.Println("✓ Successfully logged out.")
	},
}

// accessToken loads the stored access token for authenticated commands.
func accessToken() (string, error) {
	creds, err := authentication.GetTokens()
	if err != nil {
		return "", fmt.Errorf("not logged in, run 'mobius auth login' first: %w", err)
	}
	return creds.AccessToken, nil
}

// init function to add auth commands to root command
func init() {
	// add subcommands to authCmd
	authCmd.AddCommand(registerCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(authCmd)

	// add flags for register command
	registerCmd.Flags().StringP("username", "u", "", "Username for the new account")
	registerCmd.Flags().StringP("password", "p", "", "Password for the new account")
	registerCmd.Flags().StringP("email", "e", "", "Email address for the new account")
	registerCmd.MarkFlagRequired("username")
	registerCmd.MarkFlagRequired("password")
	registerCmd.MarkFlagRequired("email")

	// add flags for login command
	loginCmd.Flags().StringP("username", "u", "", "Username for the account")
	loginCmd.Flags().StringP("password", "p", "", "Password for the account")
	loginCmd.MarkFlagRequired("username")
	loginCmd.MarkFlagRequired("password")
}
