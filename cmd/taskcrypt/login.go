package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save a personal access token",
	Long: `Login checks a personal access token against the API and saves it for
later commands. A token set in the config file or environment takes
precedence over the saved one.`,
	Example: `  taskcrypt login
  taskcrypt login --token 1/1200000000000:abcdef`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved access token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the user the access token belongs to",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var loginToken string

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)

	loginCmd.Flags().StringVarP(&loginToken, "token", "t", "",
		"Personal access token (will prompt if not provided)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	if loginToken == "" {
		var err error
		loginToken, err = promptPassword("Access token: ")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
	}

	me, err := apiClient.Auth.Login(cmd.Context(), loginToken)
	if err != nil {
		if jsonOutput {
			printJSON(map[string]interface{}{
				"success": false,
				"error":   err.Error(),
			})
		} else {
			printError("Login failed: %v", err)
		}
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"name":    me.Name,
			"email":   me.Email,
		})
		return nil
	}

	printSuccess("Logged in as %s <%s>", me.Name, me.Email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := apiClient.Auth.Logout(); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true})
		return nil
	}

	printSuccess("Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	if err := requireToken(); err != nil {
		return err
	}

	me, err := apiClient.Auth.Me(cmd.Context())
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(me)
		return nil
	}

	fmt.Printf("%s <%s>\n", me.Name, me.Email)
	for _, ws := range me.Workspaces {
		fmt.Printf("  %s  %s\n", ws.GID, ws.Name)
	}
	return nil
}
