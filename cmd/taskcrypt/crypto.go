package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/taskcrypt/internal/crypto"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt <text>",
	Short: "Encrypt text into a token",
	Long: `Encrypt prints the token for text under the master password. Without a
password the text is printed unchanged.`,
	Example: `  taskcrypt encrypt "Buy milk" --ask-password`,
	Args:    cobra.ExactArgs(1),
	RunE:    runEncrypt,
}

var decryptCmd = &cobra.Command{
	Use:     "decrypt <token>",
	Short:   "Decrypt a token",
	Example: `  taskcrypt decrypt eyJzYWx0Ijoi... --password correcthorse`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDecrypt,
}

var detectCmd = &cobra.Command{
	Use:   "detect <text>",
	Short: "Report whether text is an encrypted token",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetect,
}

func init() {
	rootCmd.AddCommand(encryptCmd, decryptCmd, detectCmd)
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	if !apiClient.Crypto.HasPassword() {
		printWarning("No master password set, text is not encrypted")
	}

	token, err := apiClient.Crypto.Encrypt(args[0])
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"token":     token,
			"encrypted": apiClient.Crypto.HasPassword() && args[0] != "",
		})
		return nil
	}

	fmt.Println(token)
	return nil
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	res := apiClient.Crypto.Decrypt(args[0])

	if jsonOutput {
		out := map[string]interface{}{"success": res.OK()}
		if res.OK() {
			out["plaintext"] = res.Plaintext
		} else {
			out["error"] = res.Err.Error()
		}
		printJSON(out)
		return nil
	}

	if !res.OK() {
		if errors.Is(res.Err, crypto.ErrAuthentication) {
			return fmt.Errorf("wrong password or corrupted token")
		}
		return fmt.Errorf("decrypt: %w", res.Err)
	}

	fmt.Println(res.Plaintext)
	return nil
}

func runDetect(cmd *cobra.Command, args []string) error {
	encrypted := apiClient.Crypto.IsEncrypted(args[0])

	if jsonOutput {
		printJSON(map[string]interface{}{"encrypted": encrypted})
		return nil
	}

	if encrypted {
		printInfo("Encrypted token")
	} else {
		printInfo("Plain text")
	}
	return nil
}
