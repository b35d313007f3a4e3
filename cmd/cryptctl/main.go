// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	apiURL  string
	output  string
	timeout time.Duration
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	rootCmd := &cobra.Command{
		Use:   "cryptctl",
		Short: "Field Encryption Service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("CRYPTCTL_API_URL")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set CRYPTCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	// サブコマンド登録
	rootCmd.AddCommand(encryptCmd())
	rootCmd.AddCommand(decryptCmd())
	rootCmd.AddCommand(fieldsCmd())
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cryptctl version %s\n", version)
		},
	}
}

// postJSON はAPIにJSONをPOSTしてレスポンスボディを返す。
func postJSON(url string, payload any) (int, []byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encoding request: %w", err)
	}

	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// encryptCmd は値の暗号化コマンド。
func encryptCmd() *cobra.Command {
	var fieldName string
	var value string
	var local bool
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a value with a named field configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if local {
				return encryptLocal(fieldName, value)
			}
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set CRYPTCTL_API_URL)")
			}

			url := fmt.Sprintf("%s/v1/fields/%s/encrypt", apiURL, fieldName)
			status, body, err := postJSON(url, map[string]any{"value": value})
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return handleErrorResponse(status, body)
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result map[string]interface{}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				fmt.Println(result["token"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fieldName, "field", "", "Field name (required)")
	cmd.Flags().StringVar(&value, "value", "", "Value to encrypt (required)")
	cmd.Flags().BoolVar(&local, "local", false, "Encrypt locally using CRYPTO_* environment variables")
	cmd.MarkFlagRequired("field")
	cmd.MarkFlagRequired("value")
	return cmd
}

// decryptCmd はトークンの復号コマンド。
func decryptCmd() *cobra.Command {
	var fieldName string
	var token string
	var local bool
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a token with a named field configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if local {
				return decryptLocal(fieldName, token)
			}
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set CRYPTCTL_API_URL)")
			}

			url := fmt.Sprintf("%s/v1/fields/%s/decrypt", apiURL, fieldName)
			status, body, err := postJSON(url, map[string]any{"token": token})
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return handleErrorResponse(status, body)
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Value   any  `json:"value"`
					Expired bool `json:"expired"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}
				if result.Expired {
					fmt.Println("<expired>")
				} else {
					fmt.Println(result.Value)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fieldName, "field", "", "Field name (required)")
	cmd.Flags().StringVar(&token, "token", "", "Token to decrypt (required)")
	cmd.Flags().BoolVar(&local, "local", false, "Decrypt locally using CRYPTO_* environment variables")
	cmd.MarkFlagRequired("field")
	cmd.MarkFlagRequired("token")
	return cmd
}

// fieldsCmd は登録済みフィールド一覧の取得コマンド。
func fieldsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fields",
		Short: "List registered field configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiURL == "" {
				return fmt.Errorf("--api-url is required (or set CRYPTCTL_API_URL)")
			}

			resp, err := httpClient.Get(apiURL + "/v1/fields")
			if err != nil {
				return fmt.Errorf("API request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("reading response: %w", err)
			}

			if resp.StatusCode != http.StatusOK {
				return handleErrorResponse(resp.StatusCode, body)
			}

			if output == "json" {
				fmt.Println(string(body))
			} else {
				var result struct {
					Fields []struct {
						Name       string `json:"name"`
						Kind       string `json:"kind"`
						Digest     string `json:"digest"`
						TTLSeconds int64  `json:"ttl_seconds"`
					} `json:"fields"`
				}
				if err := json.Unmarshal(body, &result); err != nil {
					return fmt.Errorf("parsing response: %w", err)
				}

				fmt.Printf("%-24s %-12s %-12s %s\n", "NAME", "KIND", "DIGEST", "TTL_SECONDS")
				for _, f := range result.Fields {
					fmt.Printf("%-24s %-12s %-12s %d\n", f.Name, f.Kind, f.Digest, f.TTLSeconds)
				}
			}
			return nil
		},
	}
	return cmd
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("Error: %s", errResp.Message)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
