package client

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

// NewIntruderCommand constructs the `intruder` command group.
func NewIntruderCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "intruder", Short: "Intruder lockout operations"}
	cmd.AddCommand(
		newIntruderCheckCommand(baseURL),
		newIntruderRecordCommand(baseURL),
		newIntruderShowCommand(baseURL),
		newIntruderClearCommand(baseURL),
	)
	return cmd
}

func newIntruderCheckCommand(baseURL BaseURLFunc) *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a username or address is locked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, _ := cmd.Flags().GetString("username")
			address, _ := cmd.Flags().GetString("address")
			q := url.Values{}
			if username != "" {
				q.Set("username", username)
			}
			if address != "" {
				q.Set("address", address)
			}
			status, body, err := doJSON(cmd.Context(), http.MethodGet, baseURL()+"/v1/intruders/check?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			if err := expect(status, body, http.StatusOK, http.StatusLocked); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), body)
			return nil
		},
	}
	checkCmd.Flags().String("username", "", "Username")
	checkCmd.Flags().String("address", "", "Source address")
	return checkCmd
}

func newIntruderRecordCommand(baseURL BaseURLFunc) *cobra.Command {
	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Record a failed (or, with --success, successful) login",
		RunE: func(cmd *cobra.Command, _ []string) error {
			username, _ := cmd.Flags().GetString("username")
			address, _ := cmd.Flags().GetString("address")
			success, _ := cmd.Flags().GetBool("success")
			if username == "" && address == "" {
				return fmt.Errorf("--username or --address is required")
			}
			req := map[string]any{"username": username, "address": address, "success": success}
			status, body, err := doJSON(cmd.Context(), http.MethodPost, baseURL()+"/v1/intruders/attempts", req)
			if err != nil {
				return err
			}
			if err := expect(status, body, http.StatusNoContent); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "status:", http.StatusText(status))
			return nil
		},
	}
	recordCmd.Flags().String("username", "", "Username")
	recordCmd.Flags().String("address", "", "Source address")
	recordCmd.Flags().Bool("success", false, "Record a successful login (clears the records)")
	return recordCmd
}

func recordURL(baseURL BaseURLFunc, dimension, key string) string {
	return baseURL() + "/v1/intruders/" + url.PathEscape(dimension) + "/" + url.PathEscape(key)
}

func newIntruderShowCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user|address> <key>",
		Short: "Show the stored record for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := doJSON(cmd.Context(), http.MethodGet, recordURL(baseURL, args[0], args[1]), nil)
			if err != nil {
				return err
			}
			if err := expect(status, body, http.StatusOK); err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func newIntruderClearCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <user|address> <key>",
		Short: "Unlock a key by removing its record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := doJSON(cmd.Context(), http.MethodDelete, recordURL(baseURL, args[0], args[1]), nil)
			if err != nil {
				return err
			}
			if err := expect(status, body, http.StatusNoContent); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cleared")
			return nil
		},
	}
}

// NewHealthCommand constructs the `health` command.
func NewHealthCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show component health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, body, err := doJSON(cmd.Context(), http.MethodGet, baseURL()+"/v1/health", nil)
			if err != nil {
				return err
			}
			printJSON(cmd.OutOrStdout(), body)
			return expect(status, body, http.StatusOK)
		},
	}
}
