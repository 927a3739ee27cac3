package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// NewEventsCommand constructs the `events` command group.
func NewEventsCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{Use: "events", Short: "Event log operations"}
	cmd.AddCommand(newEventsSearchCommand(baseURL), newEventsWriteCommand(baseURL))
	return cmd
}

func newEventsSearchCommand(baseURL BaseURLFunc) *cobra.Command {
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search stored events, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			for _, name := range []string{"level", "actor", "text", "type", "filter"} {
				if v, _ := cmd.Flags().GetString(name); v != "" {
					q.Set(name, v)
				}
			}
			if count, _ := cmd.Flags().GetInt("count"); count > 0 {
				q.Set("count", strconv.Itoa(count))
			}
			if cmd.Flags().Changed("max-query-ms") {
				ms, _ := cmd.Flags().GetInt64("max-query-ms")
				q.Set("maxQueryMs", strconv.FormatInt(ms, 10))
			}
			target := baseURL() + "/v1/events"
			if len(q) > 0 {
				target += "?" + q.Encode()
			}
			status, body, err := doJSON(cmd.Context(), http.MethodGet, target, nil)
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
	searchCmd.Flags().String("level", "", "Minimum level: TRACE|DEBUG|INFO|WARN|ERROR|FATAL")
	searchCmd.Flags().Int("count", 0, "Maximum results (server default when 0)")
	searchCmd.Flags().String("actor", "", "Actor: exact name or regular expression")
	searchCmd.Flags().String("text", "", "Case-insensitive message substring")
	searchCmd.Flags().String("type", "", "Event type: user|system|both")
	searchCmd.Flags().String("filter", "", "CEL filter expression")
	searchCmd.Flags().Int64("max-query-ms", 0, "Scan time bound in ms")
	return searchCmd
}

func newEventsWriteCommand(baseURL BaseURLFunc) *cobra.Command {
	writeCmd := &cobra.Command{
		Use:   "write",
		Short: "Write one event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := map[string]string{}
			for _, name := range []string{"level", "topic", "message", "source", "actor", "cause"} {
				if v, _ := cmd.Flags().GetString(name); v != "" {
					req[name] = v
				}
			}
			status, body, err := doJSON(cmd.Context(), http.MethodPost, baseURL()+"/v1/events", req)
			if err != nil {
				return err
			}
			if err := expect(status, body, http.StatusAccepted); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "status:", http.StatusText(status))
			return nil
		},
	}
	writeCmd.Flags().String("level", "INFO", "Level")
	writeCmd.Flags().String("topic", "", "Topic")
	writeCmd.Flags().StringP("message", "m", "", "Message")
	writeCmd.Flags().String("source", "", "Source address")
	writeCmd.Flags().String("actor", "", "Acting user")
	writeCmd.Flags().String("cause", "", "Cause")
	return writeCmd
}
