package client

import (
	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewRoot constructs a root Cobra command for the Warden client.
// It registers the events, intruder and health command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "warden",
		Short: "Warden client commands",
	}
	Register(root, baseURL)
	return root
}

// Register adds the client command groups to an existing root.
func Register(root *cobra.Command, baseURL BaseURLFunc) {
	root.AddCommand(
		NewEventsCommand(baseURL),
		NewIntruderCommand(baseURL),
		NewHealthCommand(baseURL),
	)
}
