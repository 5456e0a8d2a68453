package cli

import (
	"github.com/spf13/cobra"
)

// NewGetCommand creates the get command.
func NewGetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Print the current profile",
		Long:  "Hydrate the profile from the backend and print it. Missing or unreadable data yields the empty profile.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := newBinding(opts.cfg, opts.store, opts.log)
			defer b.Close()

			state := b.Hydrate(cmd.Context())
			return printProfile(cmd.OutOrStdout(), opts.Format, b.Read(), state)
		},
	}
}
