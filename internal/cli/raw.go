package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zoobzio/stash"
)

// NewRawCommand creates the raw command.
func NewRawCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "raw",
		Short: "Print the durable bytes",
		Long:  "Print the bytes stored under the key without decoding them.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := opts.store.Backend.Get(cmd.Context(), opts.cfg.Key)
			if errors.Is(err, stash.ErrNotFound) {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "(empty)")
				return err
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return err
		},
	}
}
