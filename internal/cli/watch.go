package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the profile whenever it changes",
		Long:  "Follow the backend's change feed and print every accepted profile until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.store.Watcher == nil {
				return fmt.Errorf("the %s backend has no change feed", opts.cfg.Backend.Kind)
			}

			ctx := cmd.Context()
			b := newBinding(opts.cfg, opts.store, opts.log)
			defer b.Close()

			out := cmd.OutOrStdout()
			state := b.Hydrate(ctx)
			if err := printProfile(out, opts.Format, b.Read(), state); err != nil {
				return err
			}

			changes := make(chan Profile, 16)
			unsubscribe := b.Subscribe(func(p Profile) {
				select {
				case changes <- p:
				default:
					opts.log.Warn().Msg("dropping change: output is not keeping up")
				}
			})
			defer unsubscribe()

			if err := b.Follow(ctx, opts.store.Watcher(opts.cfg.Key)); err != nil {
				return fmt.Errorf("following %s: %w", opts.cfg.Key, err)
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case p := <-changes:
					if err := printProfile(out, opts.Format, p, b.State()); err != nil {
						return err
					}
				}
			}
		},
	}
}
