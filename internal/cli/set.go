package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/zoobzio/stash"
)

// SetOptions holds flags for the set command.
type SetOptions struct {
	Name  string
	Email string
}

// NewSetCommand creates the set command.
func NewSetCommand(opts *RootOptions) *cobra.Command {
	setOpts := &SetOptions{}

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update profile fields",
		Long:  "Update the given profile fields and persist the result. A persist failure is reported as a warning.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if !flags.Changed("name") && !flags.Changed("email") {
				return errors.New("nothing to set: pass --name and/or --email")
			}

			b := newBinding(opts.cfg, opts.store, opts.log)
			defer b.Close()

			err := b.Update(cmd.Context(), func(p Profile) Profile {
				if flags.Changed("name") {
					p.Name = setOpts.Name
				}
				if flags.Changed("email") {
					p.Email = setOpts.Email
				}
				return p
			})

			var perr *stash.PersistError
			if errors.As(err, &perr) {
				opts.log.Warn().Err(perr.Err).Msg("profile updated in memory only")
			} else if err != nil {
				return err
			}

			return printProfile(cmd.OutOrStdout(), opts.Format, b.Read(), b.State())
		},
	}

	cmd.Flags().StringVar(&setOpts.Name, "name", "", "profile name")
	cmd.Flags().StringVar(&setOpts.Email, "email", "", "profile email")

	return cmd
}
