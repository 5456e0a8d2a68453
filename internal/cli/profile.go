package cli

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/zoobzio/stash"
	"github.com/zoobzio/stash/internal/config"
)

// Profile is the value the CLI binds.
type Profile struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email" validate:"omitempty,email"`
}

// newBinding binds cfg.Key on store with an empty Profile as fallback.
func newBinding(cfg *config.Config, store *Store, log zerolog.Logger) *stash.Binding[Profile] {
	var opts []stash.Option[Profile]
	if cfg.Persist.Timeout > 0 {
		opts = append(opts, stash.WithTimeout[Profile](cfg.Persist.Timeout))
	}
	if cfg.Persist.Retries > 0 {
		opts = append(opts, stash.WithBackoff[Profile](cfg.Persist.Retries+1, 100*time.Millisecond))
	}

	b := stash.New(store.Backend, cfg.Key, Profile{}, opts...).
		StructValidation().
		DiagnosticHistory(8).
		Observer(stash.ObserverFunc(func(d stash.Diagnostic) {
			log.Debug().
				Str("kind", string(d.Kind)).
				Str("binding", d.BindingID).
				Int("raw_bytes", len(d.Raw)).
				Err(d.Err).
				Msg("diagnostic")
		}))
	if cfg.Codec == "yaml" {
		b = b.Codec(stash.YAMLCodec{})
	}
	return b
}
