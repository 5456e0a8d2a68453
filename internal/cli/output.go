package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/zoobzio/stash"
)

// profileView is the printed form of a profile.
type profileView struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	State string `json:"state"`
}

func printProfile(w io.Writer, format string, p Profile, state stash.State) error {
	if format == "json" {
		return json.NewEncoder(w).Encode(profileView{
			Name:  p.Name,
			Email: p.Email,
			State: state.String(),
		})
	}
	_, err := fmt.Fprintf(w, "name:  %s\nemail: %s\nstate: %s\n", p.Name, p.Email, state)
	return err
}
