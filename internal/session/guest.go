package session

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Guest is the locally persisted descriptor for an unauthenticated guest
// identity. It survives restarts so a returning guest keeps the same
// conversation identity.
type Guest struct {
	Ref  string `toml:"ref"`
	Name string `toml:"name"`
}

// LoadGuest reads the guest descriptor for a session, creating and
// persisting a fresh one if none exists.
func LoadGuest(sessionName string) (*Guest, error) {
	path := GuestPath(sessionName)

	var g Guest
	if _, err := toml.DecodeFile(path, &g); err == nil && g.Ref != "" {
		return &g, nil
	}

	g = Guest{Ref: "guest-" + uuid.NewString()}
	if err := SaveGuest(sessionName, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// SaveGuest persists the guest descriptor.
func SaveGuest(sessionName string, g *Guest) error {
	path := GuestPath(sessionName)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(g)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
