package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vsariola/beatbox"
)

type (
	Preferences struct {
		MIDI        MIDIPreferences
		Bus         BusPreferences
		StopTimeout time.Duration
		Status      StatusPreferences
		YmlError    error `yaml:"-"`
	}

	MIDIPreferences struct {
		// Output is the prefix of the MIDI output port name to open. Empty
		// opens the first port.
		Output     string
		SerialBaud int
	}

	BusPreferences struct {
		Workers         int
		QueueSize       int
		ShutdownTimeout time.Duration
	}

	StatusPreferences struct {
		Template string `yaml:",omitempty"`
		Commands []string
	}
)

//go:embed preferences.yml
var defaultPreferencesYaml []byte

func DefaultPreferences() Preferences {
	var preferences Preferences
	err := yaml.UnmarshalStrict(defaultPreferencesYaml, &preferences)
	if err != nil {
		panic(fmt.Errorf("failed to unmarshal preferences: %w", err))
	}
	return preferences
}

// ReadCustomConfigYml modifies the target argument, i.e. needs a pointer. A
// missing file is not an error, exists is just false.
func ReadCustomConfigYml(path string, target interface{}) (exists bool, err error) {
	bytes, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, yaml.UnmarshalStrict(bytes, target)
}

// UserPreferencesPath is where MakePreferences looks for the user's
// preferences.
func UserPreferencesPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "beatbox", "preferences.yml"), nil
}

// MakePreferences returns the default preferences overridden by the user's
// preferences file, if there is one. Problems with the user's file are
// reported in YmlError.
func MakePreferences() Preferences {
	preferences := DefaultPreferences()
	path, err := UserPreferencesPath()
	if err != nil {
		return preferences
	}
	if exists, err := ReadCustomConfigYml(path, &preferences); exists && err != nil {
		preferences.YmlError = fmt.Errorf("%v: %w", path, err)
	}
	return preferences
}

// StatusKinds parses the command names in Status.Commands.
func (p Preferences) StatusKinds() ([]beatbox.CommandKind, error) {
	kinds := make([]beatbox.CommandKind, 0, len(p.Status.Commands))
	for _, name := range p.Status.Commands {
		k, err := beatbox.ParseCommandKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
