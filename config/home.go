package config

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

const (
	ConfigFilename = "config.toml"
	JournalDirname = "journal"
)

var ErrHomeDirMissing = errors.New("home directory does not exist - try running ptstreamd init")

// ExpandHomePath resolves a leading ~ against the user's home directory.
func ExpandHomePath(path string) string {
	res, err := homedir.Expand(path)
	if err != nil {
		panic(err)
	}
	return res
}

func ExpandJournalPath(homePath string) string {
	return filepath.Join(homePath, JournalDirname)
}

func HomeDirExists(path string) (bool, error) {
	stat, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "error checking home directory")
	}
	if !stat.IsDir() {
		return false, errors.Errorf("home dir path %s exists, but is a file", path)
	}
	return true, nil
}

func EnsureHomeDir(path string) error {
	exists, err := HomeDirExists(path)
	if err != nil {
		return err
	}
	if !exists {
		return ErrHomeDirMissing
	}
	return nil
}

// InitHomeDir lays out a fresh home directory: the journal directory and a
// default config file.
func InitHomeDir(homePath string) error {
	if err := os.MkdirAll(ExpandJournalPath(homePath), 0700); err != nil {
		return errors.Wrap(err, "error creating journal directory")
	}
	return WriteDefaultConfigFile(homePath)
}
