// Package util holds the helpers shared by the groupoverlap commands for binding
// cobra flags and environment variables to viper keys.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// MustBindPFlag binds a viper key to a cobra flag and panics if the flag is missing.
func MustBindPFlag(key string, flag *pflag.Flag) {
	if flag == nil {
		panic(fmt.Sprintf("failed to bind pflag for '%s': flag is not defined", key))
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind pflag for '%s': %v", key, err))
	}
}

// MustBindEnv binds a viper key to one or more environment variables. The first
// argument is the key.
func MustBindEnv(input ...string) {
	if err := viper.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}

// PrepareTempConfigDir points HOME at a temporary directory and returns the
// $HOME/.groupoverlap directory inside it.
func PrepareTempConfigDir(t testing.TB) string {
	t.Helper()

	_, err := os.Stat("/etc/groupoverlap/config.yaml")
	require.ErrorIs(t, err, os.ErrNotExist, "config file at /etc/groupoverlap/config.yaml would disturb test results")

	homedir := t.TempDir()
	t.Setenv("HOME", homedir)

	confdir := filepath.Join(homedir, ".groupoverlap")
	require.NoError(t, os.Mkdir(confdir, 0o750))

	return confdir
}

// PrepareTempConfigFile writes config as $HOME/.groupoverlap/config.yaml and returns
// its path.
func PrepareTempConfigFile(t testing.TB, config string) string {
	t.Helper()

	path := filepath.Join(PrepareTempConfigDir(t), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(config), 0o600))
	return path
}
