package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "rehook", cmd.Use)
	assert.Contains(t, cmd.Long, "prior state")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "stdio", "cycle", "apps", "test", "trace", "replay", "validate"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "command %s should exist", name)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)

	cfg := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, cfg)
	assert.Equal(t, "c", cfg.Shorthand)
}

func TestStoreFlags(t *testing.T) {
	for _, name := range []string{"serve", "stdio", "apps", "trace", "replay"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{name})
			require.NoError(t, err)
			assert.NotNil(t, sub.Flags().Lookup("db"))
			assert.NotNil(t, sub.Flags().Lookup("backend"))
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "", "apps", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestStoreOptionsApply(t *testing.T) {
	cfg := loadDefault(t)
	require.NoError(t, StoreOptions{Database: "x.db", Backend: "bolt"}.apply(cfg))
	assert.Equal(t, "x.db", cfg.Store.Path)
	assert.Equal(t, "bolt", cfg.Store.Backend)

	err := StoreOptions{Backend: "postgres"}.apply(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "postgres"`)
}
