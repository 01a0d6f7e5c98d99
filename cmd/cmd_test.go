// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "crawl")
}

func TestVersionFlagPrintsVersion(t *testing.T) {
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, Version, strings.TrimSpace(out.String()))
}

func TestInitializeConfigAppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, initializeConfig(""))
	assert.Equal(t, "info", viper.GetString("logger.level"))
	assert.Equal(t, ":8080", viper.GetString("server.addr"))
	assert.Equal(t, 5, viper.GetInt("crawler.concurrency_limit"))
}

func TestInitializeConfigRejectsBrokenFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := t.TempDir() + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("logger:\n  level: [broken"), 0o644))

	err := initializeConfig(path)
	require.Error(t, err)
}
