package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "patchbay", cmd.Use)
	assert.Contains(t, cmd.Long, "simulated time")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "validate", "export", "trace", "replay", "plot", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		command  string
		flag     string
		defValue string
	}{
		{"run", "ticks", "0"},
		{"run", "dt", "0"},
		{"run", "cadence", "0s"},
		{"run", "db", ""},
		{"run", "inject", "[]"},
		{"run", "probe", "[]"},
		{"run", "metrics-addr", ""},
		{"export", "out", ""},
		{"export", "as", ""},
		{"trace", "db", ""},
		{"trace", "run", ""},
		{"trace", "node", ""},
		{"trace", "port", ""},
		{"trace", "from", "0"},
		{"trace", "to", "0"},
		{"replay", "db", ""},
		{"replay", "run", ""},
		{"plot", "ticks", "1000"},
		{"plot", "out", "scope.png"},
		{"plot", "title", ""},
		{"test", "update", "false"},
		{"test", "filter", ""},
	}

	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{tt.command})
			require.NoError(t, err)
			f := sub.Flags().Lookup(tt.flag)
			require.NotNil(t, f, "flag --%s", tt.flag)
			assert.Equal(t, tt.defValue, f.DefValue)
		})
	}
}

func TestOutFlagShorthand(t *testing.T) {
	for _, name := range []string{"export", "plot"} {
		sub, _, err := NewRootCommand().Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, "o", sub.Flags().Lookup("out").Shorthand, name)
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "validate", "testdata/patches/feedback.cue"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
