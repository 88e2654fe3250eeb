package flagx

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "short flag with separate value",
			args:         []string{"-c", "conf.json", "-a", "localhost"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c", "conf.json"},
		},
		{
			name:         "long flag with equals",
			args:         []string{"--config=alt.json", "-a", "localhost"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--config=alt.json"},
		},
		{
			name:         "both short and long present, preserve order",
			args:         []string{"--config=first.json", "-c", "second.json", "-x", "1"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--config=first.json", "-c", "second.json"},
		},
		{
			name:         "unknown flags ignored",
			args:         []string{"-x", "1", "--y=2", "positional"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{},
		},
		{
			name:         "flag without value at end is kept as-is",
			args:         []string{"-c"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c"},
		},
		{
			name:         "flag followed by another flag (no value)",
			args:         []string{"-c", "-notvalue"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c"},
		},
		{
			name:         "value that looks like a flag but with equals form",
			args:         []string{"--config=--weird.json"},
			allowedFlags: []string{"--config"},
			want:         []string{"--config=--weird.json"},
		},
		{
			name:         "multiple allowed flags kept",
			args:         []string{"-db", "state.db", "-c", "conf.json", "--other", "x"},
			allowedFlags: []string{"-c", "-db"},
			want:         []string{"-db", "state.db", "-c", "conf.json"},
		},
		{
			name:         "empty args",
			args:         []string{},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{},
		},
		{
			name:         "do not treat next dash-starting token as value",
			args:         []string{"-c", "--config=alt.json"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c", "--config=alt.json"},
		},
		{
			name:         "repeated allowed flag is preserved in order",
			args:         []string{"-c", "one.json", "-c", "two.json"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c", "one.json", "-c", "two.json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.allowedFlags)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("FilterArgs() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func Test_jsonConfigFlags(t *testing.T) {
	t.Run("short -c with value", func(t *testing.T) {
		args := []string{"-c", "/path/short.json"}
		assert.Equal(t, "/path/short.json", JsonConfigFlags(args))
	})

	t.Run("long -config with value", func(t *testing.T) {
		args := []string{"-config", "/path/long.json"}
		assert.Equal(t, "/path/long.json", JsonConfigFlags(args))
	})

	t.Run("unknown flags are ignored", func(t *testing.T) {
		args := []string{"-x", "1", "-y", "2"}
		assert.Empty(t, JsonConfigFlags(args))
	})

	t.Run("multiple flags, last wins", func(t *testing.T) {
		args := []string{"-c", "/path/1.json", "-config", "/path/2.json"}
		assert.Equal(t, "/path/2.json", JsonConfigFlags(args))
	})

	t.Run("equals form", func(t *testing.T) {
		args := []string{"upload", "-config=/path/eq.json"}
		assert.Equal(t, "/path/eq.json", JsonConfigFlags(args))
	})
}

func TestStringFlag(t *testing.T) {
	args := []string{"upload", "-env-file", "local.env", "-db", "x.db", "a.json"}

	assert.Equal(t, "local.env", StringFlag(args, "env-file"))
	assert.Equal(t, "x.db", StringFlag(args, "db"))
	assert.Empty(t, StringFlag(args, "missing"))
}

func TestEnvFileFlag(t *testing.T) {
	args := []string{"-env-file", "/tmp/.env.test"}
	assert.Equal(t, "/tmp/.env.test", EnvFileFlag(args))
}

func TestSplitArgs(t *testing.T) {
	kept, rest := SplitArgs(
		[]string{"upload", "-c", "conf.json", "a.json", "-log-level=debug", "b.pdf", "-x"},
		[]string{"-c", "-log-level"},
	)
	assert.Equal(t, []string{"-c", "conf.json", "-log-level=debug"}, kept)
	assert.Equal(t, []string{"upload", "a.json", "b.pdf", "-x"}, rest)
}
