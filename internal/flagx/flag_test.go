package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		flagNames []string
		want      []string
	}{
		{
			name:      "split form keeps flag and value",
			args:      []string{"-c", "vault.json", "-a", "https://vault.example.com"},
			flagNames: []string{"-c", "-config"},
			want:      []string{"-c", "vault.json"},
		},
		{
			name:      "combined form kept whole",
			args:      []string{"-config=vault.json", "-debug"},
			flagNames: []string{"-c", "-config"},
			want:      []string{"-config=vault.json"},
		},
		{
			name:      "foreign flags dropped",
			args:      []string{"-debug", "-t=5s", "positional"},
			flagNames: []string{"-c", "-config"},
			want:      []string{},
		},
		{
			name:      "original order preserved across repeats",
			args:      []string{"-config=first.json", "-c", "second.json", "-f", "x.db"},
			flagNames: []string{"-c", "-config"},
			want:      []string{"-config=first.json", "-c", "second.json"},
		},
		{
			name:      "trailing flag without value survives alone",
			args:      []string{"-c"},
			flagNames: []string{"-c"},
			want:      []string{"-c"},
		},
		{
			name:      "dash-prefixed token is not consumed as a value",
			args:      []string{"-c", "-debug"},
			flagNames: []string{"-c", "-debug"},
			want:      []string{"-c", "-debug"},
		},
		{
			name:      "combined form may carry a dash-prefixed value",
			args:      []string{"-config=-odd.json"},
			flagNames: []string{"-config"},
			want:      []string{"-config=-odd.json"},
		},
		{
			name:      "several allowed flags with values",
			args:      []string{"-a", "https://vault.example.com", "-f", "vault.db", "-other", "x"},
			flagNames: []string{"-a", "-f"},
			want:      []string{"-a", "https://vault.example.com", "-f", "vault.db"},
		},
		{
			name:      "no arguments yields empty, not nil",
			args:      []string{},
			flagNames: []string{"-c"},
			want:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.flagNames))
		})
	}
}

func TestJsonConfigFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("shorthand", func(t *testing.T) {
		os.Args = []string{"passkeeper", "-c", "/etc/passkeeper/conf.json"}
		assert.Equal(t, "/etc/passkeeper/conf.json", JsonConfigFlags())
	})

	t.Run("long form", func(t *testing.T) {
		os.Args = []string{"passkeeper", "-config", "/etc/passkeeper/conf.json"}
		assert.Equal(t, "/etc/passkeeper/conf.json", JsonConfigFlags())
	})

	t.Run("absent", func(t *testing.T) {
		os.Args = []string{"passkeeper", "-debug", "-t", "5s"}
		assert.Empty(t, JsonConfigFlags())
	})

	t.Run("last occurrence wins", func(t *testing.T) {
		os.Args = []string{"passkeeper", "-c", "/tmp/one.json", "-config", "/tmp/two.json"}
		assert.Equal(t, "/tmp/two.json", JsonConfigFlags())
	})
}
