package executor

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/fargate-executor/internal/apperror"
)

func TestBuildScript(t *testing.T) {
	t.Run("installs dependencies space separated", func(t *testing.T) {
		script, err := BuildScript(
			[]CodeBlock{{Code: "print('test')", Language: "python"}},
			[]string{"pandas", "requests"},
		)
		require.NoError(t, err)
		assert.Contains(t, script, "pip install")
		assert.Contains(t, script, "pandas requests")
	})

	t.Run("no dependencies means no pip", func(t *testing.T) {
		script, err := BuildScript([]CodeBlock{{Code: "print(1)", Language: "python"}}, nil)
		require.NoError(t, err)
		assert.NotContains(t, script, "pip install")
	})

	t.Run("blocks run in order", func(t *testing.T) {
		script, err := BuildScript([]CodeBlock{
			{Code: "print('first')", Language: "python"},
			{Code: "echo second", Language: "bash"},
			{Code: "console.log('third')", Language: "javascript"},
		}, nil)
		require.NoError(t, err)

		first := strings.Index(script, "python /tmp/code_0.py")
		second := strings.Index(script, "bash /tmp/code_1.sh")
		third := strings.Index(script, "node /tmp/code_2.js")
		assert.True(t, first >= 0 && second > first && third > second, "unexpected order:\n%s", script)
	})

	t.Run("bash blocks run under bash", func(t *testing.T) {
		script, err := BuildScript([]CodeBlock{
			{Code: "arr=(a b c)\necho ${arr[1]}", Language: "bash"},
			{Code: "echo plain", Language: "sh"},
		}, nil)
		require.NoError(t, err)
		assert.Contains(t, script, "\nbash /tmp/code_0.sh\n")
		assert.Contains(t, script, "\nsh /tmp/code_1.sh\n")
	})

	t.Run("code is embedded verbatim", func(t *testing.T) {
		code := "x = \"$HOME `id`\"\nprint(x)"
		script, err := BuildScript([]CodeBlock{{Code: code, Language: "py"}}, nil)
		require.NoError(t, err)
		assert.Contains(t, script, "<<'"+heredocMarker+"'\n"+code+"\n"+heredocMarker+"\n")
	})

	t.Run("odd dependency specs are quoted", func(t *testing.T) {
		script, err := BuildScript(
			[]CodeBlock{{Code: "pass", Language: "python"}},
			[]string{"numpy>=1.26", "requests"},
		)
		require.NoError(t, err)
		assert.Contains(t, script, "pip install --no-cache-dir 'numpy>=1.26' requests")
	})
}

func TestBuildScript_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		blocks []CodeBlock
	}{
		{name: "empty batch", blocks: nil},
		{name: "unknown language", blocks: []CodeBlock{{Code: "puts 1", Language: "ruby"}}},
		{name: "reserved marker", blocks: []CodeBlock{{Code: "a\n" + heredocMarker + "\nb", Language: "sh"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildScript(tt.blocks, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation), "got %v", err)
		})
	}
}

func TestLookupInterpreter(t *testing.T) {
	tests := []struct {
		language  string
		command   string
		extension string
	}{
		{" Python ", "python", "py"},
		{"sh", "sh", "sh"},
		{"shell", "sh", "sh"},
		{"BASH", "bash", "sh"},
		{"js", "node", "js"},
	}
	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			in, ok := LookupInterpreter(tt.language)
			require.True(t, ok)
			assert.Equal(t, tt.command, in.Command)
			assert.Equal(t, tt.extension, in.Extension)
		})
	}

	_, ok := LookupInterpreter("cobol")
	assert.False(t, ok)
}
