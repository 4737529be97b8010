package executor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sakif/fargate-executor/internal/apperror"
)

// heredocMarker terminates each block written by the generated script.
// A block whose source contains this line cannot be embedded safely.
const heredocMarker = "__FARGATE_EXEC_EOF__"

// Interpreter describes how a language is written to disk and run.
type Interpreter struct {
	Extension string
	Command   string
}

var interpreters = map[string]Interpreter{
	"python":     {Extension: "py", Command: "python"},
	"py":         {Extension: "py", Command: "python"},
	"python3":    {Extension: "py", Command: "python"},
	"sh":         {Extension: "sh", Command: "sh"},
	"bash":       {Extension: "sh", Command: "bash"},
	"shell":      {Extension: "sh", Command: "sh"},
	"javascript": {Extension: "js", Command: "node"},
	"js":         {Extension: "js", Command: "node"},
	"node":       {Extension: "js", Command: "node"},
}

// LookupInterpreter returns the interpreter for a language tag (case-insensitive).
func LookupInterpreter(language string) (Interpreter, bool) {
	in, ok := interpreters[strings.ToLower(strings.TrimSpace(language))]
	return in, ok
}

var safeShellWord = regexp.MustCompile(`^[A-Za-z0-9._=/:@+-]+$`)

// shellQuote leaves plain words alone and single-quotes everything else.
func shellQuote(s string) string {
	if safeShellWord.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// BuildScript renders the shell script that runs a batch inside a container.
//
// Dependencies are installed first with pip; a failed install aborts the
// script. Each block is then written to /tmp/code_<n>.<ext> and executed in
// order. Blocks do not stop on an earlier failure: the script exits with the
// status of the last block.
func BuildScript(blocks []CodeBlock, dependencies []string) (string, error) {
	if len(blocks) == 0 {
		return "", apperror.ValidationFailed("blocks", "at least one code block is required")
	}

	var b strings.Builder

	if len(dependencies) > 0 {
		quoted := make([]string, 0, len(dependencies))
		for _, dep := range dependencies {
			dep = strings.TrimSpace(dep)
			if dep == "" {
				continue
			}
			quoted = append(quoted, shellQuote(dep))
		}
		if len(quoted) > 0 {
			fmt.Fprintf(&b, "pip install --no-cache-dir %s || exit $?\n", strings.Join(quoted, " "))
		}
	}

	for i, block := range blocks {
		in, ok := LookupInterpreter(block.Language)
		if !ok {
			return "", apperror.ValidationFailed("language",
				fmt.Sprintf("unsupported language %q in block %d", block.Language, i))
		}
		if containsLine(block.Code, heredocMarker) {
			return "", apperror.ValidationFailed("code",
				fmt.Sprintf("block %d contains reserved line %s", i, heredocMarker))
		}

		path := fmt.Sprintf("/tmp/code_%d.%s", i, in.Extension)
		code := block.Code
		if !strings.HasSuffix(code, "\n") {
			code += "\n"
		}
		fmt.Fprintf(&b, "cat > %s <<'%s'\n%s%s\n", path, heredocMarker, code, heredocMarker)
		fmt.Fprintf(&b, "%s %s\n", in.Command, path)
	}

	return b.String(), nil
}

func containsLine(text, line string) bool {
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimRight(l, "\r") == line {
			return true
		}
	}
	return false
}
