package notify

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	md         = goldmark.New(goldmark.WithExtensions(extension.Table))
	htmlPolicy = bluemonday.UGCPolicy()
)

// cellEscaper backslash-escapes characters that markdown would interpret
// inside a table cell.
var cellEscaper = strings.NewReplacer(
	`\`, `\\`,
	"|", `\|`,
	"`", "\\`",
	"*", `\*`,
	"_", `\_`,
	"<", `\<`,
	">", `\>`,
	"[", `\[`,
	"]", `\]`,
	"\n", " ",
)

// Markdown renders the notice as a markdown document: a heading, a table
// of identifiers and fields, and the detail in a fenced block.
func (n Notice) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", cellEscaper.Replace(string(n.Kind)))
	b.WriteString("| field | value |\n| --- | --- |\n")
	row := func(k, v string) {
		fmt.Fprintf(&b, "| %s | %s |\n", cellEscaper.Replace(k), cellEscaper.Replace(v))
	}
	row("job_id", n.JobID)
	row("job_type", n.JobType)
	row("reference_id", n.ReferenceID)
	if !n.At.IsZero() {
		row("at", n.At.UTC().Format(time.RFC3339))
	}
	for _, k := range slices.Sorted(maps.Keys(n.Fields)) {
		row(k, n.Fields[k])
	}
	if n.Detail != "" {
		fence := strings.Repeat("`", max(3, longestRun(n.Detail, '`')+1))
		fmt.Fprintf(&b, "\n%s\n%s\n%s\n", fence, n.Detail, fence)
	}
	return b.String()
}

// renderHTML converts the notice markdown to sanitized HTML.
func renderHTML(n Notice) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(n.Markdown()), &buf); err != nil {
		return "", errors.Join(ErrRenderFailed, err)
	}
	return htmlPolicy.Sanitize(buf.String()), nil
}

func longestRun(s string, c byte) int {
	var best, cur int
	for i := 0; i < len(s); i++ {
		if s[i] != c {
			cur = 0
			continue
		}
		cur++
		best = max(best, cur)
	}
	return best
}
