package trcview

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// RenderOptions control Render.
type RenderOptions struct {
	// Indent is repeated once per depth. Default two spaces.
	Indent string

	// Timestamps prefixes each line with the event timestamp, in UTC.
	Timestamps bool

	// MaxDepth hides nodes deeper than this, if positive.
	MaxDepth int

	// Match, if set, only renders nodes whose message contains it, each
	// preceded by up to Context of its ancestors.
	Match   string
	Context int
}

// Render writes the tree as indented text, one node per line. Continuation
// lines of multi-line messages are indented to match their node.
func Render(w io.Writer, tree *Tree, opts RenderOptions) error {
	if opts.Indent == "" {
		opts.Indent = "  "
	}

	var show map[int]bool
	if opts.Match != "" {
		show = map[int]bool{}
		for idx := 0; idx < tree.Len(); idx++ {
			node, _ := tree.Node(idx)
			if !strings.Contains(node.Message, opts.Match) {
				continue
			}
			show[idx] = true
			for _, ancestor := range tree.Context(idx, opts.Context) {
				show[ancestor] = true
			}
		}
	}

	for idx := 0; idx < tree.Len(); idx++ {
		if show != nil && !show[idx] {
			continue
		}

		node, _ := tree.Node(idx)
		depth := tree.Depth(idx)
		if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
			continue
		}

		var prefix string
		if opts.Timestamps {
			prefix = FormatTimestamp(node.Timestamp) + " "
		}
		prefix += strings.Repeat(opts.Indent, depth)

		lines := strings.Split(node.Message, "\n")
		if _, err := fmt.Fprintf(w, "%s%s\n", prefix, lines[0]); err != nil {
			return err
		}
		cont := strings.Repeat(" ", len(prefix)+len(opts.Indent))
		for _, line := range lines[1:] {
			if _, err := fmt.Fprintf(w, "%s%s\n", cont, line); err != nil {
				return err
			}
		}
	}

	return nil
}

// FormatTimestamp renders a record timestamp, Unix seconds, as UTC time. The
// zero timestamp means the clock couldn't be read, and renders as dashes.
func FormatTimestamp(ts uint64) string {
	const layout = "15:04:05"
	if ts == 0 {
		return strings.Repeat("-", len(layout))
	}
	return time.Unix(int64(ts), 0).UTC().Format(layout)
}
