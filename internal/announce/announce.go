// Package announce renders the end-of-encounter leaderboard as chat lines.
package announce

import (
	"fmt"
	"strings"

	"github.com/mcdev12/jumpboard/internal/registry"
)

const (
	// DefaultTopK is the floor on how many ranked entries the winner posts.
	DefaultTopK = 5
	// DefaultMaxLineLen matches the host chat channel's line limit.
	DefaultMaxLineLen = 255

	trailer = "(jumpboard)"
)

type Options struct {
	TopK       int
	MaxLineLen int
}

func (o Options) withDefaults() Options {
	if o.TopK < DefaultTopK {
		o.TopK = DefaultTopK
	}
	if o.MaxLineLen <= 0 {
		o.MaxLineLen = DefaultMaxLineLen
	}
	return o
}

// Render formats the announcement: a header naming the encounter, ranked
// entries for the top-K standings chunked into lines no longer than
// MaxLineLen, and a fixed trailer. K is capped at the number of
// participants who jumped; no placeholder rows are emitted. With no
// standings at all, Render returns a single no-jumps line.
func Render(encounterName string, standings []registry.Participant, opts Options) []string {
	opts = opts.withDefaults()

	if len(standings) == 0 {
		return []string{fmt.Sprintf("Jump leaderboard - %s: no jumps recorded.", encounterName)}
	}

	k := opts.TopK
	if k > len(standings) {
		k = len(standings)
	}

	lines := []string{fmt.Sprintf("Jump leaderboard - %s:", encounterName)}
	var line strings.Builder
	for i := 0; i < k; i++ {
		entry := fmt.Sprintf("%d. %s (%d)", i+1, standings[i].Identity, standings[i].Count)
		if line.Len() == 0 {
			line.WriteString(entry)
			continue
		}
		if line.Len()+2+len(entry) > opts.MaxLineLen {
			lines = append(lines, line.String())
			line.Reset()
			line.WriteString(entry)
			continue
		}
		line.WriteString(", ")
		line.WriteString(entry)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return append(lines, trailer)
}
