package tools

import (
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/xonecas/agentcore/internal/messagestore"
)

// computeHunks turns a before/after file pair into the line-level hunks a
// Diff block renders, via the same myers-diff path the teacher used to
// render LLM-facing diffs (originally in tui/messages.go, moved here so a
// hunk is computed at the point of the edit rather than at display time).
func computeHunks(path, before, after string) []messagestore.Hunk {
	edits := myers.ComputeEdits(span.URIFromPath(path), before, after)
	unified := gotextdiff.ToUnified(path, path, before, edits)

	var hunks []messagestore.Hunk
	for _, h := range unified.Hunks {
		for _, line := range h.Lines {
			switch line.Kind {
			case gotextdiff.Delete:
				hunks = append(hunks, messagestore.Hunk{Value: line.Content, Removed: true})
			case gotextdiff.Insert:
				hunks = append(hunks, messagestore.Hunk{Value: line.Content, Added: true})
			default:
				hunks = append(hunks, messagestore.Hunk{Value: line.Content})
			}
		}
	}
	return hunks
}
