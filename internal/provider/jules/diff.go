// ABOUTME: Summarizes unified diffs returned in Jules change sets
// ABOUTME: Parses the patch with go-gitdiff to count changed lines and list touched files

package jules

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/2389/coven-cloudworker/internal/provider"
)

// summarizePatch builds a UnifiedPatch from raw diff text. files overrides the
// file list parsed from the diff headers when non-empty. On a parse error the
// returned patch still carries the content and explicit files.
func summarizePatch(content string, files []string) (*provider.UnifiedPatch, error) {
	p := &provider.UnifiedPatch{Content: content}
	if len(files) > 0 {
		p.FilesChanged = append([]string(nil), files...)
	}

	parsed, _, err := gitdiff.Parse(strings.NewReader(content))
	if err != nil {
		return p, fmt.Errorf("parsing patch: %w", err)
	}

	var names []string
	seen := map[string]bool{}
	for _, f := range parsed {
		for _, frag := range f.TextFragments {
			p.Additions += int(frag.LinesAdded)
			p.Deletions += int(frag.LinesDeleted)
		}
		name := diffPath(f)
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	if len(files) == 0 {
		p.FilesChanged = names
	}
	return p, nil
}

// diffPath names the file a diff touches. Deleted files keep their old name.
// Names from plain unified headers may still carry an a/ or b/ prefix.
func diffPath(f *gitdiff.File) string {
	name := f.NewName
	if f.IsDelete || name == "" {
		name = f.OldName
	}
	for _, prefix := range []string{"a/", "b/"} {
		if trimmed, ok := strings.CutPrefix(name, prefix); ok {
			return trimmed
		}
	}
	return name
}
