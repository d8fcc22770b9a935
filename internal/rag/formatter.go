package rag

import (
	"strings"

	"github.com/samber/lo"

	"github.com/hunterwarburton/taxassist/internal/core"
)

// ContextSeparator separates passages in the assembled context.
const ContextSeparator = "\n\n"

// AssembleContext joins chunk texts closest first. An empty result yields "",
// which tells the pipeline to skip generation.
func AssembleContext(result core.RetrievalResult) string {
	if len(result) == 0 {
		return ""
	}
	texts := lo.Map(result, func(m core.Match, _ int) string { return m.Text })
	return strings.Join(texts, ContextSeparator)
}
