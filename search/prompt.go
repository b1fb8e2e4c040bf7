package search

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/lexrag/ai"
	"github.com/poiesic/lexrag/core"
)

const legalPrompt = `You are a legal assistant. Use the following context from legal documents to answer the user's question.

LEGAL CONTEXT:
%s

USER QUESTION: %s

INSTRUCTIONS:
- Base your answer on the provided legal context
- If the context doesn't contain relevant information, state that clearly
- Provide accurate legal information based on the documents
- When uncertain, recommend consulting with a qualified lawyer`

// BuildContext formats results as "[Source: <source> (relevance: 0.87)]"
// blocks in rank order. A block that would push the total past maxChars
// characters ends the context.
func BuildContext(results []*core.SearchResult, maxChars int) string {
	parts := make([]string, 0, len(results))
	total := 0
	for _, r := range results {
		block := fmt.Sprintf("[Source: %s (relevance: %.2f)]\n%s\n", r.Entry.Source, r.Score, r.Entry.Text)
		n := utf8.RuneCountInString(block)
		if total+n > maxChars {
			break
		}
		parts = append(parts, block)
		total += n
	}
	return strings.Join(parts, "\n")
}

// BuildPrompt wraps question in the legal-assistant template around the
// context built from results. Without results the bare question is returned.
func BuildPrompt(question string, results []*core.SearchResult, maxChars int) ai.Prompt {
	question = strings.TrimSpace(question)
	if len(results) == 0 {
		return ai.Prompt{User: question}
	}
	return ai.Prompt{User: fmt.Sprintf(legalPrompt, BuildContext(results, maxChars), question)}
}
