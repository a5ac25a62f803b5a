// Package assistant implements the LLM-backed assistant collaborator:
// a keyword classifier that spots programming-related questions and a
// completion client for the Gemini generateContent API.
package assistant

import "strings"

// programmingTerms is the topic list used to classify a message as a
// programming question. Matching is case-insensitive substring search.
var programmingTerms = []string{
	"angular",
	"typescript",
	"javascript",
	"node",
	"express",
	"react",
	"vue",
	"frontend",
	"backend",
	"full stack",
	"http",
	"api",
	"database",
	"sql",
	"nosql",
	"html",
	"css",
	"golang",
	"docker",
}

// Classifier decides whether a message should trigger an automated
// reply. It is deliberately cheap: a local keyword scan, no network.
type Classifier struct {
	terms []string
}

// NewClassifier creates a Classifier with the default topic list.
func NewClassifier() *Classifier {
	return &Classifier{terms: programmingTerms}
}

// NewClassifierWithTerms creates a Classifier with a custom topic list.
func NewClassifierWithTerms(terms []string) *Classifier {
	return &Classifier{terms: terms}
}

// Matches reports whether text mentions any known programming topic.
func (c *Classifier) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range c.terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
