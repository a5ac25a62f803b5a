package assistant

import "testing"

func TestMatches_Keyword(t *testing.T) {
	c := NewClassifier()

	for _, text := range []string{
		"how do I set up angular routing",
		"TypeScript generics are confusing",
		"anyone good with CSS here?",
	} {
		if !c.Matches(text) {
			t.Errorf("expected match for %q", text)
		}
	}
}

func TestMatches_CaseInsensitive(t *testing.T) {
	c := NewClassifier()

	if !c.Matches("ANGULAR is acting up") {
		t.Error("matching must be case-insensitive")
	}
	if !c.Matches("DoCkEr compose question") {
		t.Error("matching must be case-insensitive")
	}
}

func TestMatches_Substring(t *testing.T) {
	c := NewClassifier()

	// Substring match is intentional: "javascripting" still signals topic.
	if !c.Matches("we were javascripting all night") {
		t.Error("expected substring match")
	}
}

func TestMatches_NoKeyword(t *testing.T) {
	c := NewClassifier()

	for _, text := range []string{
		"what's for lunch?",
		"good morning everyone",
		"",
	} {
		if c.Matches(text) {
			t.Errorf("unexpected match for %q", text)
		}
	}
}

func TestMatches_CustomTerms(t *testing.T) {
	c := NewClassifierWithTerms([]string{"kubernetes"})

	if !c.Matches("my kubernetes pod keeps crashing") {
		t.Error("expected match for custom term")
	}
	if c.Matches("how do I set up angular routing") {
		t.Error("default terms must not apply to a custom classifier")
	}
}
