package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"research_pipeline/internal/domain"
)

// ParseError means the model did not return the expected JSON envelope.
// Callers recover by using the raw response text.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse formatted response: %s: %v", e.Reason, e.Err)
	}
	return "parse formatted response: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// BuildFormattingPrompt assembles the user prompt for formatting an article.
func BuildFormattingPrompt(a *domain.Article) string {
	var sb strings.Builder

	sb.WriteString("Format the following research article for publication on the Kaiville Research Center.\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", a.Title)
	if a.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", a.Category)
	}
	if a.Template != "" {
		fmt.Fprintf(&sb, "Template: %s\n", a.Template)
	}
	if a.Abstract != nil && strings.TrimSpace(*a.Abstract) != "" {
		fmt.Fprintf(&sb, "Abstract: %s\n", strings.TrimSpace(*a.Abstract))
	}

	sb.WriteString("\nRules:\n")
	sb.WriteString("- Keep every sentence of the original text. Do not summarize or drop content.\n")
	sb.WriteString("- Use Markdown headings, lists and emphasis where they fit the template.\n")
	sb.WriteString("- Respond with a single JSON object: {\"formattedContent\": \"<markdown>\"}.\n")

	sb.WriteString("\n--- BEGIN CONTENT ---\n")
	sb.WriteString(a.RawContent)
	sb.WriteString("\n--- END CONTENT ---\n")

	return sb.String()
}

type formattedEnvelope struct {
	FormattedContent *string `json:"formattedContent"`
}

// ParseFormattedResponse extracts formattedContent from a model response.
// The envelope may be wrapped in a Markdown code fence or surrounded by prose.
func ParseFormattedResponse(raw string) (string, error) {
	text := stripCodeFence(strings.TrimSpace(raw))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", &ParseError{Reason: "no json object in response"}
	}

	var env formattedEnvelope
	if err := json.Unmarshal([]byte(text[start:end+1]), &env); err != nil {
		return "", &ParseError{Reason: "invalid json", Err: err}
	}
	if env.FormattedContent == nil {
		return "", &ParseError{Reason: "missing formattedContent field"}
	}
	if strings.TrimSpace(*env.FormattedContent) == "" {
		return "", &ParseError{Reason: "empty formattedContent"}
	}
	return *env.FormattedContent, nil
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, "```")
}
