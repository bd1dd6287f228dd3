package llmservice

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Akphawee/accessible-library/internal/models"
)

// ErrContractViolation marks model output that is not the requested JSON shape.
var ErrContractViolation = errors.New("model output violates the response contract")

var thinkTag = regexp.MustCompile(models.ThinkTag)

// StripThinking removes <think> blocks some reasoning models emit.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkTag.ReplaceAllString(s, ""))
}

// StripCodeFences unwraps a response enclosed in a Markdown code fence,
// with or without a language tag. Anything else is returned trimmed.
func StripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return strings.TrimSpace(strings.Trim(trimmed, "`"))
	}
	// drop the opening fence line, then a trailing fence if present
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// MustCompileSchema compiles a JSON schema held in a string.
func MustCompileSchema(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		panic(fmt.Sprintf("failed to load schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// DecodeJSON cleans a model response, validates it against schema and
// decodes it into out. Every failure wraps ErrContractViolation.
func DecodeJSON(raw string, schema *jsonschema.Schema, out any) error {
	cleaned := StripCodeFences(StripThinking(raw))
	if cleaned == "" {
		return fmt.Errorf("%w: empty response", ErrContractViolation)
	}

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%w: %v", ErrContractViolation, err)
	}
	return nil
}
