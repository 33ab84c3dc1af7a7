package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/todmy/docguard/pkg/models"
)

// Validator is implemented by response types that check their own invariants
// after decoding. A failing Validate makes the response a parse failure.
type Validator interface {
	Validate() error
}

// The closing fence must start a line, so fences quoted inside JSON strings
// (where newlines are escaped) do not end the block.
var fencedBlock = regexp.MustCompile("(?s)```(?:json|JSON)?[ \t]*\n(.*?)\n[ \t]*```")

// GenerateJSON calls the oracle and decodes the fenced JSON block in its answer into T.
// Usage is returned even when decoding fails, since the tokens were spent.
func GenerateJSON[T any](ctx context.Context, g Generator, req Request) (T, models.Usage, error) {
	var out T

	if req.Schema != "" {
		req.System = strings.TrimSpace(req.System) + "\n\nRespond with a single ```json fenced block matching this schema:\n" + req.Schema
	}

	completion, err := g.Generate(ctx, req)
	if err != nil {
		return out, models.Usage{}, err
	}
	usage := completion.Usage()

	if err := DecodeJSON(completion.Text, &out); err != nil {
		return out, usage, err
	}
	return out, usage, nil
}

// DecodeJSON extracts the JSON payload from oracle text and decodes it into v.
// When the fenced block does not decode, the first complete value starting
// at the first brace or bracket of text is tried instead.
func DecodeJSON(text string, v any) error {
	var candidates []string
	if body := fencedBody(text); body != "" {
		candidates = append(candidates, body)
	}
	if start := strings.IndexAny(text, "{["); start >= 0 {
		candidates = append(candidates, text[start:])
	}
	if len(candidates) == 0 {
		return fmt.Errorf("%w: no JSON payload in response", models.ErrOracleParse)
	}

	var raw json.RawMessage
	var decodeErr error
	for _, payload := range candidates {
		if decodeErr = json.NewDecoder(strings.NewReader(payload)).Decode(&raw); decodeErr == nil {
			break
		}
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: %v", models.ErrOracleParse, decodeErr)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", models.ErrOracleParse, err)
	}

	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("%w: %v", models.ErrOracleParse, err)
		}
	}
	return nil
}

func fencedBody(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ExtractJSON returns the first fenced block, or failing that the outermost
// object or array found in text. Returns "" when nothing looks like JSON.
func ExtractJSON(text string) string {
	if body := fencedBody(text); body != "" {
		return body
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return ""
	}
	return strings.TrimSpace(text[start : end+1])
}
