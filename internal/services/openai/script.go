package openai

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"nator/internal/providers"
)

const systemPrompt = `You write narration for 30 to 60 second vertical videos.
Respond with JSON only, shaped as {"text": string, "hashtags": [string]}.
"text" is the spoken narration: plain sentences, no emoji, no stage directions, under 120 words.
"hashtags" holds 3 to 6 tags, each starting with "#" and containing no spaces.`

const scriptSchema = `{
  "type": "object",
  "required": ["text", "hashtags"],
  "properties": {
    "text": {"type": "string", "minLength": 1},
    "hashtags": {
      "type": "array",
      "maxItems": 10,
      "items": {"type": "string", "pattern": "^#[^\\s#]+$"}
    }
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("script.json", strings.NewReader(scriptSchema)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile("script.json")
	})
	return compiledSchema, compileErr
}

type scriptPayload struct {
	Text     string   `json:"text"`
	Hashtags []string `json:"hashtags"`
}

// decodeScript validates content against the script schema and converts it.
func decodeScript(content string) (providers.Script, error) {
	raw := []byte(stripCodeFence(content))
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return providers.Script{}, fmt.Errorf("decode script json: %w", err)
	}
	s, err := schema()
	if err != nil {
		return providers.Script{}, err
	}
	if err := s.Validate(generic); err != nil {
		return providers.Script{}, fmt.Errorf("script does not match schema: %w", err)
	}
	var payload scriptPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return providers.Script{}, fmt.Errorf("decode script: %w", err)
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return providers.Script{}, fmt.Errorf("script text is blank")
	}
	return providers.Script{Text: text, Hashtags: payload.Hashtags}, nil
}

// stripCodeFence removes a surrounding markdown code fence, which some
// models add even in JSON mode.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
