package transport

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// CommandSchema is the JSON Schema for structured commands.
const CommandSchema = `{
  "type": "object",
  "properties": {
    "action":   {"type": "string", "minLength": 1, "pattern": "^[A-Za-z_]+$"},
    "optionId": {"type": "string", "minLength": 1},
    "data":     {"type": "object"}
  },
  "anyOf": [
    {"required": ["action"]},
    {"required": ["optionId"]}
  ]
}`

// argumentKeys are the data fields read, in order, as the command argument.
var argumentKeys = []string{"target", "direction", "location", "character", "choice", "slot"}

// CommandParser normalizes inbound messages to textual commands.
type CommandParser struct {
	schema *gojsonschema.Schema
}

// NewCommandParser compiles CommandSchema.
func NewCommandParser() (*CommandParser, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(CommandSchema))
	if err != nil {
		return nil, fmt.Errorf("compile command schema: %w", err)
	}
	return &CommandParser{schema: schema}, nil
}

// Parse returns the textual command for msg.
//
// Messages that do not start with '{' are trimmed and passed through.
// JSON messages must satisfy CommandSchema; "optionId" becomes
// "choose <id>" and "action" becomes "<action> <argument>", where the
// argument is the first of data.target, data.direction, data.location,
// data.character, data.choice or data.slot that is present.
func (p *CommandParser) Parse(msg []byte) (string, error) {
	text := strings.TrimSpace(string(msg))
	if text == "" {
		return "", fmt.Errorf("%w: empty message", ErrInvalidCommand)
	}
	if !strings.HasPrefix(text, "{") {
		return text, nil
	}

	if !gjson.Valid(text) {
		return "", fmt.Errorf("%w: malformed JSON", ErrInvalidCommand)
	}

	result, err := p.schema.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return "", fmt.Errorf("%w: %s", ErrInvalidCommand, strings.Join(msgs, "; "))
	}

	doc := gjson.Parse(text)
	if opt := doc.Get("optionId"); opt.Exists() {
		return "choose " + opt.String(), nil
	}

	cmd := strings.ToLower(doc.Get("action").String())
	data := doc.Get("data")
	for _, key := range argumentKeys {
		if arg := data.Get(key); arg.Exists() && arg.String() != "" {
			return cmd + " " + arg.String(), nil
		}
	}
	return cmd, nil
}
