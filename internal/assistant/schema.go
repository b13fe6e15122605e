package assistant

import "github.com/sashabaranov/go-openai/jsonschema"

// Имена инструмента и формата ответа, которые видит модель.
const (
	ToolName        = "apply_admin_actions"
	ToolDescription = "Return assistantMessage and actions for the admin UI to apply."
	ResponseName    = "admin_ai_response"
)

// EnvelopeSchema - строгая JSON-схема конверта. value у действия - строка
// с JSON-payload внутри.
func EnvelopeSchema() jsonschema.Definition {
	return jsonschema.Definition{
		Type:                 jsonschema.Object,
		AdditionalProperties: false,
		Properties: map[string]jsonschema.Definition{
			"assistantMessage": {Type: jsonschema.String},
			"actions": {
				Type: jsonschema.Array,
				Items: &jsonschema.Definition{
					Type:                 jsonschema.Object,
					AdditionalProperties: false,
					Properties: map[string]jsonschema.Definition{
						"type":  {Type: jsonschema.String},
						"id":    {Type: jsonschema.String},
						"value": {Type: jsonschema.String},
					},
					Required: []string{"type", "id", "value"},
				},
			},
		},
		Required: []string{"assistantMessage", "actions"},
	}
}
