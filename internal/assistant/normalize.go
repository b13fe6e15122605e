package assistant

import (
	"encoding/json"
	"strings"
)

// NormalizeActions приводит сырой массив действий модели к списку Action.
// Элементы без типа, удаления без id и действия без пригодного value
// отбрасываются; порядок остальных сохраняется.
func NormalizeActions(items []any) []Action {
	out := make([]Action, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		typ, _ := raw["type"].(string)
		typ = strings.TrimSpace(typ)
		if typ == "" {
			continue
		}

		if strings.HasSuffix(typ, ".delete") {
			id, _ := raw["id"].(string)
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, newAction(typ, id, nil))
			}
			continue
		}

		switch v := raw["value"].(type) {
		case map[string]any, []any:
			out = append(out, newAction(typ, "", v))
		case string:
			if text := strings.TrimSpace(v); text != "" {
				out = append(out, newAction(typ, "", parseActionValue(text)))
			}
		}
	}
	return out
}

// parseActionValue декодирует value, пришедший строкой. Дважды
// закодированный объект или массив раскрывается; невалидный JSON
// остается исходной строкой.
func parseActionValue(text string) any {
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return text
	}
	s, ok := parsed.(string)
	if !ok {
		return parsed
	}
	inner := strings.TrimSpace(s)
	if (strings.HasPrefix(inner, "{") && strings.HasSuffix(inner, "}")) ||
		(strings.HasPrefix(inner, "[") && strings.HasSuffix(inner, "]")) {
		var decoded any
		if err := json.Unmarshal([]byte(inner), &decoded); err == nil {
			return decoded
		}
	}
	return parsed
}
