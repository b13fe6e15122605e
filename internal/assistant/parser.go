package assistant

import (
	"encoding/json"
	"strings"

	"foundry/shared/utils"
)

const (
	// ProposedActionsMessage подставляется, когда действия найдены, а текста нет.
	ProposedActionsMessage = "Proposed actions ready."

	fallbackMessageLimit = 400
	codeFence            = "```"
)

// parseState - результат попытки разбора ответа модели.
type parseState int

const (
	stateUnparsed parseState = iota // ничего не разобрано
	stateLoose                      // JSON разобран, но это не конверт
	stateValid                      // объект со строковым assistantMessage и массивом actions
)

type parseResult struct {
	state   parseState
	value   any
	message string
	actions any
}

// ParseResponse восстанавливает конверт {assistantMessage, actions} из
// произвольного текста модели: строгий JSON, JSON в markdown-блоке, JSON
// внутри прозы или просто проза. Никогда не паникует; Actions не бывает nil.
func ParseResponse(raw string) Envelope {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Envelope{Actions: []Action{}}
	}

	res := classify(locateJSON(trimmed))
	switch res.state {
	case stateValid:
		actions := NormalizeActions(extractActions(res.actions))
		if len(actions) == 0 && res.message != "" {
			if env, ok := recoverEmbedded(res.message); ok {
				return env
			}
		}
		return Envelope{AssistantMessage: res.message, Actions: actions}
	case stateLoose:
		if env, ok := readLoose(res.value); ok {
			return env
		}
	}

	// Последняя попытка: любой объект с массивом actions внутри текста.
	if obj, ok := findJSONObject(trimmed).(map[string]any); ok {
		if list, ok := obj["actions"].([]any); ok {
			if actions := NormalizeActions(list); len(actions) > 0 {
				return Envelope{AssistantMessage: ProposedActionsMessage, Actions: actions}
			}
		}
	}

	return Envelope{AssistantMessage: utils.Truncate(trimmed, fallbackMessageLimit), Actions: []Action{}}
}

// locateJSON пробует прямой разбор, затем содержимое ``` блока, затем поиск
// сбалансированного объекта в тексте. Возвращает nil, если ничего не нашлось.
func locateJSON(trimmed string) any {
	if v := attemptParse(trimmed); v != nil {
		return v
	}
	if strings.HasPrefix(trimmed, codeFence) {
		if fenceEnd := strings.LastIndex(trimmed, codeFence); fenceEnd > len(codeFence) {
			start := strings.Index(trimmed, "\n") + 1
			if start <= fenceEnd {
				inner := strings.TrimSpace(trimmed[start:fenceEnd])
				if v := attemptParse(inner); v != nil {
					return v
				}
				if v := findJSONObject(inner); v != nil {
					return v
				}
			}
		}
	}
	return findJSONObject(trimmed)
}

func classify(v any) parseResult {
	if v == nil {
		return parseResult{state: stateUnparsed}
	}
	if obj, ok := v.(map[string]any); ok {
		msg, msgOK := obj["assistantMessage"].(string)
		actions, present := obj["actions"]
		_, isList := actions.([]any)
		if msgOK && (!present || isList) {
			return parseResult{state: stateValid, message: msg, actions: actions}
		}
	}
	return parseResult{state: stateLoose, value: v}
}

// readLoose - разрешающее чтение объекта, который не прошел проверку конверта.
func readLoose(v any) (Envelope, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Envelope{}, false
	}
	actions := NormalizeActions(extractActions(obj["actions"]))
	msg, _ := obj["assistantMessage"].(string)

	if len(actions) == 0 && msg != "" {
		if env, ok := recoverEmbedded(msg); ok {
			return env, true
		}
	}
	if msg != "" || len(actions) > 0 {
		return Envelope{AssistantMessage: msg, Actions: actions}, true
	}
	return Envelope{}, false
}

// recoverEmbedded достает действия из JSON, который модель вложила прямо
// в текст assistantMessage.
func recoverEmbedded(msg string) (Envelope, bool) {
	embedded, ok := findJSONObject(msg).(map[string]any)
	if !ok {
		return Envelope{}, false
	}
	actions := NormalizeActions(extractActions(embedded["actions"]))
	if len(actions) == 0 {
		return Envelope{}, false
	}
	embeddedMsg, _ := embedded["assistantMessage"].(string)
	if embeddedMsg == "" {
		embeddedMsg = ProposedActionsMessage
	}
	return Envelope{AssistantMessage: embeddedMsg, Actions: actions}, true
}

// extractActions возвращает сырой массив действий: сам массив, либо массив
// из JSON-строки (в том числе объект с полем actions).
func extractActions(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case string:
		parsed := attemptParse(val)
		if parsed == nil {
			parsed = findJSONObject(val)
		}
		switch p := parsed.(type) {
		case []any:
			return p
		case map[string]any:
			if list, ok := p["actions"].([]any); ok {
				return list
			}
		}
	}
	return nil
}

// attemptParse разбирает JSON и возвращает nil при ошибке или "ложном"
// результате (null, false, 0, "").
func attemptParse(text string) any {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil
	}
	if isFalsy(v) {
		return nil
	}
	return v
}

func isFalsy(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case bool:
		return !val
	case float64:
		return val == 0
	case string:
		return val == ""
	}
	return false
}

// findJSONObject ищет первый сбалансированный {...}, который разбирается как
// JSON. Фигурные скобки внутри строковых литералов не учитываются.
func findJSONObject(text string) any {
	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start != -1 {
				if v := attemptParse(text[start : i+1]); v != nil {
					return v
				}
				start = -1
			}
		}
	}
	return nil
}
