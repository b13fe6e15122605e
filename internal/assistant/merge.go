package assistant

import (
	"strconv"
	"strings"
)

// DeepMerge рекурсивно накладывает patch на base. Вложенные объекты
// сливаются, массивы и скаляры (включая nil) заменяются целиком. Если base
// или patch не объект, возвращается patch, а при patch == nil - base.
// Исходные значения не изменяются.
func DeepMerge(base, patch any) any {
	baseMap, baseOK := base.(map[string]any)
	patchMap, patchOK := patch.(map[string]any)
	if !baseOK || !patchOK {
		if patch == nil {
			return base
		}
		return patch
	}

	out := make(map[string]any, len(baseMap)+len(patchMap))
	for k, v := range baseMap {
		out[k] = v
	}
	for k, v := range patchMap {
		if _, isList := v.([]any); isList {
			out[k] = v
			continue
		}
		cur, curIsMap := out[k].(map[string]any)
		next, nextIsMap := v.(map[string]any)
		if curIsMap && nextIsMap {
			out[k] = DeepMerge(cur, next)
			continue
		}
		out[k] = v
	}
	return out
}

// SetNestedValue записывает value по пути вида "home.sections.0.imageUrl" и
// возвращает новый объект. Каждый промежуточный объект копируется, так что
// соседние ключи сохраняются, а base не изменяется. Промежуточное значение,
// которое не является контейнером, заменяется пустым объектом; массив с
// корректным числовым индексом копируется, и запись идет внутрь него.
func SetNestedValue(base map[string]any, path string, value any) map[string]any {
	parts := splitPath(path)
	if len(parts) == 0 {
		return base
	}
	root := copyMap(base)
	setIn(root, parts, value)
	return root
}

func splitPath(path string) []string {
	raw := strings.Split(path, ".")
	parts := raw[:0]
	for _, p := range raw {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// setIn пишет value в container (уже скопированный map или slice).
func setIn(container any, parts []string, value any) {
	key := parts[0]
	last := len(parts) == 1

	switch c := container.(type) {
	case map[string]any:
		if last {
			c[key] = value
			return
		}
		child := cloneContainer(c[key], parts[1])
		c[key] = child
		setIn(child, parts[1:], value)
	case []any:
		idx, _ := arrayIndex(key, len(c))
		if last {
			c[idx] = value
			return
		}
		child := cloneContainer(c[idx], parts[1])
		c[idx] = child
		setIn(child, parts[1:], value)
	}
}

// cloneContainer копирует промежуточное значение. nextKey - следующий
// сегмент пути: массив сохраняется, только если это допустимый индекс.
func cloneContainer(existing any, nextKey string) any {
	switch v := existing.(type) {
	case map[string]any:
		return copyMap(v)
	case []any:
		if _, ok := arrayIndex(nextKey, len(v)); ok {
			out := make([]any, len(v))
			copy(out, v)
			return out
		}
	}
	return map[string]any{}
}

func arrayIndex(key string, length int) (int, bool) {
	idx, err := strconv.Atoi(key)
	if err != nil || idx < 0 || idx >= length {
		return 0, false
	}
	return idx, true
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// NormalizeLinks приводит поле links документа к словарю label -> url.
// Массив [{label, url|href}] превращается в словарь (пары с пустой меткой
// или адресом отбрасываются); объект остается как есть; пустое или иное
// значение удаляет поле. Документ изменяется на месте.
func NormalizeLinks(doc map[string]any) {
	raw, present := doc["links"]
	if !present {
		return
	}
	switch v := raw.(type) {
	case []any:
		links := make(map[string]any, len(v))
		for _, item := range v {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			label := strings.TrimSpace(stringField(entry, "label"))
			url := stringField(entry, "url")
			if url == "" {
				url = stringField(entry, "href")
			}
			url = strings.TrimSpace(url)
			if label != "" && url != "" {
				links[label] = url
			}
		}
		if len(links) > 0 {
			doc["links"] = links
			return
		}
	case map[string]any:
		return
	}
	delete(doc, "links")
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
