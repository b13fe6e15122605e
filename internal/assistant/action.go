package assistant

import (
	"encoding/json"
	"strings"
)

// Типы действий, которые ассистент может предложить администратору.
const (
	TypeConfigMerge    = "config.merge"
	TypePlatformUpsert = "platform.upsert"
	TypeTopicUpsert    = "topic.upsert"
	TypeNewsUpsert     = "news.upsert"
	TypePlatformDelete = "platform.delete"
	TypeTopicDelete    = "topic.delete"
	TypeNewsDelete     = "news.delete"
	TypeMediaGenerate  = "media.generate"
)

// ContentKind - вид контента, над которым выполняется upsert/delete.
type ContentKind string

const (
	KindPlatform ContentKind = "platform"
	KindTopic    ContentKind = "topic"
	KindNews     ContentKind = "news"
)

// Action - закрытый набор действий. Реализации: ConfigMerge, ContentUpsert,
// ContentDelete, MediaGenerate и Unsupported.
type Action interface {
	// Type возвращает строковый тип действия ("config.merge", "news.delete", ...).
	Type() string
	isAction()
}

// ConfigMerge - глубокое слияние патча с глобальной конфигурацией.
type ConfigMerge struct {
	Patch any
}

// ContentUpsert - полная замена документа платформы, темы или новости.
type ContentUpsert struct {
	Kind  ContentKind
	Value any
}

// ContentDelete - удаление документа по id.
type ContentDelete struct {
	Kind ContentKind
	ID   string
}

// MediaGenerate - генерация изображения и запись его URL в поле цели.
type MediaGenerate struct {
	Value any
}

// Unsupported - действие неизвестного типа. Сохраняется, чтобы администратор
// видел его в превью; движок применения его отклоняет.
type Unsupported struct {
	RawType string
	ID      string
	Value   any
}

func (ConfigMerge) Type() string     { return TypeConfigMerge }
func (a ContentUpsert) Type() string { return string(a.Kind) + ".upsert" }
func (a ContentDelete) Type() string { return string(a.Kind) + ".delete" }
func (MediaGenerate) Type() string   { return TypeMediaGenerate }
func (a Unsupported) Type() string   { return a.RawType }

func (ConfigMerge) isAction()   {}
func (ContentUpsert) isAction() {}
func (ContentDelete) isAction() {}
func (MediaGenerate) isAction() {}
func (Unsupported) isAction()   {}

type valueWire struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

type idWire struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// wireValue готовит value к сериализации. Объекты и массивы пишутся как есть,
// остальное (строки, числа, bool, null) кодируется в JSON-строку, чтобы
// повторный разбор NormalizeActions вернул то же значение.
func wireValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		return v
	}
	return string(data)
}

func (a ConfigMerge) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueWire{Type: a.Type(), Value: wireValue(a.Patch)})
}

func (a ContentUpsert) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueWire{Type: a.Type(), Value: wireValue(a.Value)})
}

func (a ContentDelete) MarshalJSON() ([]byte, error) {
	return json.Marshal(idWire{Type: a.Type(), ID: a.ID})
}

func (a MediaGenerate) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueWire{Type: a.Type(), Value: wireValue(a.Value)})
}

func (a Unsupported) MarshalJSON() ([]byte, error) {
	if strings.HasSuffix(a.RawType, ".delete") {
		return json.Marshal(idWire{Type: a.RawType, ID: a.ID})
	}
	return json.Marshal(valueWire{Type: a.RawType, Value: wireValue(a.Value)})
}

// Envelope - ответ ассистента: сообщение и предложенные действия.
type Envelope struct {
	AssistantMessage string   `json:"assistantMessage"`
	Actions          []Action `json:"actions"`
}

// MarshalJSON гарантирует, что actions сериализуется как [] даже для nil.
func (e Envelope) MarshalJSON() ([]byte, error) {
	actions := e.Actions
	if actions == nil {
		actions = []Action{}
	}
	return json.Marshal(struct {
		AssistantMessage string   `json:"assistantMessage"`
		Actions          []Action `json:"actions"`
	}{e.AssistantMessage, actions})
}

// newAction сопоставляет уже нормализованный элемент одному из вариантов Action.
func newAction(typ, id string, value any) Action {
	switch typ {
	case TypeConfigMerge:
		return ConfigMerge{Patch: value}
	case TypePlatformUpsert:
		return ContentUpsert{Kind: KindPlatform, Value: value}
	case TypeTopicUpsert:
		return ContentUpsert{Kind: KindTopic, Value: value}
	case TypeNewsUpsert:
		return ContentUpsert{Kind: KindNews, Value: value}
	case TypePlatformDelete:
		return ContentDelete{Kind: KindPlatform, ID: id}
	case TypeTopicDelete:
		return ContentDelete{Kind: KindTopic, ID: id}
	case TypeNewsDelete:
		return ContentDelete{Kind: KindNews, ID: id}
	case TypeMediaGenerate:
		return MediaGenerate{Value: value}
	default:
		return Unsupported{RawType: typ, ID: id, Value: value}
	}
}
