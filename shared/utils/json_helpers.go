package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ToMap перекладывает значение (структуру или map) в map[string]interface{}
// через JSON. nil и JSON null дают пустую map.
func ToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal to map: %w", err)
	}
	return UnmarshalMap(data)
}

// UnmarshalMap разбирает JSON-объект. Пустые данные и null дают пустую map.
func UnmarshalMap(data []byte) (map[string]interface{}, error) {
	m := make(map[string]interface{})
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal map: %w", err)
	}
	if m == nil {
		m = make(map[string]interface{})
	}
	return m, nil
}

// FromMap перекладывает map (или любое значение) в структуру dest через JSON.
func FromMap(v interface{}, dest interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal map: %w", err)
	}
	return json.Unmarshal(data, dest)
}
