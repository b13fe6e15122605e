package mocks

import (
	"io"

	"foundry/shared/models"
)

// ChatStream отдает заранее заданные куски, затем Err (или io.EOF).
type ChatStream struct {
	Chunks     []string
	Err        error
	TokenUsage models.TokenUsage
	Closed     bool
	pos        int
}

func (s *ChatStream) Recv() (string, error) {
	if s.pos < len(s.Chunks) {
		chunk := s.Chunks[s.pos]
		s.pos++
		return chunk, nil
	}
	if s.Err != nil {
		return "", s.Err
	}
	return "", io.EOF
}

func (s *ChatStream) Usage() models.TokenUsage { return s.TokenUsage }

func (s *ChatStream) Close() error {
	s.Closed = true
	return nil
}
