package chat

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/suPer8Hu/appgen/internal/ai"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// toProviderMessages checks every stored row before it is sent to a model.
// One bad row rejects the whole history.
func toProviderMessages(history []Message) ([]ai.Message, error) {
	out := make([]ai.Message, 0, len(history))
	for _, m := range history {
		if err := validate.Struct(m); err != nil {
			return nil, fmt.Errorf("%w: message %s at position %d: %v", ErrInvalidHistory, m.ID, m.Position, err)
		}
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}
