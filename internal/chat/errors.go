package chat

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrChatNotFound    = fmt.Errorf("chat %w", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("message %w", ErrNotFound)
	ErrJobNotFound     = fmt.Errorf("job %w", ErrNotFound)

	ErrInvalidRequest        = errors.New("invalid request")
	ErrInvalidHistory        = errors.New("invalid message history")
	ErrScreenshotUnsupported = errors.New("screenshot to code is not supported with the self-hosted model")
	ErrArchitectUnsupported  = errors.New("high quality generation is not supported with the self-hosted model")
	ErrStreamInProgress      = errors.New("a completion is already streaming for this chat")
	ErrStreamUnsupported     = errors.New("provider does not support streaming")
)
