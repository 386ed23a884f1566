package gateway

import "errors"

// ErrPromptRequired is returned by decodePrompt when the body is
// missing the prompt field.
var ErrPromptRequired = errors.New("prompt is required")
