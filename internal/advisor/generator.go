// Package advisor turns computed statistics into user-facing narrative:
// spending reports, overspend alerts, budget recommendations and chat
// replies. The text backend is abstracted behind Generator so the same
// advisor works against any model provider (or none at all).
package advisor

import "context"

// Generator produces free text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// unavailableMessage is what users see when no model backend is configured.
const unavailableMessage = "AI unavailable -- set GEMINI_API_KEY in your environment."

type disabled struct{}

func (disabled) Generate(ctx context.Context, prompt string) (string, error) {
	return unavailableMessage, nil
}

// Disabled returns a Generator that politely declines every prompt. It keeps
// the rest of the service functional when no API key is configured.
func Disabled() Generator {
	return disabled{}
}
