package llm

import "context"

// Roles understood by every backend.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one role-tagged instruction.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a composed instruction payload. It carries no credentials.
type Request struct {
	Messages []Message
}

// System returns the system messages joined by blank lines.
func (r Request) System() string {
	return r.join(RoleSystem)
}

// User returns the user messages in order.
func (r Request) User() []string {
	var out []string
	for _, m := range r.Messages {
		if m.Role == RoleUser {
			out = append(out, m.Content)
		}
	}
	return out
}

func (r Request) join(role string) string {
	var s string
	for _, m := range r.Messages {
		if m.Role != role {
			continue
		}
		if s != "" {
			s += "\n\n"
		}
		s += m.Content
	}
	return s
}

// Client performs exactly one outbound call per Complete and returns the raw
// generated text. Failures are *common.TransportError.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Name() string
}
