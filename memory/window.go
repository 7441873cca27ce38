package memory

import "github.com/piakoller/theranosticsChatbot/llm"

const DefaultWindowSize = 10

// TrimWindow keeps the last maxMsgs messages of a history and drops every
// role other than user and assistant.
func TrimWindow(msgs []llm.Message, maxMsgs int) []llm.Message {
	if maxMsgs <= 0 || len(msgs) == 0 {
		return []llm.Message{}
	}

	start := 0
	if len(msgs) > maxMsgs {
		start = len(msgs) - maxMsgs
	}

	out := make([]llm.Message, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		if m.Role == llm.RoleUser || m.Role == llm.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}
