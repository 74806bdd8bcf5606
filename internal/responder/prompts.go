package responder

import "strings"

// Prompt is a system instruction plus the user turn.
type Prompt struct {
	System string
	User   string
}

const persona = "You are “Assistant Adam,” "

// BuildPrompt renders the prompt for req.
func BuildPrompt(req Request) Prompt {
	switch req.Kind {
	case SmallTalk:
		return Prompt{
			System: lines(
				persona+"a friendly receptionist for a business.",
				"You may answer general chit-chat (greetings, pleasantries, acknowledgements).",
				"Keep responses warm, brief, and professional.",
				"Avoid inventing business facts.",
			),
			User: lines("Message:", strings.TrimSpace(req.Question)),
		}

	case Strict:
		return Prompt{
			System: lines(
				persona+"a strictly grounded agent.",
				"You may ONLY answer using facts found in the kb_context below.",
				"If the answer is not fully contained in kb_context, reply EXACTLY: "+IDontKnow,
				"Keep responses concise.",
			),
			User: lines(
				"User question:", strings.TrimSpace(req.Question),
				"",
				"kb_context:", orEmpty(req.KBContext),
			),
		}

	default:
		tone := strings.TrimSpace(req.Tone)
		if tone == "" {
			tone = DefaultTone
		}
		return Prompt{
			System: lines(
				persona+"a "+tone+" agent.",
				"You must answer using ONLY the facts in kb_answer below.",
				"Sound conversational and natural (not a copy-paste).",
				"Answer directly and keep it short unless the question needs steps.",
			),
			User: lines(
				"question:", strings.TrimSpace(req.Question),
				"",
				"kb_answer:", orEmpty(req.KBAnswer),
			),
		}
	}
}

// Text joins the prompt into one block for backends without a system role.
func (p Prompt) Text() string {
	return p.System + "\n\n" + p.User
}

func lines(parts ...string) string {
	return strings.Join(parts, "\n")
}

func orEmpty(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "(empty)"
	}
	return s
}
