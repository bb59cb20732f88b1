package domain

type UserID string
type ChannelID string
type CharacterID string
type MessageID string

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMode selects model, response shape and progression behaviour for a turn.
// The actual mapping lives in the chat mode table, not here.
type ChatMode string

const (
	ModeStory       ChatMode = "story"       // multi-line dialogue, default
	ModeText        ChatMode = "text"        // single short message
	ModeStimulation ChatMode = "stimulation" // dedicated model, scoring-exempt
	ModeLevel       ChatMode = "level"       // scene intro, non-progressing
)

// Turn is one entry of a conversation history, oldest first.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
