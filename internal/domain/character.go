package domain

// Level is one tier of a character's progression ladder.
type Level struct {
	Intimacy     int    // threshold to reach this tier
	Title        string // display label
	ScenePrompt  string
	ToneStyle    string
	Relationship string
	HasCard      bool // grants a unique card on first unlock
}

// Ladder is sorted ascending by Intimacy before caching; the 1-based position
// in the slice is the stable tier index.
type Ladder []Level

// Tier returns the level at the given 1-based index, clamped to the ladder.
// An empty ladder yields a zero Level.
func (l Ladder) Tier(idx int) Level {
	if len(l) == 0 {
		return Level{}
	}
	if idx < 1 {
		idx = 1
	}
	if idx > len(l) {
		idx = len(l)
	}
	return l[idx-1]
}

// PromptTemplate holds the locale-resolved system prompt fields of a
// character. Missing fields default to the empty string and simply drop out
// of the assembled prompt.
type PromptTemplate struct {
	General          string
	GeneralNSFW      string
	BasicIdentity    string
	Appearance       string
	AppearanceNSFW   string
	Mantra           string
	LikesDislikes    string
	FamilyBackground string
	ImportantRoles   string
	Specialty        string
	IntimacyRule     string
	Others           string

	// OutputFormat is keyed by response shape, ReplyLength by the requested
	// length key coming in on the event.
	OutputFormat map[string]string
	ReplyLength  map[string]string
}

// Character is the cached, locale-resolved definition of an AI persona.
// Immutable once cached; evicted only by TTL.
type Character struct {
	ID     CharacterID
	Locale string
	Prompt PromptTemplate
	Ladder Ladder
}

// Empty reports whether the character carries no usable definition
// ("character unavailable" rather than an error).
func (c *Character) Empty() bool {
	return c == nil || (c.Locale == "" && len(c.Ladder) == 0)
}
