package domain

// ChannelMeta is the progression block of a channel document.
// TotalIntimacy only moves through explicit deltas (which may be negative);
// LockLevel never decreases once a tier has been unlocked.
type ChannelMeta struct {
	Intimacy           int    `json:"intimacy"`            // last applied delta
	TotalIntimacy      int    `json:"total_intimacy"`      // accumulated score
	IntimacyPercentage int    `json:"intimacy_percentage"` // 0-100 toward the next tier
	CurrentLevel       string `json:"current_level"`       // tier title, presentation only
	NextLevel          string `json:"next_level"`          // tier title, presentation only
	LockLevel          int    `json:"lock_level"`          // highest unlocked 1-based tier index
}

// Document renders the meta block in its persisted field names.
func (m ChannelMeta) Document() map[string]any {
	return map[string]any{
		"intimacy":            m.Intimacy,
		"total_intimacy":      m.TotalIntimacy,
		"intimacy_percentage": m.IntimacyPercentage,
		"current_level":       m.CurrentLevel,
		"next_level":          m.NextLevel,
		"lock_level":          m.LockLevel,
	}
}

// ChannelState is the cached view of one channel: the user's persona profile
// plus the progression metadata. The persisted record may carry more fields;
// those are preserved by merge-style updates and never modelled here.
type ChannelState struct {
	UserPersona map[string]any
	Meta        ChannelMeta
}

// NewChannelState returns the zeroed default used when a channel has no
// cached state yet. LockLevel starts at 1: the first tier is always open.
func NewChannelState() *ChannelState {
	return &ChannelState{
		UserPersona: map[string]any{},
		Meta:        ChannelMeta{LockLevel: 1},
	}
}

// Clone returns an independent copy so callers can mutate freely.
func (s *ChannelState) Clone() *ChannelState {
	persona := make(map[string]any, len(s.UserPersona))
	for k, v := range s.UserPersona {
		persona[k] = v
	}
	return &ChannelState{UserPersona: persona, Meta: s.Meta}
}
