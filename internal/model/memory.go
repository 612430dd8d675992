package model

// CoworkerMemory is what a coworker persona "remembers" about the candidate
type CoworkerMemory struct {
	HasPriorConversations bool          `json:"hasPriorConversations"`
	Summary               string        `json:"summary"`
	RecentMessages        []ChatMessage `json:"recentMessages"`
	TotalMessageCount     int           `json:"totalMessageCount"`
}
