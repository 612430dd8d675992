package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/worksim/api/internal/client"
	"github.com/worksim/api/internal/model"
	"github.com/worksim/api/internal/store"
)

const summaryPromptTemplate = `You are %s, a coworker of the candidate in a simulated workplace.
Summarise the earlier part of your chat with the candidate in at most five short bullet points.
Keep facts, decisions, open questions and promises. Do not invent anything.

Conversation:
%s`

// MemoryService builds what a coworker persona remembers about the candidate
type MemoryService struct {
	store           store.Store
	generator       client.ContentGenerator
	recentLimit     int
	maxSummaryChars int
	log             *logrus.Logger
}

func NewMemoryService(st store.Store, generator client.ContentGenerator, recentLimit, maxSummaryChars int, log *logrus.Logger) *MemoryService {
	if recentLimit <= 0 {
		recentLimit = 20
	}
	if maxSummaryChars <= 0 {
		maxSummaryChars = 12000
	}
	return &MemoryService{
		store:           st,
		generator:       generator,
		recentLimit:     recentLimit,
		maxSummaryChars: maxSummaryChars,
		log:             log,
	}
}

// GetCoworkerMemory loads the assessment's conversations and builds the
// memory of one coworker for the owning candidate
func (s *MemoryService) GetCoworkerMemory(ctx context.Context, assessmentID, userID, coworkerID string) (*model.CoworkerMemoryResponse, error) {
	a, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrForbidden
	}

	coworkers, err := s.store.ListCoworkers(ctx, a.ScenarioID)
	if err != nil {
		return nil, err
	}
	var self *model.Coworker
	for i := range coworkers {
		if coworkers[i].ID == coworkerID {
			self = &coworkers[i]
			break
		}
	}
	if self == nil {
		return nil, store.ErrNotFound
	}

	conversations, err := s.store.ListConversations(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	memory := s.BuildMemory(ctx, conversations, *self)
	cross := BuildCrossCoworkerContext(conversations, coworkerID, coworkers)

	return &model.CoworkerMemoryResponse{
		Memory:               memory,
		CrossCoworkerContext: cross,
		Prompt:               FormatMemoryForPrompt(memory, cross),
	}, nil
}

// BuildMemory merges the text and voice transcripts with the coworker,
// keeps the newest messages verbatim and condenses the rest
func (s *MemoryService) BuildMemory(ctx context.Context, conversations []model.Conversation, coworker model.Coworker) model.CoworkerMemory {
	messages := coworkerMessages(conversations, coworker.ID)
	if len(messages) == 0 {
		return model.CoworkerMemory{RecentMessages: []model.ChatMessage{}}
	}

	split := len(messages) - s.recentLimit
	if split < 0 {
		split = 0
	}
	older, recent := messages[:split], messages[split:]

	memory := model.CoworkerMemory{
		HasPriorConversations: true,
		RecentMessages:        append([]model.ChatMessage(nil), recent...),
		TotalMessageCount:     len(messages),
	}
	if len(older) > 0 {
		memory.Summary = s.summarize(ctx, coworker, older)
	}
	return memory
}

func (s *MemoryService) summarize(ctx context.Context, coworker model.Coworker, older []model.ChatMessage) string {
	transcript := capTail(formatTranscript(older, coworker.Name), s.maxSummaryChars)

	if s.generator == nil || !s.generator.IsConfigured() {
		return fallbackSummary(older)
	}

	summary, err := s.generator.GenerateContent(ctx, fmt.Sprintf(summaryPromptTemplate, coworker.Name, transcript), nil)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"coworker_id": coworker.ID,
			"messages":    len(older),
		}).WithError(err).Warn("memory summary failed, using fallback")
		return fallbackSummary(older)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fallbackSummary(older)
	}
	return summary
}

func coworkerMessages(conversations []model.Conversation, coworkerID string) []model.ChatMessage {
	messages := make([]model.ChatMessage, 0)
	for _, c := range conversations {
		if c.CoworkerID == nil || *c.CoworkerID != coworkerID {
			continue
		}
		if c.Type != model.ConversationTypeText && c.Type != model.ConversationTypeVoice {
			continue
		}
		messages = append(messages, c.Transcript...)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages
}

func formatTranscript(messages []model.ChatMessage, coworkerName string) string {
	var b strings.Builder
	for _, m := range messages {
		speaker := "Candidate"
		if m.Role == model.MessageRoleModel {
			speaker = coworkerName
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// capTail keeps at most the last max bytes of s, cut at a line start when
// possible and never inside a UTF-8 sequence
func capTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	start := len(s) - max
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	tail := s[start:]
	if i := strings.IndexByte(tail, '\n'); i >= 0 && i < len(tail)-1 {
		return tail[i+1:]
	}
	return tail
}

func fallbackSummary(older []model.ChatMessage) string {
	var lastCandidate string
	for i := len(older) - 1; i >= 0; i-- {
		if older[i].Role == model.MessageRoleUser {
			lastCandidate = older[i].Text
			break
		}
	}
	summary := fmt.Sprintf("Earlier you exchanged %d messages with the candidate.", len(older))
	if lastCandidate != "" {
		if len(lastCandidate) > 200 {
			lastCandidate = truncateRunes(lastCandidate, 200) + "..."
		}
		summary += fmt.Sprintf(" Their last earlier message was: %q", lastCandidate)
	}
	return summary
}

// truncateRunes keeps at most max bytes of s without splitting a rune
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	end := max
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end]
}

// BuildCrossCoworkerContext names the other coworkers the candidate has
// talked to, in order of first contact. Empty when there are none.
func BuildCrossCoworkerContext(conversations []model.Conversation, coworkerID string, coworkers []model.Coworker) string {
	byID := make(map[string]model.Coworker, len(coworkers))
	for _, c := range coworkers {
		byID[c.ID] = c
	}

	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, conv := range conversations {
		if conv.CoworkerID == nil || *conv.CoworkerID == coworkerID || len(conv.Transcript) == 0 {
			continue
		}
		id := *conv.CoworkerID
		if _, ok := seen[id]; ok {
			continue
		}
		cw, ok := byID[id]
		if !ok {
			continue
		}
		seen[id] = struct{}{}
		if cw.Role != "" {
			names = append(names, fmt.Sprintf("%s (%s)", cw.Name, cw.Role))
		} else {
			names = append(names, cw.Name)
		}
	}

	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("The candidate has also talked with %s.", names[0])
	default:
		return fmt.Sprintf("The candidate has also talked with %s and %s.",
			strings.Join(names[:len(names)-1], ", "), names[len(names)-1])
	}
}

// FormatMemoryForPrompt renders memory and cross-coworker context as a
// block for the coworker's system prompt
func FormatMemoryForPrompt(memory model.CoworkerMemory, crossContext string) string {
	var b strings.Builder
	if !memory.HasPriorConversations {
		b.WriteString("You have not talked with the candidate before.\n")
	} else {
		fmt.Fprintf(&b, "You have exchanged %d messages with the candidate so far.\n", memory.TotalMessageCount)
		if memory.Summary != "" {
			b.WriteString("\nEarlier conversation summary:\n")
			b.WriteString(memory.Summary)
			b.WriteString("\n")
		}
		b.WriteString("\nRecent messages:\n")
		for _, m := range memory.RecentMessages {
			speaker := "Candidate"
			if m.Role == model.MessageRoleModel {
				speaker = "You"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, m.Text)
		}
	}
	if crossContext != "" {
		b.WriteString("\n")
		b.WriteString(crossContext)
		b.WriteString("\n")
	}
	return b.String()
}
