package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"character-chat/internal/storage"
)

// DailyStats aggregates one day of character chat activity.
type DailyStats struct {
	Date             string                    `json:"date"`
	TotalMessages    int                       `json:"total_messages"`
	UniqueCharacters int                       `json:"unique_characters"`
	TotalTokens      int                       `json:"total_tokens"`
	CharacterStats   map[string]CharacterStats `json:"character_stats"`
}

// CharacterStats aggregates activity for a single character.
type CharacterStats struct {
	Character   string `json:"character"`
	Messages    int    `json:"messages"`
	TotalTokens int    `json:"total_tokens"`
}

// AnalyzeDailyLogs computes stats for all events that fall on the
// given day (in the date's location).
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.Add(24 * time.Hour)

	stats := &DailyStats{
		Date:           startOfDay.Format("2006-01-02"),
		CharacterStats: make(map[string]CharacterStats),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserMessage == "" {
			continue
		}

		stats.TotalMessages++
		stats.TotalTokens += event.TotalTokens

		cs := stats.CharacterStats[event.Character]
		cs.Character = event.Character
		cs.Messages++
		cs.TotalTokens += event.TotalTokens
		stats.CharacterStats[event.Character] = cs
	}

	stats.UniqueCharacters = len(stats.CharacterStats)
	return stats
}

// FormatReport renders the stats as a readable multi-line summary,
// characters sorted by message count.
func (s *DailyStats) FormatReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily report %s: %d messages across %d characters, %d tokens",
		s.Date, s.TotalMessages, s.UniqueCharacters, s.TotalTokens)

	ordered := make([]CharacterStats, 0, len(s.CharacterStats))
	for _, cs := range s.CharacterStats {
		ordered = append(ordered, cs)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Messages != ordered[j].Messages {
			return ordered[i].Messages > ordered[j].Messages
		}
		return ordered[i].Character < ordered[j].Character
	})
	for _, cs := range ordered {
		fmt.Fprintf(&b, "\n  %s: %d messages, %d tokens", cs.Character, cs.Messages, cs.TotalTokens)
	}
	return b.String()
}
