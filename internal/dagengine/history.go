package dagengine

import "github.com/ZM-BAD/dag-chat/internal/models"

// FormatHistory is the History Formatter (C4): it turns a linearized node
// sequence into the role-tagged array a Model Adapter expects. Reasoning
// traces are never sent back to the model; empty-content nodes (partial
// writes from interrupted runs) are dropped.
func FormatHistory(nodes []*models.Message) []models.HistoryMessage {
	out := make([]models.HistoryMessage, 0, len(nodes))
	for _, n := range nodes {
		if n.Content == "" {
			continue
		}
		out = append(out, models.HistoryMessage{Role: n.Role, Content: n.Content})
	}
	return out
}
