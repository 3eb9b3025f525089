package models

import "sort"

// SortChatMessages orders messages chronologically. Messages sharing a
// timestamp keep user turns ahead of assistant turns.
func SortChatMessages(msgs []ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return roleRank(a.Role) < roleRank(b.Role)
	})
}

func roleRank(role string) int {
	if role == RoleUser {
		return 0
	}
	return 1
}

// DedupConsecutive drops a message when it repeats the role and content of
// the one right before it. The input must already be sorted.
func DedupConsecutive(msgs []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role && out[n-1].Content == m.Content {
			continue
		}
		out = append(out, m)
	}
	return out
}

// GroupByDocument buckets sorted messages per document. Groups come back
// newest conversation first; names maps document ids to file names.
func GroupByDocument(msgs []ChatMessage, names map[string]string) []ChatHistoryGroup {
	index := make(map[string]int)
	var groups []ChatHistoryGroup

	for _, m := range msgs {
		if m.DocumentID == "" {
			continue
		}
		i, ok := index[m.DocumentID]
		if !ok {
			name, found := names[m.DocumentID]
			if !found || name == "" {
				name = "Unknown Document"
			}
			groups = append(groups, ChatHistoryGroup{DocumentID: m.DocumentID, DocumentName: name})
			i = len(groups) - 1
			index[m.DocumentID] = i
		}
		groups[i].Messages = append(groups[i].Messages, m)
		groups[i].LastMessageAt = m.CreatedAt
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].LastMessageAt.After(groups[j].LastMessageAt)
	})
	return groups
}
