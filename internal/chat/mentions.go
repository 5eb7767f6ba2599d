package chat

import (
	"regexp"
	"strconv"
	"strings"
)

var mentionPattern = regexp.MustCompile(`<@user:(\d+)>`)

// extractMentionIDs pulls mention targets out of a message body. The
// literal "@All" mentions the whole channel and short-circuits the
// per-user markers; otherwise each <@user:ID> marker names one user,
// deduplicated in order of first appearance.
func extractMentionIDs(content string) (ids []int64, all bool) {
	if content == "" {
		return nil, false
	}
	if strings.Contains(content, "@All") {
		return nil, true
	}
	seen := make(map[int64]struct{})
	for _, match := range mentionPattern.FindAllStringSubmatch(content, -1) {
		id, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, false
}
