package agents

import (
	"encoding/json"
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`<(.+?)>`)

// extractAddress pulls the bare address out of a sender string such as
// "Alice Smith <alice@example.com>". Without angle brackets the whole
// string is treated as the address when it contains an @.
func extractAddress(sender string) string {
	if match := addressPattern.FindStringSubmatch(sender); match != nil {
		return strings.ToLower(strings.TrimSpace(match[1]))
	}
	trimmed := strings.ToLower(strings.TrimSpace(sender))
	if strings.Contains(trimmed, "@") {
		return trimmed
	}
	return ""
}

// nameFromAddress guesses a display name from the local part of an
// address: "jane.doe@example.com" becomes "Jane Doe".
func nameFromAddress(address string) string {
	local, _, _ := strings.Cut(address, "@")
	local = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)

	words := strings.Fields(local)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// extractJSON strips markdown fences and surrounding prose from a
// model response, returning the first JSON object or array found.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	objStart := strings.IndexAny(text, "{[")
	if objStart < 0 {
		return text
	}
	var objEnd int
	if text[objStart] == '{' {
		objEnd = strings.LastIndex(text, "}")
	} else {
		objEnd = strings.LastIndex(text, "]")
	}
	if objEnd <= objStart {
		return text
	}
	return text[objStart : objEnd+1]
}

// recordAnalysis is the per-record shape the extraction prompt asks
// the model to return.
type recordAnalysis struct {
	ID           string      `json:"id"`
	Summary      string      `json:"summary"`
	Intent       string      `json:"intent"`
	Entities     Entities    `json:"entities"`
	Commitments  Commitments `json:"commitments"`
	Sentiment    string      `json:"sentiment"`
	ReplyNeeded  bool        `json:"is_reply_needed"`
	UrgencyScore int         `json:"urgency_score"`
}

func parseRecordAnalyses(text string) ([]recordAnalysis, error) {
	var analyses []recordAnalysis
	if err := json.Unmarshal([]byte(extractJSON(text)), &analyses); err != nil {
		return nil, err
	}
	return analyses, nil
}

// themeAnalysis is the shape the clustering prompt asks for. Indices
// refer to positions in the working memory record list.
type themeAnalysis struct {
	Themes map[string]struct {
		Description string `json:"description"`
		Indices     []int  `json:"record_indices"`
	} `json:"themes"`
	Uncategorized []int `json:"uncategorized_indices"`
}

// parseThemes maps a clustering response back onto the records. The
// JSON form is tried first; on failure a line-oriented heuristic parse
// runs; if that also finds nothing, everything lands in one "General"
// theme so the pipeline always has input for the next stage.
func parseThemes(text string, records []Record) map[string][]Record {
	var parsed themeAnalysis
	if err := json.Unmarshal([]byte(extractJSON(text)), &parsed); err == nil && len(parsed.Themes) > 0 {
		themes := make(map[string][]Record)
		for name, theme := range parsed.Themes {
			var members []Record
			for _, idx := range theme.Indices {
				if idx >= 0 && idx < len(records) {
					members = append(members, records[idx])
				}
			}
			if len(members) > 0 {
				themes[name] = members
			}
		}
		if len(themes) > 0 {
			return themes
		}
	}

	if themes := parseThemesHeuristic(text, records); len(themes) > 0 {
		return themes
	}

	return map[string][]Record{"General": records}
}

// parseThemesHeuristic reads "Theme: ..." headers followed by bullet
// lines and matches bullets against record subjects and summaries.
func parseThemesHeuristic(text string, records []Record) map[string][]Record {
	themes := make(map[string][]Record)
	current := ""

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		isBullet := strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "•")
		if !isBullet && strings.Contains(line, ":") {
			current = strings.TrimSpace(strings.SplitN(line, ":", 2)[0])
			continue
		}
		if current == "" || !isBullet {
			continue
		}

		item := strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "-*• ")))
		for _, record := range records {
			if item == "" {
				break
			}
			if strings.Contains(strings.ToLower(record.Subject), item) ||
				strings.Contains(strings.ToLower(record.Summary), item) {
				themes[current] = append(themes[current], record)
				break
			}
		}
	}

	for name, members := range themes {
		if len(members) == 0 {
			delete(themes, name)
		}
	}
	return themes
}

// parseAnalysis decodes the priority analysis response. JSON first,
// then a section-scanning heuristic; the zero Analysis is the final
// fallback so a garbled response never aborts the cycle.
func parseAnalysis(text string) Analysis {
	var analysis Analysis
	if err := json.Unmarshal([]byte(extractJSON(text)), &analysis); err == nil {
		if len(analysis.Priorities.Urgent) > 0 || len(analysis.Priorities.Important) > 0 ||
			len(analysis.Priorities.Deferred) > 0 || len(analysis.SocialNotes.RepliesNeeded) > 0 {
			return analysis
		}
	}

	return Analysis{
		Priorities: PriorityBuckets{
			Urgent:    extractSection(text, "urgent"),
			Important: extractSection(text, "important"),
			Deferred:  extractSection(text, "defer", "later", "low"),
		},
		SocialNotes: SocialNotes{
			RepliesNeeded: extractSection(text, "reply", "respond", "social"),
		},
	}
}

// extractSection collects bullet items under a header line containing
// one of the keywords, capped at five items.
func extractSection(text string, keywords ...string) []string {
	var items []string
	inSection := false

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		isHeader := strings.Contains(trimmed, ":") && !strings.HasPrefix(trimmed, "-") &&
			!strings.HasPrefix(trimmed, "*") && !strings.HasPrefix(trimmed, "•")
		if isHeader {
			inSection = false
			for _, keyword := range keywords {
				if strings.Contains(lower, keyword) {
					inSection = true
					break
				}
			}
			continue
		}

		if !inSection || trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "•") {
			item := strings.TrimSpace(strings.TrimLeft(trimmed, "-*• "))
			if item != "" {
				items = append(items, item)
			}
			if len(items) == 5 {
				break
			}
		}
	}
	return items
}
