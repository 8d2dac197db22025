package runner

import (
	"encoding/json"
	"regexp"
)

// Stats is the incrementally merged metrics view of a run, built from
// tagged progress lines and topped up from the final stats endpoint. Any
// part may be missing at any time, including after success.
type Stats struct {
	Sync  map[string]any `json:"sync,omitempty"`
	Rules map[string]any `json:"rules,omitempty"`
}

func (s Stats) clone() Stats {
	out := Stats{}
	if s.Sync != nil {
		out.Sync = make(map[string]any, len(s.Sync))
		for k, v := range s.Sync {
			out.Sync[k] = v
		}
	}
	if s.Rules != nil {
		out.Rules = make(map[string]any, len(s.Rules))
		for k, v := range s.Rules {
			out.Rules[k] = v
		}
	}
	return out
}

// statsPattern matches the embedded JSON payload of a tagged stats line.
var statsPattern = regexp.MustCompile(`STATS:\s*(\{.*\})`)

// ExtractStats parses a "STATS: {...}" payload out of a progress message.
// Malformed payloads report false and are otherwise ignored.
func ExtractStats(message string) (Stats, bool) {
	match := statsPattern.FindStringSubmatch(message)
	if match == nil {
		return Stats{}, false
	}
	var payload struct {
		Sync  map[string]any `json:"sync"`
		Rules map[string]any `json:"rules"`
	}
	if err := json.Unmarshal([]byte(match[1]), &payload); err != nil {
		return Stats{}, false
	}
	if payload.Sync == nil && payload.Rules == nil {
		return Stats{}, false
	}
	return Stats{Sync: payload.Sync, Rules: payload.Rules}, true
}

// StripStatsPayload removes the embedded stats JSON from a message so
// error-marker scanning does not trip over metric field names.
func StripStatsPayload(message string) string {
	return statsPattern.ReplaceAllString(message, "")
}

// Merge overlays another stats fragment, shallow per top-level key.
func (s *Stats) Merge(other Stats) {
	if len(other.Sync) > 0 {
		if s.Sync == nil {
			s.Sync = map[string]any{}
		}
		for k, v := range other.Sync {
			s.Sync[k] = v
		}
	}
	if len(other.Rules) > 0 {
		if s.Rules == nil {
			s.Rules = map[string]any{}
		}
		for k, v := range other.Rules {
			s.Rules[k] = v
		}
	}
}

// ruleDetailKeys are the legacy field names the final stats record may
// carry per-rule detail under, as a JSON string. First present wins.
var ruleDetailKeys = []string{"RuleDetails", "rule_details", "RulesJson", "rules_json"}

// MergeFinalRecords folds final-stats records into the stats view. Fields
// that fail to decode are skipped; the terminal status is already decided
// by the time this runs and is never affected.
func (s *Stats) MergeFinalRecords(records []map[string]any) {
	for _, record := range records {
		if syncPart, ok := record["sync"].(map[string]any); ok {
			s.Merge(Stats{Sync: syncPart})
		}
		if v, ok := firstPresent(record, "RuleMatchCount", "rule_match_count"); ok {
			s.Merge(Stats{Rules: map[string]any{"RuleMatchCount": v}})
		}
		if v, ok := firstPresent(record, "RuleErrorCount", "rule_error_count"); ok {
			s.Merge(Stats{Rules: map[string]any{"RuleErrorCount": v}})
		}
		for _, key := range ruleDetailKeys {
			raw, ok := record[key].(string)
			if !ok || raw == "" {
				continue
			}
			var detail any
			if err := json.Unmarshal([]byte(raw), &detail); err == nil {
				s.Merge(Stats{Rules: map[string]any{"details": detail}})
			}
			break
		}
	}
}

func firstPresent(record map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := record[key]; ok {
			return v, true
		}
	}
	return nil, false
}
