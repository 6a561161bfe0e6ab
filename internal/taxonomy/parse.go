package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedResponse is returned when a model reply cannot be parsed
// even after the repair pass.
var ErrMalformedResponse = errors.New("malformed model response")

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.+\\})\\s*```")
	bareJSONRe   = regexp.MustCompile(`(?s)(\{.+\})`)
)

// repairJSON attempts one recovery pass over a reply that failed to
// parse: strip markdown fences, or extract the outermost JSON object
// from surrounding prose.
func repairJSON(reply string) string {
	if m := fencedJSONRe.FindStringSubmatch(reply); len(m) == 2 {
		return m[1]
	}
	if m := bareJSONRe.FindStringSubmatch(reply); len(m) == 2 {
		return m[1]
	}
	return reply
}

func unmarshalWithRepair(reply string, v interface{}) error {
	trimmed := strings.TrimSpace(reply)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}
	repaired := repairJSON(trimmed)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

type l1Reply struct {
	Level1     string  `json:"level1"`
	Confidence float64 `json:"confidence"`
}

type l2Reply struct {
	Level2     []string `json:"level2"`
	Confidence float64  `json:"confidence"`
}

// ParseL1 parses the reply to the L1 classification call. Labels
// outside the L1 set map to Uncertain. Confidence is clamped to [0, 1].
func ParseL1(reply string) (label string, confidence float64, err error) {
	var r l1Reply
	if err := unmarshalWithRepair(reply, &r); err != nil {
		return "", 0, err
	}
	label = strings.TrimSpace(r.Level1)
	if !IsL1(label) {
		label = LabelUncertain
	}
	return label, clamp01(r.Confidence), nil
}

// ParseL2 parses the reply to the L2 classification call. Labels
// outside the chosen L1's sub-theme set collapse to Other (deduplicated).
// An empty selection is valid and reports confidence 0.0.
func ParseL2(reply, l1 string) (labels []string, confidence float64, err error) {
	var r l2Reply
	if err := unmarshalWithRepair(reply, &r); err != nil {
		return nil, 0, err
	}
	seen := make(map[string]bool)
	labels = make([]string, 0, len(r.Level2))
	for _, raw := range r.Level2 {
		label := strings.TrimSpace(raw)
		if !IsL2(l1, label) {
			label = LabelOther
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		labels = append(labels, label)
	}
	if len(labels) == 0 {
		return labels, 0, nil
	}
	return labels, clamp01(r.Confidence), nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
