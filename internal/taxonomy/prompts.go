package taxonomy

import (
	"fmt"
	"strings"
)

// jsonPreamble is prepended to every classification prompt. Models that
// wrap replies in markdown fences still get one repair pass in the
// parser, but asking for raw JSON up front avoids most of them.
const jsonPreamble = `CRITICAL: You MUST output ONLY valid JSON. Do not include any text before or after the JSON object. Do not wrap it in markdown code blocks. Output the raw JSON object directly.`

// BuildL1Prompt builds the first classification call: the full L1
// theme list with descriptions, and a two-field response schema.
// Exactly one theme must be chosen.
func BuildL1Prompt(tweetText string) string {
	var b strings.Builder
	b.WriteString(jsonPreamble)
	b.WriteString("\n\nYou are classifying a tweet about AI into exactly one top-level theme.\n\nThemes:\n")
	for _, t := range l1Themes {
		fmt.Fprintf(&b, "- %s: %s\n", t.Label, t.Description)
	}
	b.WriteString("\nTweet:\n")
	b.WriteString(tweetText)
	b.WriteString("\n\nChoose exactly one theme from the list above. Respond with this exact JSON structure:\n")
	b.WriteString(`{"level1": "<theme label>", "confidence": <number between 0.0 and 1.0>}`)
	return b.String()
}

// BuildL2Prompt builds the second classification call, restricted to
// the sub-themes of the already-chosen L1. Zero or more sub-themes may
// be selected.
func BuildL2Prompt(tweetText, l1 string) string {
	var b strings.Builder
	b.WriteString(jsonPreamble)
	fmt.Fprintf(&b, "\n\nA tweet has been classified under the theme %q. Select every sub-theme that applies (zero or more).\n\nSub-themes:\n", l1)
	for _, t := range l2Themes[l1] {
		fmt.Fprintf(&b, "- %s: %s\n", t.Label, t.Description)
	}
	b.WriteString("\nTweet:\n")
	b.WriteString(tweetText)
	b.WriteString("\n\nRespond with this exact JSON structure:\n")
	b.WriteString(`{"level2": ["<sub-theme label>", ...], "confidence": <number between 0.0 and 1.0>}`)
	return b.String()
}

// BuildSummaryPrompt builds the per-category summarization prompt for
// the digest. The texts are already ranked by engagement; the summary
// is category-scoped and must not reference other categories.
func BuildSummaryPrompt(category string, tweetTexts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are writing a newsletter section about %q for a weekly AI digest.\n\n", category)
	b.WriteString("Summarize the common threads across these tweets in 2-4 sentences. Write in an engaging, informative newsletter tone. Do not mention tweet counts, usernames, or other categories. Output plain prose only.\n\nTweets:\n")
	for i, text := range tweetTexts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, text)
	}
	return b.String()
}
