package store

import "fmt"

// AccountsKey is the object-store key of the curated account list.
const AccountsKey = "config/accounts.json"

// ArtifactKey returns the deterministic key of a tweet's enrichment
// artifact within a run.
func ArtifactKey(runID, tweetID string) string {
	return fmt.Sprintf("runs/%s/artifacts/%s.json", runID, tweetID)
}

// ScreenshotKey returns the key of a tweet's screenshot within a run.
func ScreenshotKey(runID, tweetID string) string {
	return fmt.Sprintf("runs/%s/screenshots/%s.png", runID, tweetID)
}

// ArtifactPrefix returns the listing prefix for a run's artifacts.
func ArtifactPrefix(runID string) string {
	return fmt.Sprintf("runs/%s/artifacts/", runID)
}

// DigestKey returns the key of a run's digest JSON.
func DigestKey(runID string) string {
	return fmt.Sprintf("runs/%s/digest.json", runID)
}

// DigestHTMLKey returns the key of a run's rendered digest, kept for
// archive and preview.
func DigestHTMLKey(runID string) string {
	return fmt.Sprintf("runs/%s/digest.html", runID)
}
