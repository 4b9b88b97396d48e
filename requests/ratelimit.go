package requests

import (
	"time"

	"github.com/cufee/botto-requests/database"
)

// rateLimitWindow - Only requests created inside this window count
// towards the score
const rateLimitWindow = 24 * time.Hour

// Score weights per request status. Approved and expired requests
// score nothing.
const (
	scorePending   = 3
	scoreCancelled = 5
	scoreDenied    = 7
)

// rateLimitScore - Total score of the user's requests created at or
// after the cutoff
func rateLimitScore(reqs map[string]database.Request, userID string, since time.Time) int {
	score := 0
	for _, r := range reqs {
		if r.User != userID || r.CreatedAt.Before(since) {
			continue
		}
		switch r.Status {
		case database.StatusPending:
			score += scorePending
		case database.StatusCancelled:
			score += scoreCancelled
		case database.StatusDenied:
			score += scoreDenied
		}
	}
	return score
}
