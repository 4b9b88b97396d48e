package requests

import (
	"fmt"

	"github.com/cufee/botto-requests/database"
)

// Embed colors per outcome, discord palette
const (
	colorPending   = 0x7289DA // blurple
	colorApproved  = 0x1F8B4C // dark green
	colorDenied    = 0x992D22 // dark red
	colorCancelled = 0x546E7A // darker grey
	colorExpired   = 0x99AAB5 // greyple
)

// Outcome - Terminal resolution of a pending request
type Outcome int

const (
	OutcomeApproved Outcome = iota
	OutcomeDenied
	OutcomeCancelled
	OutcomeExpired
)

// Status - The request status this outcome settles to
func (o Outcome) Status() database.RequestStatus {
	switch o {
	case OutcomeApproved:
		return database.StatusApproved
	case OutcomeDenied:
		return database.StatusDenied
	case OutcomeCancelled:
		return database.StatusCancelled
	case OutcomeExpired:
		return database.StatusExpired
	}
	panic(fmt.Sprintf("unknown outcome %d", o))
}

// layout - Presentation tuple for a settled request. An empty dm means
// the requester is not messaged for this outcome.
type layout struct {
	color  int
	footer string
	status string
	dm     string
}

// present - Layout for the outcome. moderator is a mention of the acting
// moderator and is empty for user- or timer-driven outcomes.
func (o Outcome) present(moderator string) layout {
	switch o {
	case OutcomeApproved:
		return layout{
			color:  colorApproved,
			footer: "Request approved",
			status: fmt.Sprintf("Approved by %v.", moderator),
			dm:     "been approved.",
		}
	case OutcomeDenied:
		return layout{
			color:  colorDenied,
			footer: "Request denied",
			status: fmt.Sprintf("Denied by %v.", moderator),
			dm:     "been denied.",
		}
	case OutcomeCancelled:
		return layout{
			color:  colorCancelled,
			footer: "Request cancelled",
			status: "Cancelled by user.",
		}
	case OutcomeExpired:
		return layout{
			color:  colorExpired,
			footer: "Request expired",
			status: "Request expired due to lack of moderator response.",
			dm:     "expired due to lack of moderator response.",
		}
	}
	panic(fmt.Sprintf("unknown outcome %d", o))
}
