package calls

import (
	"strings"
	"time"

	"github.com/uproot-labs/uproot/app/models"
)

// initiatedGraceSeconds is how long a call may report "initiated" past its
// scheduled time before we give up on it. The provider's batch system can
// sit in this transitional state briefly before settling; beyond the window
// it never updates the recipient again.
const initiatedGraceSeconds = 240

var providerStatusMap = map[string]string{
	"pending":     models.CallStatusUpcoming,
	"in_progress": models.CallStatusUpcoming,
	"completed":   models.CallStatusCompleted,
	"failed":      models.CallStatusFailed,
	"cancelled":   models.CallStatusCancelled,
	"voicemail":   models.CallStatusNoResponse,
}

// ResolveStatus maps a provider recipient status to the local call status.
// "initiated" is special: within the grace window after the scheduled time
// it still counts as Upcoming, afterwards it is deemed NoResponse.
func ResolveStatus(providerStatus string, scheduledTimeUnix, nowUnix int64) string {
	if providerStatus == "initiated" {
		if scheduledTimeUnix > 0 && nowUnix-scheduledTimeUnix > initiatedGraceSeconds {
			return models.CallStatusNoResponse
		}
		return models.CallStatusUpcoming
	}
	if mapped, ok := providerStatusMap[providerStatus]; ok {
		return mapped
	}
	return models.CallStatusUpcoming
}

// Outcome carries the resolved duration and timestamps for a finished call.
type Outcome struct {
	DurationSeconds int
	StartedAt       *time.Time
	EndedAt         *time.Time
}

// ResolveOutcome picks duration and timestamps from the available sources in
// strict priority order: explicit conversation duration, conversation
// start/end, recipient start/end, then the recipient's raw duration field.
// The first populated source wins.
func ResolveOutcome(conv *Conversation, recipient *Recipient) Outcome {
	var out Outcome

	var convStart, convEnd *time.Time
	var convDuration *int
	if conv != nil {
		if conv.Metadata.CallDurationSecs != nil {
			convDuration = conv.Metadata.CallDurationSecs
		} else if conv.DurationSeconds != nil {
			convDuration = conv.DurationSeconds
		}

		startUnix := conv.Metadata.StartTimeUnixSecs
		if startUnix == 0 {
			startUnix = conv.Metadata.AcceptedTimeUnixSecs
		}
		if startUnix == 0 {
			startUnix = conv.StartedAtUnix
		}
		if startUnix > 0 {
			t := time.Unix(startUnix, 0)
			convStart = &t
			if convDuration != nil {
				e := time.Unix(startUnix+int64(*convDuration), 0)
				convEnd = &e
			}
		}
		if convEnd == nil && conv.EndedAtUnix > 0 {
			t := time.Unix(conv.EndedAtUnix, 0)
			convEnd = &t
		}
	}

	switch {
	case convDuration != nil:
		out.DurationSeconds = *convDuration
	case convStart != nil && convEnd != nil:
		out.DurationSeconds = int(convEnd.Sub(*convStart) / time.Second)
	case recipient != nil && recipient.StartedAtUnix > 0 && recipient.EndedAtUnix > 0:
		out.DurationSeconds = int(recipient.EndedAtUnix - recipient.StartedAtUnix)
	case recipient != nil && recipient.DurationSeconds > 0:
		out.DurationSeconds = recipient.DurationSeconds
	}

	out.StartedAt = convStart
	out.EndedAt = convEnd
	if out.StartedAt == nil && recipient != nil && recipient.StartedAtUnix > 0 {
		t := time.Unix(recipient.StartedAtUnix, 0)
		out.StartedAt = &t
	}
	if out.EndedAt == nil && recipient != nil && recipient.EndedAtUnix > 0 {
		t := time.Unix(recipient.EndedAtUnix, 0)
		out.EndedAt = &t
	}

	return out
}

// BuildTranscript joins conversation messages into a readable transcript,
// tagging each utterance as Agent or User.
func BuildTranscript(conv *Conversation) string {
	if conv == nil || len(conv.Transcript) == 0 {
		return ""
	}
	lines := make([]string, 0, len(conv.Transcript))
	for _, msg := range conv.Transcript {
		speaker := "User"
		if msg.Role == "agent" {
			speaker = "Agent"
		}
		lines = append(lines, speaker+": "+msg.Message)
	}
	return strings.Join(lines, "\n\n")
}
