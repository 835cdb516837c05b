package calls

// Batch is the subset of the provider's batch-calling job we consume.
type Batch struct {
	ID                string      `json:"id"`
	Status            string      `json:"status"`
	ScheduledTimeUnix int64       `json:"scheduled_time_unix"`
	Recipients        []Recipient `json:"recipients"`
}

// Recipient is one call attempt inside a batch job.
type Recipient struct {
	ID              string `json:"id"`
	PhoneNumber     string `json:"phone_number"`
	ConversationID  string `json:"conversation_id"`
	Status          string `json:"status"`
	StartedAtUnix   int64  `json:"started_at"`
	EndedAtUnix     int64  `json:"ended_at"`
	DurationSeconds int    `json:"duration"`
	RecordingURL    string `json:"recording_url"`
	ErrorMessage    string `json:"error_message"`
}

// Conversation is the fetched conversation record for a finished call.
type Conversation struct {
	ID         string              `json:"conversation_id"`
	Transcript []TranscriptMessage `json:"transcript"`
	Metadata   struct {
		CallDurationSecs     *int  `json:"call_duration_secs"`
		StartTimeUnixSecs    int64 `json:"start_time_unix_secs"`
		AcceptedTimeUnixSecs int64 `json:"accepted_time_unix_secs"`
	} `json:"metadata"`
	// Top-level fallbacks some provider versions report instead.
	DurationSeconds *int  `json:"duration_seconds"`
	StartedAtUnix   int64 `json:"started_at"`
	EndedAtUnix     int64 `json:"ended_at"`
}

// TranscriptMessage is one utterance in a conversation transcript.
type TranscriptMessage struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// PhoneNumber is one outbound number registered with the provider.
type PhoneNumber struct {
	PhoneNumber   string `json:"phone_number"`
	PhoneNumberID string `json:"phone_number_id"`
	Label         string `json:"label"`
}
