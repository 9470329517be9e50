package session

// Control message types, client to server.
const (
	msgSessionInit      = "session_init"
	msgActiveAudioStart = "active_audio_start"
	msgActiveAudioEnd   = "active_audio_end"
	msgStopGeneration   = "stop_generation"
)

// Server message types.
const (
	msgTranscription       = "transcription"
	msgAssistantChunk      = "assistant_chunk"
	msgAssistantAudioChunk = "assistant_audio_chunk"
	msgAssistantFinal      = "assistant_final"
	msgAIResponse          = "ai_response"
	msgAssistantDone       = "assistant_done"
	msgError               = "error"
)

// controlMessage is the union of all client control messages. Fields not
// belonging to a given type are simply absent.
type controlMessage struct {
	Type string `json:"type"`

	// session_init
	Model               string `json:"model,omitempty"`
	VADSilenceThreshold int    `json:"vad_silence_threshold,omitempty"` // milliseconds
	Stream              bool   `json:"stream,omitempty"`

	// active_audio_start
	ImageBase64 string `json:"image_base64,omitempty"`
}

type transcriptionMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type assistantChunkMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Seq     int    `json:"seq"`
	Message string `json:"message"`
}

type assistantAudioChunkMessage struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Seq         int    `json:"seq"`
	AudioBase64 string `json:"audio_base64"`
}

type assistantFinalMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Message string `json:"message"`
	Audio   bool   `json:"audio"`
}

// aiResponseMessage carries a buffered turn. AudioBase64 is null when
// synthesis failed; the text still stands on its own.
type aiResponseMessage struct {
	Type        string  `json:"type"`
	ID          string  `json:"id"`
	Message     string  `json:"message"`
	AudioBase64 *string `json:"audio_base64"`
}

type assistantDoneMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
