// internal/model/disposition.go
package model

// Disposition is the terminal classification of how a placed call ended.
type Disposition string

const (
	DispositionEndCallTool      Disposition = "end_call_tool"
	DispositionUserHangup       Disposition = "user_hangup"
	DispositionDurationExceeded Disposition = "call_duration_exceeded"
	DispositionIdleTimeout      Disposition = "user_idle_max_duration_exceeded"
	DispositionConnectError     Disposition = "system_connect_error"
	DispositionUnknown          Disposition = "unknown"
	DispositionVoicemail        Disposition = "voicemail_detected"
)

// TerminalFailure reports whether the disposition alone makes the row a
// failure. Every other disposition counts as a completed contact, whatever
// the conversation did.
func (d Disposition) TerminalFailure() bool {
	return d == DispositionConnectError || d == DispositionUnknown
}

// RetryCause is the provider-classified reason a call may be retried.
type RetryCause string

const (
	CauseNone      RetryCause = ""
	CauseBusy      RetryCause = "busy"
	CauseNoAnswer  RetryCause = "no_answer"
	CauseVoicemail RetryCause = "voicemail"
)

// Retryable reports whether the campaign's retry config allows another
// attempt for this cause.
func (c RetryCause) Retryable(cfg RetryConfig) bool {
	if !cfg.Enabled {
		return false
	}
	switch c {
	case CauseBusy:
		return cfg.RetryOnBusy
	case CauseNoAnswer:
		return cfg.RetryOnNoAnswer
	case CauseVoicemail:
		return cfg.RetryOnVoicemail
	}
	return false
}
