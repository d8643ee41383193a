package telephony

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// SwitchEventForm captures the subset of switch event fields the backend
// consumes. FreeSWITCH event_socket posts application/x-www-form-urlencoded
// with header names carried verbatim.
//
// Keep it minimal and provider-adapter-only.
// Lifecycle decisions are not made here.
type SwitchEventForm struct {
	CallUUID     string
	EventName    string
	AnswerState  string
	HangupCause  string
	Duration     string
	MOS          string
}

var ErrMissingCallUUID = errors.New("telephony: event without Unique-ID")

func ParseSwitchEvent(r *http.Request) (SwitchEventForm, error) {
	if err := r.ParseForm(); err != nil {
		return SwitchEventForm{}, err
	}
	f := SwitchEventForm{
		CallUUID:    strings.TrimSpace(r.PostFormValue("Unique-ID")),
		EventName:   r.PostFormValue("Event-Name"),
		AnswerState: r.PostFormValue("Answer-State"),
		HangupCause: r.PostFormValue("Hangup-Cause"),
		Duration:    r.PostFormValue("variable_duration"),
		MOS:         r.PostFormValue("variable_rtp_audio_in_mos"),
	}
	if f.CallUUID == "" {
		return SwitchEventForm{}, ErrMissingCallUUID
	}
	return f, nil
}

// ToStatusResult maps the raw event onto the gateway status vocabulary.
func (f SwitchEventForm) ToStatusResult() StatusResult {
	res := StatusResult{Status: StatusUnknown}

	switch f.EventName {
	case "CHANNEL_HANGUP", "CHANNEL_HANGUP_COMPLETE":
		if f.HangupCause != "" && f.HangupCause != "NORMAL_CLEARING" {
			res.Status = StatusFailed
		} else {
			res.Status = StatusCompleted
		}
	default:
		switch strings.ToLower(f.AnswerState) {
		case "ringing", "early":
			res.Status = StatusRinging
		case "answered":
			res.Status = StatusAnswered
		case "hangup":
			res.Status = StatusCompleted
		}
	}

	if n, err := strconv.Atoi(strings.TrimSpace(f.Duration)); err == nil && n >= 0 {
		res.DurationSeconds = n
	}
	if q, err := strconv.ParseFloat(strings.TrimSpace(f.MOS), 64); err == nil {
		res.QualityScore = &q
	}
	return res
}
