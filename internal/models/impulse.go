// ABOUTME: Impulses are internal scheduler events consumed by the orchestrator
// ABOUTME: Attachments are user-supplied files split into text and image parts
package models

import (
	"strings"
	"time"
)

// ImpulseType names a scheduler event
type ImpulseType string

const (
	TriggerSelfReflection  ImpulseType = "TRIGGER_SELF_REFLECTION"
	TriggerMorningBriefing ImpulseType = "TRIGGER_MORNING_BRIEFING"
	IdleCheck              ImpulseType = "IDLE_CHECK"
)

// Impulse is one scheduler firing
type Impulse struct {
	Type      ImpulseType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// Attachment is a file sent alongside a user turn
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// IsImage reports whether the attachment should travel as an image part
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.MIMEType), "image/")
}

// IsText reports whether the attachment can be decoded into the prompt
func (a Attachment) IsText() bool {
	mt := strings.ToLower(a.MIMEType)
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	switch {
	case strings.HasPrefix(mt, "text/"):
		return true
	case mt == "application/json", mt == "application/xml", mt == "application/x-yaml", mt == "application/yaml":
		return true
	}
	return false
}
