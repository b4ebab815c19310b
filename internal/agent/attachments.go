// ABOUTME: Splits user attachments into prompt text and image parts
// ABOUTME: Text files are inlined; images travel as base64 data URLs
package agent

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/harper/duet/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// ImagePlaceholder stands in for perception when a turn carries only images
const ImagePlaceholder = "[the user sent an image]"

// maxInlineBytes bounds how much of a text attachment is inlined
const maxInlineBytes = 32 * 1024

// SplitAttachments appends decodable text attachments to userText and turns
// image attachments into image parts. Other attachments are named but not inlined.
func SplitAttachments(userText string, attachments []models.Attachment) (string, []openai.ChatMessagePart) {
	var (
		b      strings.Builder
		images []openai.ChatMessagePart
	)
	b.WriteString(userText)

	for _, a := range attachments {
		switch {
		case a.IsImage():
			images = append(images, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			})
		case a.IsText() && utf8.Valid(a.Data):
			data := a.Data
			truncated := false
			if len(data) > maxInlineBytes {
				data = data[:maxInlineBytes]
				for !utf8.Valid(data) && len(data) > 0 {
					data = data[:len(data)-1]
				}
				truncated = true
			}
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "--- file: %s ---\n%s", a.Name, data)
			if truncated {
				b.WriteString("\n[truncated]")
			}
			b.WriteString("\n--- end of file ---")
		default:
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "[attached file %s (%s) could not be read]", a.Name, a.MIMEType)
		}
	}
	return b.String(), images
}

// PerceptionText is the text used for emotion and recall. Image-only turns
// get the placeholder; the reasoning call still receives the empty text.
func PerceptionText(text string, images []openai.ChatMessagePart) string {
	if strings.TrimSpace(text) == "" && len(images) > 0 {
		return ImagePlaceholder
	}
	return text
}
