// Package codec turns a captured submission into its network representation.
//
// Attachments are inlined as base64 text. The source payload is never
// modified and the codec keeps no state between calls.
package codec

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/formsync/internal/client/models"
	"github.com/dmitrijs2005/formsync/internal/common"
)

// TimeLayout is RFC 3339 in UTC with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrMalformedBody = errors.New("malformed transport body")

// EncodedAttachment is an attachment with its content inlined.
type EncodedAttachment struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Data string `json:"data"`
}

// Bytes decodes the base64 content.
func (a EncodedAttachment) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}

// TransportPayload is the self-contained, serializable form of a submission.
type TransportPayload struct {
	SubmissionID string
	Fields       map[string]string
	SubmittedAt  time.Time
	Attachments  []EncodedAttachment
}

// EncodeForTransport reads every attachment of p and returns a deep copy with
// the content inlined. Any unreadable blob, or one whose length differs from
// its declared size, aborts the whole encode with common.ErrAttachmentRead.
func EncodeForTransport(ctx context.Context, p models.Payload) (*TransportPayload, error) {
	out := &TransportPayload{
		SubmissionID: p.SubmissionID,
		Fields:       make(map[string]string, len(p.Fields)),
		SubmittedAt:  p.SubmittedAt,
		Attachments:  make([]EncodedAttachment, 0, len(p.Attachments)),
	}
	for k, v := range p.Fields {
		out.Fields[k] = v
	}

	for _, a := range p.Attachments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := models.ReadBlob(a.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: attachment %q: %v", common.ErrAttachmentRead, a.Name, err)
		}
		if int64(len(data)) != a.Size {
			return nil, fmt.Errorf("%w: attachment %q: read %d bytes, declared %d",
				common.ErrAttachmentRead, a.Name, len(data), a.Size)
		}

		out.Attachments = append(out.Attachments, EncodedAttachment{
			Name: a.Name,
			Type: a.Type,
			Size: a.Size,
			Data: base64.StdEncoding.EncodeToString(data),
		})
	}

	return out, nil
}

// MarshalJSON flattens the form fields into the top-level object next to
// submittedAt and attachments.
func (t *TransportPayload) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(t.Fields)+2)
	for k, v := range t.Fields {
		obj[k] = v
	}

	atts := t.Attachments
	if atts == nil {
		atts = []EncodedAttachment{}
	}
	obj[common.AttachmentsKey] = atts
	obj[common.SubmittedAtKey] = t.SubmittedAt.UTC().Format(TimeLayout)

	return json.Marshal(obj)
}

// Decode parses a body produced by MarshalJSON. Every top-level key other than
// submittedAt and attachments must hold a string.
func Decode(body []byte) (*TransportPayload, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	t := &TransportPayload{Fields: make(map[string]string, len(raw))}

	for k, v := range raw {
		switch k {
		case common.AttachmentsKey:
			if err := json.Unmarshal(v, &t.Attachments); err != nil {
				return nil, fmt.Errorf("%w: attachments: %v", ErrMalformedBody, err)
			}
		case common.SubmittedAtKey:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("%w: submittedAt: %v", ErrMalformedBody, err)
			}
			at, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("%w: submittedAt: %v", ErrMalformedBody, err)
			}
			t.SubmittedAt = at
		default:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, fmt.Errorf("%w: field %q: %v", ErrMalformedBody, k, err)
			}
			t.Fields[k] = s
		}
	}

	if t.Attachments == nil {
		t.Attachments = []EncodedAttachment{}
	}
	return t, nil
}
