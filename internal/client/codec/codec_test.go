package codec

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/formsync/internal/client/models"
	"github.com/dmitrijs2005/formsync/internal/common"
	"github.com/stretchr/testify/require"
)

var submittedAt = time.Date(2024, 2, 29, 8, 15, 30, 123000000, time.UTC)

type brokenBlob struct{}

func (brokenBlob) Open() (io.ReadCloser, error) { return nil, errors.New("io failure") }

type countingBlob struct {
	data  []byte
	opens int
}

func (c *countingBlob) Open() (io.ReadCloser, error) {
	c.opens++
	return io.NopCloser(strings.NewReader(string(c.data))), nil
}

func TestEncodeForTransport_RoundTripTenBytes(t *testing.T) {
	content := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 255}
	p := models.Payload{
		SubmissionID: "3f1c",
		Fields:       map[string]string{common.ComplainantNameField: "Ann", "p3_location": "Main st"},
		Attachments: []models.Attachment{
			{Name: "evidence.bin", Type: "application/octet-stream", Size: 10, Content: models.BytesBlob(content)},
		},
		SubmittedAt: submittedAt,
	}

	enc, err := EncodeForTransport(context.Background(), p)
	require.NoError(t, err)

	body, err := json.Marshal(enc)
	require.NoError(t, err)

	dec, err := Decode(body)
	require.NoError(t, err)

	require.Equal(t, p.Fields, dec.Fields)
	require.True(t, submittedAt.Equal(dec.SubmittedAt))
	require.Len(t, dec.Attachments, 1)

	a := dec.Attachments[0]
	require.Equal(t, "evidence.bin", a.Name)
	require.Equal(t, "application/octet-stream", a.Type)
	require.EqualValues(t, 10, a.Size)

	got, err := a.Bytes()
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestEncodeForTransport_NoAttachments(t *testing.T) {
	p := models.Payload{SubmissionID: "x", Fields: map[string]string{"a": "1"}, SubmittedAt: submittedAt}

	enc, err := EncodeForTransport(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, p.Fields, enc.Fields)
	require.NotNil(t, enc.Attachments)
	require.Empty(t, enc.Attachments)

	body, err := json.Marshal(enc)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":"1","submittedAt":"2024-02-29T08:15:30.123Z","attachments":[]}`, string(body))
}

func TestEncodeForTransport_DoesNotMutateSource(t *testing.T) {
	blob := &countingBlob{data: []byte("abc")}
	p := models.Payload{
		SubmissionID: "x",
		Fields:       map[string]string{"a": "1"},
		Attachments:  []models.Attachment{{Name: "f", Type: "text/plain", Size: 3, Content: blob}},
	}

	enc, err := EncodeForTransport(context.Background(), p)
	require.NoError(t, err)

	enc.Fields["a"] = "changed"
	require.Equal(t, "1", p.Fields["a"])
	require.Same(t, blob, p.Attachments[0].Content.(*countingBlob))

	_, err = EncodeForTransport(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 2, blob.opens, "each encode reads the blob afresh")
}

func TestEncodeForTransport_AttachmentErrors(t *testing.T) {
	tests := []struct {
		name string
		att  models.Attachment
	}{
		{"open fails", models.Attachment{Name: "a", Size: 1, Content: brokenBlob{}}},
		{"nil content", models.Attachment{Name: "a", Size: 1}},
		{"size mismatch", models.Attachment{Name: "a", Size: 4, Content: models.BytesBlob("abc")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := models.Payload{
				Fields: map[string]string{},
				Attachments: []models.Attachment{
					{Name: "ok", Size: 2, Content: models.BytesBlob("ok")},
					tc.att,
				},
			}
			enc, err := EncodeForTransport(context.Background(), p)
			require.ErrorIs(t, err, common.ErrAttachmentRead)
			require.Nil(t, enc)
		})
	}
}

func TestEncodeForTransport_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := models.Payload{Attachments: []models.Attachment{{Name: "a", Size: 1, Content: models.BytesBlob("a")}}}
	_, err := EncodeForTransport(ctx, p)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDecode_Malformed(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"submittedAt": 5}`,
		`{"submittedAt": "yesterday"}`,
		`{"attachments": "none"}`,
		`{"field": 12}`,
	} {
		_, err := Decode([]byte(body))
		require.ErrorIs(t, err, ErrMalformedBody, body)
	}
}
