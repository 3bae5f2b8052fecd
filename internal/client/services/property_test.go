package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/formsync/internal/client/models"
	"github.com/dmitrijs2005/formsync/internal/common"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func fieldsFrom(keys, values []string) map[string]string {
	fields := make(map[string]string)
	for i := 0; i < len(keys) && i < len(values); i++ {
		k := keys[i]
		if k == "" || k == common.AttachmentsKey || k == common.SubmittedAtKey {
			continue
		}
		fields[k] = values[i]
	}
	return fields
}

func attachmentsFrom(contents []string) []models.Attachment {
	atts := make([]models.Attachment, 0, len(contents))
	for i, c := range contents {
		atts = append(atts, models.Attachment{
			Name:    "file" + string(rune('a'+i%26)),
			Type:    "application/octet-stream",
			Size:    int64(len(c)),
			Content: models.BytesBlob(c),
		})
	}
	return atts
}

func TestSubmitProperty_SucceedingTransportDelivers(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("submit with a succeeding transport ends delivered with an empty store", prop.ForAll(
		func(keys, values, contents []string) bool {
			q, tr := newMemQueue(), newFakeTransport(alwaysOK)
			svc := newService(q, tr, online(true))

			p := models.NewPayload(fieldsFrom(keys, values), attachmentsFrom(contents), now)
			res, err := svc.Submit(context.Background(), p)
			if err != nil || res.Status != StatusDelivered {
				return false
			}
			n, _ := q.Count(context.Background())
			return n == 0 && tr.deliveries(p.SubmissionID) == 1
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.AnyString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestSubmitProperty_FailingTransportQueuesOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("submit with a failing transport queues exactly one entry", prop.ForAll(
		func(keys, values []string, serverSide bool) bool {
			fail := alwaysNetworkError
			if serverSide {
				fail = alwaysServerError
			}
			q, tr := newMemQueue(), newFakeTransport(fail)
			svc := newService(q, tr, online(true))

			p := models.NewPayload(fieldsFrom(keys, values), nil, now)
			res, err := svc.Submit(context.Background(), p)
			if err != nil || res.Status != StatusQueuedForRetry {
				return false
			}
			list, _ := q.ListAll(context.Background())
			return len(list) == 1 && list[0].Payload.SubmissionID == p.SubmissionID
		},
		gen.SliceOf(gen.Identifier()),
		gen.SliceOf(gen.AnyString()),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
