package fanout

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medishare/internal/directory"
	"medishare/internal/document"
	"medishare/internal/ledger"
	"medishare/internal/notify"
	kafkaconsumer "medishare/internal/platform/kafka/consumer"
	"medishare/internal/resolver"
	"medishare/pkg/domain"
)

func newEventHandler(t *testing.T) (*EventHandler, *document.InMemoryStore, *notify.Queue) {
	t.Helper()

	dir := directory.NewStaticDirectory()
	dir.SetInsurer("patient-7", "ins-3")
	dir.SetPharmacist("ph-1", true)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	documents := document.NewInMemoryStore()
	queue := notify.NewQueue(notify.NewInMemoryStore(), logger, nil)
	service := NewService(documents, resolver.New(dir), ledger.NewInMemoryStore(), queue, logger, nil, Config{})

	return NewEventHandler(service, documents, logger), documents, queue
}

func finalizedMessage(t *testing.T, event DocumentFinalized) *kafkaconsumer.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return &kafkaconsumer.Message{
		Topic: "documents.finalized",
		Key:   []byte(event.DocumentID),
		Value: payload,
	}
}

func TestHandleRegistersAndFansOut(t *testing.T) {
	handler, documents, queue := newEventHandler(t)
	ctx := context.Background()

	msg := finalizedMessage(t, DocumentFinalized{
		DocumentID: "doc-1",
		DomainType: "prescription",
		SubjectID:  "patient-7",
		AuthorID:   "dr-5",
		Title:      "Amoxicillin 500mg",
	})
	require.NoError(t, handler.Handle(ctx, msg))

	doc, err := documents.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.FanOutComplete, doc.FanOutState)
	assert.Equal(t, domain.SubjectID("patient-7"), doc.SubjectID)

	for _, id := range []domain.RecipientID{"patient-7", "ins-3", "ph-1"} {
		entries, err := queue.ListByRecipient(ctx, id, false)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "recipient %s", id)
	}
}

func TestHandleDuplicateEvent(t *testing.T) {
	handler, _, queue := newEventHandler(t)
	ctx := context.Background()

	msg := finalizedMessage(t, DocumentFinalized{
		DocumentID: "doc-1",
		DomainType: "prescription",
		SubjectID:  "patient-7",
	})
	require.NoError(t, handler.Handle(ctx, msg))
	require.NoError(t, handler.Handle(ctx, msg))

	entries, err := queue.ListByRecipient(ctx, "patient-7", false)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHandleMalformedPayloadCommits(t *testing.T) {
	handler, _, _ := newEventHandler(t)

	msg := &kafkaconsumer.Message{
		Topic: "documents.finalized",
		Value: []byte("{not json"),
	}
	// nil means commit: redelivering a malformed payload cannot help.
	assert.NoError(t, handler.Handle(context.Background(), msg))
}

func TestHandleMissingDocumentIDCommits(t *testing.T) {
	handler, _, _ := newEventHandler(t)

	msg := finalizedMessage(t, DocumentFinalized{DomainType: "prescription", SubjectID: "patient-7"})
	assert.NoError(t, handler.Handle(context.Background(), msg))
}

func TestHandleUnknownDomainTypeCommits(t *testing.T) {
	handler, documents, _ := newEventHandler(t)
	ctx := context.Background()

	msg := finalizedMessage(t, DocumentFinalized{
		DocumentID: "doc-9",
		DomainType: "lab_result",
		SubjectID:  "patient-7",
	})
	require.NoError(t, handler.Handle(ctx, msg))

	// The document sits in partial state awaiting operator attention.
	doc, err := documents.Get(ctx, "doc-9")
	require.NoError(t, err)
	assert.Equal(t, domain.FanOutPartial, doc.FanOutState)
}
