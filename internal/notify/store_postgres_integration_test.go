//go:build integration

package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medishare/internal/notify"
	"medishare/pkg/domain"
	"medishare/pkg/testutil/containers"
)

type NotifyPostgresSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *notify.PostgresStore
}

func TestNotifyPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(NotifyPostgresSuite))
}

func (s *NotifyPostgresSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = notify.NewPostgresStore(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *NotifyPostgresSuite) SetupTest() {
	_, err := s.pg.DB.ExecContext(context.Background(), "TRUNCATE notifications")
	s.Require().NoError(err)
}

func (s *NotifyPostgresSuite) entry(recipient domain.RecipientID, doc domain.DocumentID, age time.Duration) notify.Entry {
	return notify.Entry{
		ID:          domain.NewNotificationID(),
		RecipientID: recipient,
		DocumentID:  doc,
		Message:     "hello",
		CreatedAt:   time.Now().Add(-age).UTC(),
		Status:      domain.DeliveryQueued,
	}
}

func (s *NotifyPostgresSuite) TestAppendAndGet() {
	ctx := context.Background()
	entry := s.entry("patient-7", "doc-1", 0)
	s.Require().NoError(s.store.Append(ctx, entry))

	got, err := s.store.Get(ctx, entry.ID)
	s.Require().NoError(err)
	s.Equal(entry.RecipientID, got.RecipientID)
	s.Equal(entry.DocumentID, got.DocumentID)
	s.Equal(domain.DeliveryQueued, got.Status)
	s.Nil(got.ReadAt)
}

func (s *NotifyPostgresSuite) TestMarkReadFirstTimestampWins() {
	ctx := context.Background()
	entry := s.entry("patient-7", "doc-1", 0)
	s.Require().NoError(s.store.Append(ctx, entry))

	first := time.Now().UTC()
	s.Require().NoError(s.store.MarkRead(ctx, entry.ID, first))
	s.Require().NoError(s.store.MarkRead(ctx, entry.ID, first.Add(time.Hour)))

	got, err := s.store.Get(ctx, entry.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.ReadAt)
	s.WithinDuration(first, *got.ReadAt, time.Second)
}

func (s *NotifyPostgresSuite) TestListByRecipientNewestFirst() {
	ctx := context.Background()
	older := s.entry("patient-7", "doc-1", time.Hour)
	newer := s.entry("patient-7", "doc-2", time.Minute)
	other := s.entry("ins-3", "doc-1", 0)
	for _, e := range []notify.Entry{older, newer, other} {
		s.Require().NoError(s.store.Append(ctx, e))
	}

	entries, err := s.store.ListByRecipient(ctx, "patient-7", false)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(newer.ID, entries[0].ID)
	s.Equal(older.ID, entries[1].ID)

	s.Require().NoError(s.store.MarkRead(ctx, newer.ID, time.Now()))
	entries, err = s.store.ListByRecipient(ctx, "patient-7", true)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(older.ID, entries[0].ID)
}

func (s *NotifyPostgresSuite) TestListQueuedBefore() {
	ctx := context.Background()
	stale := s.entry("patient-7", "doc-1", 10*time.Minute)
	fresh := s.entry("patient-7", "doc-2", 0)
	delivered := s.entry("patient-7", "doc-3", 10*time.Minute)
	for _, e := range []notify.Entry{stale, fresh, delivered} {
		s.Require().NoError(s.store.Append(ctx, e))
	}
	s.Require().NoError(s.store.SetStatus(ctx, delivered.ID, domain.DeliveryDelivered, ""))

	entries, err := s.store.ListQueuedBefore(ctx, time.Now().Add(-5*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(stale.ID, entries[0].ID)
}

func (s *NotifyPostgresSuite) TestExistsFor() {
	ctx := context.Background()
	s.Require().NoError(s.store.Append(ctx, s.entry("patient-7", "doc-1", 0)))

	ok, err := s.store.ExistsFor(ctx, "patient-7", "doc-1")
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.ExistsFor(ctx, "patient-7", "doc-2")
	s.Require().NoError(err)
	s.False(ok)
}
