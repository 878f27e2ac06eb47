package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/apierr"
)

type fakeAccessor struct {
	unread     []Entry
	seen       []Entry
	markSeenOK bool
}

func (f *fakeAccessor) FetchUnread(ctx context.Context, before time.Duration) ([]Entry, error) {
	return f.unread, nil
}

func (f *fakeAccessor) MarkSeen(ctx context.Context, e Entry) (bool, error) {
	f.seen = append(f.seen, e)
	return f.markSeenOK, nil
}

type fakePublisher struct {
	published []Entry
	err       error
}

func (f *fakePublisher) PublishOutboxEntry(ctx context.Context, e Entry) error {
	f.published = append(f.published, e)
	return f.err
}

func TestReader_Tick_PublishesThenMarksSeen(t *testing.T) {
	entry := Entry{App: "app1", Device: "dev1", Path: "spec", Revision: 3, UID: "u1"}
	acc := &fakeAccessor{unread: []Entry{entry}, markSeenOK: true}
	pub := &fakePublisher{}

	r := &Reader{accessor: acc, pub: pub, log: zap.NewNop()}
	r.tick(context.Background())

	assert.Equal(t, []Entry{entry}, pub.published)
	assert.Equal(t, []Entry{entry}, acc.seen)
}

func TestReader_Tick_RetriesOnTemporaryPublishFailure(t *testing.T) {
	entry := Entry{App: "app1", Device: "dev1", Path: "spec", Revision: 1, UID: "u1"}
	acc := &fakeAccessor{unread: []Entry{entry}}
	pub := &fakePublisher{err: apierr.New(apierr.KindTemporary, "bus full")}

	r := &Reader{accessor: acc, pub: pub, log: zap.NewNop()}
	r.tick(context.Background())

	assert.Empty(t, acc.seen, "should not mark seen when publish failed")
}

func TestReader_Tick_DropsOnPermanentPublishFailure(t *testing.T) {
	entry := Entry{App: "app1", Device: "dev1", Path: "spec", Revision: 1, UID: "u1"}
	acc := &fakeAccessor{unread: []Entry{entry}}
	pub := &fakePublisher{err: apierr.New(apierr.KindPermanent, "bad event")}

	r := &Reader{accessor: acc, pub: pub, log: zap.NewNop()}
	r.tick(context.Background())

	assert.Empty(t, acc.seen)
}
