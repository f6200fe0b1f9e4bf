package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
	"github.com/JakeFAU/kapwatch/internal/hash/sha256"
	"github.com/JakeFAU/kapwatch/internal/ledger"
	"github.com/JakeFAU/kapwatch/internal/message"
	"github.com/JakeFAU/kapwatch/internal/normalize"
)

const keyword = "Yeni İş İlişkisi"

type fakeFetcher struct {
	mu      sync.Mutex
	batches [][]disclosure.RawRecord
	errs    []error
	calls   int
	block   bool
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]disclosure.RawRecord, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx >= len(f.batches) {
		return f.batches[len(f.batches)-1], nil
	}
	return f.batches[idx], nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	sent     []string
	failKeys map[string]int
}

func (n *fakeNotifier) Notify(_ context.Context, destination string, msg disclosure.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if remaining := n.failKeys[msg.Record.Key]; remaining > 0 {
		n.failKeys[msg.Record.Key] = remaining - 1
		return errors.New("telegram unavailable")
	}
	if destination != "chat" {
		return fmt.Errorf("unexpected destination %q", destination)
	}
	n.sent = append(n.sent, msg.Record.Key)
	return nil
}

func (n *fakeNotifier) keys() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

type fakeArchiver struct {
	cycles []string
	err    error
}

func (a *fakeArchiver) Archive(_ context.Context, cycleID string, _ []disclosure.RawRecord) (string, error) {
	a.cycles = append(a.cycles, cycleID)
	return "memory://" + cycleID, a.err
}

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("cycle-%d", s.n), nil
}

func rawRecord(id, title string) disclosure.RawRecord {
	return disclosure.RawRecord{Source: "test", Fields: map[string]string{
		disclosure.FieldID:      id,
		disclosure.FieldTitle:   title,
		disclosure.FieldCompany: "Company " + id,
	}}
}

func newCycle(t *testing.T, fetcher disclosure.Fetcher, notifier disclosure.Notifier, l disclosure.Ledger) *Cycle {
	t.Helper()
	matcher, err := normalize.NewMatcher(keyword, "tr")
	require.NoError(t, err)
	return New(Deps{
		Fetcher:    fetcher,
		Normalizer: normalize.New(sha256.New(), ""),
		Matcher:    matcher,
		Ledger:     l,
		Formatter:  message.NewFormatter(""),
		Notifier:   notifier,
		IDs:        &seqIDs{},
	}, Config{Destination: "chat", FetchTimeout: time.Second}, zap.NewNop())
}

func TestCycleEmitsBurstOldestFirst(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{batches: [][]disclosure.RawRecord{{
		rawRecord("C", "Yeni İş İlişkisi C"),
		rawRecord("B", "Yeni İş İlişkisi B"),
		rawRecord("A", "Yeni İş İlişkisi A"),
	}}}
	notifier := &fakeNotifier{}
	c := newCycle(t, fetcher, notifier, ledger.NewMemory())

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "cycle-1", res.CycleID)
	assert.Equal(t, []string{"A", "B", "C"}, notifier.keys())
	require.Len(t, res.Dispatched, 3)
	assert.Equal(t, "A", res.Dispatched[0].Key)
}

func TestCycleFiltersByKeyword(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{batches: [][]disclosure.RawRecord{{
		rawRecord("2", "Finansal Rapor"),
		rawRecord("1", "Şirket Yeni İş İlişkisi Kurdu"),
	}}}
	notifier := &fakeNotifier{}
	c := newCycle(t, fetcher, notifier, ledger.NewMemory())

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, []string{"1"}, notifier.keys())
}

func TestCycleNeverDispatchesTwice(t *testing.T) {
	t.Parallel()

	first := []disclosure.RawRecord{
		rawRecord("2", "Yeni İş İlişkisi"),
		rawRecord("1", "Yeni İş İlişkisi"),
	}
	second := []disclosure.RawRecord{
		rawRecord("3", "Yeni İş İlişkisi"),
		rawRecord("2", "Yeni İş İlişkisi"),
		rawRecord("1", "Yeni İş İlişkisi"),
	}
	fetcher := &fakeFetcher{batches: [][]disclosure.RawRecord{first, second, second}}
	notifier := &fakeNotifier{}
	l := ledger.NewMemory()
	c := newCycle(t, fetcher, notifier, l)

	for i := 0; i < 3; i++ {
		_, err := c.Run(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"1", "2", "3"}, notifier.keys())
	assert.Equal(t, 3, l.Len())
}

func TestCyclePartialBatchResilience(t *testing.T) {
	t.Parallel()

	batch := make([]disclosure.RawRecord, 0, 25)
	for i := 25; i > 0; i-- {
		if i == 13 {
			batch = append(batch, disclosure.RawRecord{Source: "test", Fields: map[string]string{
				disclosure.FieldCompany: "no id, no title",
			}})
			continue
		}
		batch = append(batch, rawRecord(fmt.Sprintf("%02d", i), "Yeni İş İlişkisi"))
	}
	notifier := &fakeNotifier{}
	c := newCycle(t, &fakeFetcher{batches: [][]disclosure.RawRecord{batch}}, notifier, ledger.NewMemory())

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, res.Fetched)
	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, 24, res.Matched)
	assert.Len(t, notifier.keys(), 24)
}

func TestCycleFetchFailureLeavesLedgerUntouched(t *testing.T) {
	t.Parallel()

	l := ledger.NewMemory()
	l.Mark("existing")
	fetcher := &fakeFetcher{errs: []error{errors.New("connection reset")}, batches: [][]disclosure.RawRecord{nil}}
	archiver := &fakeArchiver{}
	c := newCycle(t, fetcher, &fakeNotifier{}, l)
	c.deps.Archiver = archiver

	res, err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, disclosure.ErrFetch))
	assert.Equal(t, StatusFetchFailed, res.Status)
	assert.Equal(t, 1, l.Len())
	assert.Empty(t, archiver.cycles)
}

func TestCycleFetchTimeout(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{block: true}
	c := newCycle(t, fetcher, &fakeNotifier{}, ledger.NewMemory())
	c.cfg.FetchTimeout = 20 * time.Millisecond

	res, err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, disclosure.ErrFetch))
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, StatusFetchFailed, res.Status)
}

func TestCycleDispatchFailureIsRetriedNextCycle(t *testing.T) {
	t.Parallel()

	batch := []disclosure.RawRecord{
		rawRecord("2", "Yeni İş İlişkisi"),
		rawRecord("1", "Yeni İş İlişkisi"),
	}
	notifier := &fakeNotifier{failKeys: map[string]int{"2": 1}}
	l := ledger.NewMemory()
	c := newCycle(t, &fakeFetcher{batches: [][]disclosure.RawRecord{batch, batch}}, notifier, l)

	res, err := c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, disclosure.ErrDispatch))
	assert.Equal(t, StatusDispatchFailed, res.Status)
	assert.True(t, l.Seen("1"))
	assert.False(t, l.Seen("2"))

	res, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Skipped)
	assert.True(t, l.Seen("2"))
	assert.Equal(t, []string{"1", "2"}, notifier.keys())
}

func TestCycleArchivesSuccessfulFetches(t *testing.T) {
	t.Parallel()

	archiver := &fakeArchiver{err: errors.New("bucket down")}
	notifier := &fakeNotifier{}
	c := newCycle(t, &fakeFetcher{batches: [][]disclosure.RawRecord{{rawRecord("1", "Yeni İş İlişkisi")}}}, notifier, ledger.NewMemory())
	c.deps.Archiver = archiver

	res, err := c.Run(context.Background())
	require.NoError(t, err, "archive failures must not fail the cycle")
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []string{"cycle-1"}, archiver.cycles)
	assert.Equal(t, []string{"1"}, notifier.keys())
}
