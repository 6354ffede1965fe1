package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"btxclinic/internal/blob"
	"btxclinic/internal/infra/persistence/memory"
	"btxclinic/pkg/domain"
)

var baseTime = time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)

// steppingClock advances one second on every call so timestamps are distinct.
type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newSteppingClock() *steppingClock { return &steppingClock{now: baseTime} }

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

// opLog records the order in which both stores are touched.
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	l.ops = append(l.ops, op)
	l.mu.Unlock()
}

func (l *opLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}

func (l *opLog) reset() {
	l.mu.Lock()
	l.ops = nil
	l.mu.Unlock()
}

var errInjected = errors.New("injected failure")

type recordingStateStore struct {
	*memory.Store
	log      *opLog
	failSave bool
}

func (s *recordingStateStore) Save(ctx context.Context, doc domain.Document) error {
	s.log.add("state.save")
	if s.failSave {
		return errInjected
	}
	return s.Store.Save(ctx, doc)
}

type recordingBlobStore struct {
	blob.Store
	log        *opLog
	failPut    bool
	failDelete bool
}

func (s *recordingBlobStore) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	s.log.add("blob.put:" + key)
	if s.failPut {
		return blob.Info{}, errInjected
	}
	return s.Store.Put(ctx, key, r, opts)
}

func (s *recordingBlobStore) Delete(ctx context.Context, key string) (bool, error) {
	s.log.add("blob.delete:" + key)
	if s.failDelete {
		return false, errInjected
	}
	return s.Store.Delete(ctx, key)
}

type fixture struct {
	svc   *Service
	state *recordingStateStore
	blobs *recordingBlobStore
	log   *opLog
}

func newFixture(t *testing.T, opts ...ServiceOption) *fixture {
	t.Helper()
	log := &opLog{}
	f := &fixture{
		state: &recordingStateStore{Store: memory.NewStore(), log: log},
		blobs: &recordingBlobStore{Store: blob.NewMemory(), log: log},
		log:   log,
	}
	base := []ServiceOption{WithClock(newSteppingClock()), WithIDGenerator(sequentialIDs())}
	svc, err := Open(context.Background(), f.state, f.blobs, append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	log.reset()
	return f
}

func (f *fixture) patient(t *testing.T, name string) domain.Patient {
	t.Helper()
	p, _, err := f.svc.CreatePatient(context.Background(), domain.Patient{Name: name})
	require.NoError(t, err)
	return p
}

func (f *fixture) storedDocument(t *testing.T) domain.Document {
	t.Helper()
	doc, ok, err := f.state.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	return doc
}

func (f *fixture) blobKeys(t *testing.T) []string {
	t.Helper()
	infos, err := f.blobs.List(context.Background(), "")
	require.NoError(t, err)
	return blob.Keys(infos)
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
