package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"budsjett/internal/core"
	"budsjett/internal/storage"
	"budsjett/internal/view"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

const sampleDoc = `{
  "meta": {"exportedAt": "2024-06-01T12:00:00Z"},
  "categories": [{"id":"mat","name":"Mat","icon":"🍎"},{"id":"bil","name":"Bil"}],
  "byCategory": [{"categoryId":"mat","sum":-4200},{"categoryId":"bil","sum":-900}],
  "byMonthByCategory": {"2024-05": {"mat": -600, "bil": -100}},
  "byMonthBudget": {"2024-05": {"mat": 500, "bil": ""}}
}`

type failingStore struct {
	loadErr error
	saveErr error
	saved   int
}

func (f *failingStore) LoadDocument(context.Context) ([]byte, error) { return nil, f.loadErr }
func (f *failingStore) SaveDocument(context.Context, []byte) error {
	f.saved++
	return f.saveErr
}
func (f *failingStore) Close() error { return nil }

type recordingNotifier struct {
	calls int
	err   error
}

func (n *recordingNotifier) NotifyLoaded(context.Context, core.Raw) error {
	n.calls++
	return n.err
}

func formatter() core.Formatter {
	return core.NewFormatter(language.MustParse("nb-NO"), "kr", time.UTC)
}

func TestLoaderRoundTripThroughCache(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	first := NewLoaderService(store, nil, 0)
	raw, err := first.Load(ctx, strings.NewReader(sampleDoc))
	require.NoError(t, err)
	loaded := view.Build(raw, formatter())
	require.True(t, loaded.HasData)

	restarted := NewLoaderService(store, nil, 0)
	assert.Nil(t, restarted.Current())
	restarted.Startup(ctx)

	assert.Equal(t, raw, restarted.Current())
	assert.Equal(t, loaded, view.Build(restarted.Current(), formatter()))
}

func TestLoaderParseErrorKeepsCurrentDocument(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	notifier := &recordingNotifier{}
	svc := NewLoaderService(store, notifier, 0)

	good, err := svc.Load(ctx, strings.NewReader(sampleDoc))
	require.NoError(t, err)

	_, err = svc.Load(ctx, strings.NewReader(`{"categories": [`))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMalformedDocument)

	assert.Equal(t, good, svc.Current())
	cached, err := store.LoadDocument(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(good), cached, "cache must not be overwritten by a failed load")
	assert.Equal(t, 1, notifier.calls)
}

func TestLoaderAcceptsWellFormedDocumentWithoutData(t *testing.T) {
	ctx := context.Background()
	svc := NewLoaderService(storage.NewMemoryStore(), nil, 0)

	_, err := svc.Load(ctx, strings.NewReader(sampleDoc))
	require.NoError(t, err)

	raw, err := svc.Load(ctx, strings.NewReader(`{"meta":{}}`))
	require.NoError(t, err, "missing fields are not a parse error")
	assert.Equal(t, raw, svc.Current())
	assert.False(t, view.Build(svc.Current(), formatter()).HasData)
}

func TestLoaderSwallowsCacheAndNotifierFailures(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{loadErr: errors.New("disk gone"), saveErr: errors.New("quota exceeded")}
	notifier := &recordingNotifier{err: errors.New("broker down")}
	svc := NewLoaderService(store, notifier, 0)

	svc.Startup(ctx)
	assert.Nil(t, svc.Current())

	raw, err := svc.Load(ctx, strings.NewReader(sampleDoc))
	require.NoError(t, err)
	assert.Equal(t, raw, svc.Current())
	assert.Equal(t, 1, store.saved)
	assert.Equal(t, 1, notifier.calls)
}

func TestLoaderStartupIgnoresCorruptCache(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.SaveDocument(ctx, []byte("{not json")))

	svc := NewLoaderService(store, nil, 0)
	svc.Startup(ctx)
	assert.Nil(t, svc.Current())
	assert.False(t, view.Build(svc.Current(), formatter()).HasData)
}

func TestLoaderRejectsOversizedDocument(t *testing.T) {
	svc := NewLoaderService(storage.NewMemoryStore(), nil, 16)
	_, err := svc.Load(context.Background(), strings.NewReader(sampleDoc))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocumentTooLarge)

	var pe *core.ParseError
	assert.True(t, errors.As(err, &pe))
	assert.Nil(t, svc.Current())
}

func TestLoaderLastLoadWins(t *testing.T) {
	ctx := context.Background()
	svc := NewLoaderService(nil, nil, 0)

	_, err := svc.Load(ctx, strings.NewReader(`{"categories":[],"byCategory":[]}`))
	require.NoError(t, err)
	second, err := svc.Load(ctx, strings.NewReader(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, second, svc.Current())
	assert.NoError(t, svc.Ping(ctx))
	assert.NoError(t, svc.Close())
}

func TestLoaderConcurrentLoadsKeepCacheInStep(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewLoaderService(store, nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc := fmt.Sprintf(`{"categories":[],"byCategory":[],"n":%d}`, i)
			_, err := svc.Load(ctx, strings.NewReader(doc))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	cached, err := store.LoadDocument(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(svc.Current()), cached)
}
