package jobs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/pulseboard/pulseboard/testing"
)

type fakeIndex struct {
	names []string
	err   error
}

func (f fakeIndex) ListMediaNames(context.Context) ([]string, error) {
	return f.names, f.err
}

type fakeStore struct {
	files   map[string]time.Time
	removed []string
}

func newFakeStore(names ...string) *fakeStore {
	files := make(map[string]time.Time, len(names))
	aged := time.Now().Add(-2 * time.Hour)
	for _, n := range names {
		files[n] = aged
	}
	return &fakeStore{files: files}
}

func (f *fakeStore) touch(name string) {
	f.files[name] = time.Now()
}

func (f *fakeStore) List() ([]string, error) {
	out := make([]string, 0, len(f.files))
	for n := range f.files {
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeStore) ModTime(name string) (time.Time, error) {
	mt, ok := f.files[name]
	if !ok {
		return time.Time{}, os.ErrNotExist
	}
	return mt, nil
}

func (f *fakeStore) Remove(name string) error {
	delete(f.files, name)
	f.removed = append(f.removed, name)
	return nil
}

func TestMediaSweep_RemovesOnlyOrphans(t *testing.T) {
	store := newFakeStore("keep_a.png", "keep_b.gif", "orphan_c.png")
	sweeper := NewMediaSweeper(fakeIndex{names: []string{"keep_a.png", "keep_b.gif"}}, store, nil)

	require.NoError(t, sweeper.HandleMediaSweep(context.Background(), NewMediaSweepTask()))
	assert.ElementsMatch(t, []string{"orphan_c.png"}, store.removed)
	_, kept := store.files["keep_a.png"]
	assert.True(t, kept)
}

func TestMediaSweep_SparesFreshUnreferencedUpload(t *testing.T) {
	// A blob is written before its post row lands; a sweep running inside
	// that window must leave it alone.
	store := newFakeStore("inflight_deadbeef.png", "stale_cafebabe.png")
	store.touch("inflight_deadbeef.png")
	sweeper := NewMediaSweeper(fakeIndex{}, store, nil)

	require.NoError(t, sweeper.HandleMediaSweep(context.Background(), NewMediaSweepTask()))
	assert.ElementsMatch(t, []string{"stale_cafebabe.png"}, store.removed)
	_, kept := store.files["inflight_deadbeef.png"]
	assert.True(t, kept)
}

func TestMediaSweep_IndexFailureRemovesNothing(t *testing.T) {
	store := newFakeStore("orphan.png")
	sweeper := NewMediaSweeper(fakeIndex{err: assert.AnError}, store, nil)

	require.Error(t, sweeper.HandleMediaSweep(context.Background(), NewMediaSweepTask()))
	assert.Empty(t, store.removed)
}

func TestSendEmailTaskRoundTrip(t *testing.T) {
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@b.c", Subject: "s", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeSendEmail, task.Type())
	assert.Contains(t, string(task.Payload()), "a@b.c")
}
