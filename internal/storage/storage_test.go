package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/freescanner-live/internal/scanner"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewLocalStore(dir)
	key := "1/2024-01-02/7-call.mp3"

	t.Run("store_and_locate", func(t *testing.T) {
		require.NoError(t, s.Store(ctx, key, []byte("abc"), "audio/mpeg"))
		assert.True(t, s.Has(ctx, key))
		loc, err := s.Locate(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, Location{Path: filepath.Join(dir, "1", "2024-01-02", "7-call.mp3")}, loc)
		data, err := os.ReadFile(loc.Path)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(data))
	})

	t.Run("missing", func(t *testing.T) {
		assert.False(t, s.Has(ctx, "1/2024-01-02/8-none.mp3"))
		_, err := s.Locate(ctx, "1/2024-01-02/8-none.mp3")
		assert.ErrorIs(t, err, ErrNotArchived)
		assert.False(t, s.Has(ctx, "1/2024-01-02"), "date directories are not calls")
	})

	t.Run("rejects_escaping_keys", func(t *testing.T) {
		assert.ErrorIs(t, s.Store(ctx, "../outside", []byte("x"), ""), ErrInvalidKey)
		_, err := s.Locate(ctx, "/etc/passwd")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

type fakeBackup struct {
	objects map[string][]byte
	failPut bool
	fetched []string
}

func (f *fakeBackup) Store(_ context.Context, key string, audio []byte, _ string) error {
	if f.failPut {
		return errors.New("s3 unreachable")
	}
	f.objects[key] = audio
	return nil
}

func (f *fakeBackup) Has(_ context.Context, key string) bool {
	_, ok := f.objects[key]
	return ok
}

func (f *fakeBackup) fetch(_ context.Context, key string) ([]byte, error) {
	f.fetched = append(f.fetched, key)
	audio, ok := f.objects[key]
	if !ok {
		return nil, ErrNotArchived
	}
	return audio, nil
}

func TestTieredStore(t *testing.T) {
	ctx := context.Background()
	key := "3/2024-03-09/42-fd.m4a"
	newTiered := func(t *testing.T) (*TieredStore, *LocalStore, *fakeBackup) {
		local := NewLocalStore(t.TempDir())
		b := &fakeBackup{objects: map[string][]byte{}}
		return &TieredStore{local: local, backup: b, log: zerolog.Nop()}, local, b
	}

	t.Run("store_writes_both", func(t *testing.T) {
		s, local, b := newTiered(t)
		require.NoError(t, s.Store(ctx, key, []byte("m4a"), "audio/mp4"))
		assert.True(t, local.Has(ctx, key))
		assert.Equal(t, []byte("m4a"), b.objects[key])
		assert.Equal(t, "tiered", s.Kind())
	})

	t.Run("s3_failure_keeps_local_copy", func(t *testing.T) {
		s, local, b := newTiered(t)
		b.failPut = true
		require.NoError(t, s.Store(ctx, key, []byte("m4a"), "audio/mp4"))
		assert.True(t, local.Has(ctx, key))
		assert.False(t, b.Has(ctx, key))
	})

	t.Run("local_copy_served_without_s3", func(t *testing.T) {
		s, local, b := newTiered(t)
		require.NoError(t, local.Store(ctx, key, []byte("m4a"), ""))
		loc, err := s.Locate(ctx, key)
		require.NoError(t, err)
		assert.NotEmpty(t, loc.Path)
		assert.Empty(t, b.fetched)
	})

	t.Run("pruned_call_restored_from_s3", func(t *testing.T) {
		s, local, b := newTiered(t)
		b.objects[key] = []byte("from-s3")
		assert.True(t, s.Has(ctx, key))

		loc, err := s.Locate(ctx, key)
		require.NoError(t, err)
		data, err := os.ReadFile(loc.Path)
		require.NoError(t, err)
		assert.Equal(t, "from-s3", string(data))
		assert.True(t, local.Has(ctx, key), "restored into the local cache")

		_, err = s.Locate(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []string{key}, b.fetched, "second lookup is served from disk")
	})

	t.Run("unwritable_cache_streams_from_s3", func(t *testing.T) {
		local := NewLocalStore(filepath.Join(t.TempDir(), "file"))
		require.NoError(t, os.WriteFile(local.dir, []byte("not a directory"), 0o644))
		b := &fakeBackup{objects: map[string][]byte{key: []byte("from-s3")}}
		s := &TieredStore{local: local, backup: b, log: zerolog.Nop()}

		loc, err := s.Locate(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, loc.Body)
		defer loc.Body.Close()
		data, err := io.ReadAll(loc.Body)
		require.NoError(t, err)
		assert.Equal(t, "from-s3", string(data))
	})

	t.Run("missing_everywhere", func(t *testing.T) {
		s, _, _ := newTiered(t)
		assert.False(t, s.Has(ctx, key))
		_, err := s.Locate(ctx, key)
		assert.ErrorIs(t, err, ErrNotArchived)
	})
}

func TestArchiveKey(t *testing.T) {
	at := time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC)
	tests := []struct {
		name string
		call scanner.Call
		want string
	}{
		{"audio_name", scanner.Call{ID: 42, System: 3, DateTime: at, AudioName: "1710027000-100.m4a"}, "3/2024-03-09/42-1710027000-100.m4a"},
		{"strips_directories", scanner.Call{ID: 1, System: 1, DateTime: at, AudioName: "../../x.mp3"}, "1/2024-03-09/1-x.mp3"},
		{"windows_path", scanner.Call{ID: 1, System: 1, DateTime: at, AudioName: `C:\rec\y.wav`}, "1/2024-03-09/1-y.wav"},
		{"fallback_from_type", scanner.Call{ID: 5, System: 2, DateTime: at, AudioType: "audio/mpeg"}, "2/2024-03-09/5-call.mp3"},
		{"fallback_unknown_type", scanner.Call{ID: 5, System: 2, DateTime: at}, "2/2024-03-09/5-call"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ArchiveKey(&tt.call); got != tt.want {
				t.Errorf("ArchiveKey = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestArchiver(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	a := NewArchiver(store, 8, zerolog.Nop())
	a.Start(2)

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a.CallPlayed(&scanner.Call{ID: 1, System: 9, DateTime: at, AudioName: "a.mp3", Audio: scanner.Audio("one")})
	a.CallDownloaded(&scanner.Call{ID: 2, System: 9, DateTime: at, AudioName: "b.mp3", Audio: scanner.Audio("two")})
	a.CallPlayed(&scanner.Call{ID: 3, System: 9, DateTime: at})
	a.CallPlayed(nil)
	a.Stop()

	for key, want := range map[string]string{"9/2024-01-02/1-a.mp3": "one", "9/2024-01-02/2-b.mp3": "two"} {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
		if err != nil {
			t.Fatalf("read %s: %v", key, err)
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", key, data, want)
		}
	}
	if store.Has(context.Background(), "9/2024-01-02/3-call") {
		t.Error("call without audio archived")
	}

	// Enqueue after Stop is a no-op.
	a.CallPlayed(&scanner.Call{ID: 4, System: 9, DateTime: at, Audio: scanner.Audio("x")})
}

func TestArchivePruner(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	write := func(key string, age time.Duration) {
		t.Helper()
		if err := store.Store(ctx, key, []byte("data"), ""); err != nil {
			t.Fatal(err)
		}
		ts := now.Add(-age)
		if err := os.Chtimes(filepath.Join(dir, filepath.FromSlash(key)), ts, ts); err != nil {
			t.Fatal(err)
		}
	}
	write("1/2024-05-01/1-old.mp3", 31*24*time.Hour)
	write("1/2024-06-01/2-new.mp3", time.Hour)

	p := NewArchivePruner(dir, 30*24*time.Hour, 0, nil, zerolog.Nop())
	p.now = func() time.Time { return now }

	if n := p.prune(); n != 1 {
		t.Fatalf("prune removed %d, want 1", n)
	}
	if store.Has(ctx, "1/2024-05-01/1-old.mp3") {
		t.Error("expired call still archived")
	}
	if !store.Has(ctx, "1/2024-06-01/2-new.mp3") {
		t.Error("recent call pruned")
	}
	if _, err := os.Stat(filepath.Join(dir, "1", "2024-05-01")); !os.IsNotExist(err) {
		t.Error("empty date directory not removed")
	}
}

func TestHumanizeBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := humanizeBytes(tt.in); got != tt.want {
			t.Errorf("humanizeBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
