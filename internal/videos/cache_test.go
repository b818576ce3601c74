package videos

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubProvider struct {
	metadata Metadata
	err      error
	calls    int
}

func (s *stubProvider) Lookup(context.Context, Reference) (Metadata, error) {
	s.calls++
	if s.err != nil {
		return Metadata{}, s.err
	}
	return s.metadata, nil
}

func mustReference(t *testing.T, raw string) Reference {
	t.Helper()
	ref, err := ParseReference(raw)
	if err != nil {
		t.Fatalf("ParseReference(%q): %v", raw, err)
	}
	return ref
}

func sampleMetadata() Metadata {
	size := 12.5
	return Metadata{
		Title:     "Test",
		Thumbnail: "thumb.jpg",
		Streams: []Stream{
			{Kind: StreamKindVideo, Quality: "720p", MimeType: "video/mp4", FormatID: "22", SizeMB: &size, Extension: "mp4"},
			{Kind: StreamKindAudio, Quality: "MP3 128kbps", MimeType: "audio/mp4", FormatID: "140", Extension: "mp4"},
		},
	}
}

func TestCachingProviderLookup(t *testing.T) {
	base := &stubProvider{metadata: sampleMetadata()}
	cache := NewCachingProvider(base, time.Minute, time.Minute)
	ref := mustReference(t, "https://youtu.be/dQw4w9WgXcQ")

	ctx := context.Background()

	first, err := cache.Lookup(ctx, ref)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if first.Title != "Test" {
		t.Fatalf("unexpected metadata: %+v", first)
	}
	if base.calls != 1 {
		t.Fatalf("expected base called once got %d", base.calls)
	}

	second, err := cache.Lookup(ctx, ref)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("expected cached result got %d calls", base.calls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("cached metadata differs: %+v vs %+v", first, second)
	}
}

func TestCachingProviderSharesKeyAcrossURLForms(t *testing.T) {
	base := &stubProvider{metadata: sampleMetadata()}
	cache := NewCachingProvider(base, time.Minute, time.Minute)

	for _, raw := range []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=5s",
		"https://youtu.be/dQw4w9WgXcQ?si=abc",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ",
	} {
		if _, err := cache.Lookup(context.Background(), mustReference(t, raw)); err != nil {
			t.Fatalf("lookup %s: %v", raw, err)
		}
	}

	if base.calls != 1 {
		t.Fatalf("expected one base call for equivalent urls got %d", base.calls)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one cache entry got %d", cache.Len())
	}
}

func TestCachingProviderLookupErrors(t *testing.T) {
	ref := mustReference(t, "https://youtu.be/dQw4w9WgXcQ")

	cache := NewCachingProvider(nil, time.Minute, time.Minute)
	if _, err := cache.Lookup(context.Background(), ref); err != ErrProviderUnavailable {
		t.Fatalf("expected provider unavailable got %v", err)
	}

	var nilCache *CachingProvider
	if _, err := nilCache.Lookup(context.Background(), ref); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}

	cache = NewCachingProvider(&stubProvider{}, time.Minute, time.Minute)
	if _, err := cache.Lookup(context.Background(), Reference{}); !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("expected ErrInvalidURL for zero reference got %v", err)
	}
}

func TestCachingProviderDoesNotCacheFailures(t *testing.T) {
	private := &ExtractionError{Reason: ReasonPrivate, Err: errors.New("Private video")}
	base := &stubProvider{err: private}
	cache := NewCachingProvider(base, time.Minute, time.Minute)
	ref := mustReference(t, "https://youtu.be/dQw4w9WgXcQ")

	_, err := cache.Lookup(context.Background(), ref)
	if err != private {
		t.Fatalf("expected the provider error unchanged got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected no cache entry after failure got %d", cache.Len())
	}

	base.err = nil
	base.metadata = sampleMetadata()
	if _, err := cache.Lookup(context.Background(), ref); err != nil {
		t.Fatalf("lookup after failure: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("expected retry to reach base provider got %d calls", base.calls)
	}
}

func TestCachingProviderExpiry(t *testing.T) {
	base := &stubProvider{metadata: Metadata{Title: "Old"}}
	cache := NewCachingProvider(base, time.Millisecond, time.Minute)
	ref := mustReference(t, "https://youtu.be/dQw4w9WgXcQ")

	if _, err := cache.Lookup(context.Background(), ref); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("expected 1 call got %d", base.calls)
	}

	time.Sleep(5 * time.Millisecond)
	base.metadata = Metadata{Title: "New"}

	meta, err := cache.Lookup(context.Background(), ref)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("expected cache miss after expiry got %d calls", base.calls)
	}
	if meta.Title != "New" {
		t.Fatalf("expected refreshed metadata got %+v", meta)
	}
}

func TestCachingProviderInvalidate(t *testing.T) {
	base := &stubProvider{metadata: sampleMetadata()}
	cache := NewCachingProvider(base, time.Minute, time.Minute)
	ref := mustReference(t, "https://youtu.be/dQw4w9WgXcQ")

	if _, err := cache.Lookup(context.Background(), ref); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	cache.Invalidate(ref)
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after invalidate got %d", cache.Len())
	}
	if _, err := cache.Lookup(context.Background(), ref); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if base.calls != 2 {
		t.Fatalf("expected lookup after invalidate to call base got %d", base.calls)
	}

	cache.Close()
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after close got %d", cache.Len())
	}
}

func TestCachingProviderCloseFlushesEntries(t *testing.T) {
	base := &stubProvider{metadata: sampleMetadata()}
	cache := NewCachingProvider(base, time.Hour, time.Minute)
	ref := mustReference(t, "https://youtu.be/dQw4w9WgXcQ")

	if _, err := cache.Lookup(context.Background(), ref); err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one entry got %d", cache.Len())
	}

	cache.Close()
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after close got %d", cache.Len())
	}

	meta, err := cache.Lookup(context.Background(), ref)
	if err != nil {
		t.Fatalf("lookup after close: %v", err)
	}
	if meta.Title != sampleMetadata().Title || base.calls != 2 {
		t.Fatalf("expected a fresh fetch after close got title %q calls %d", meta.Title, base.calls)
	}
}

func TestCachingProviderReturnsIndependentCopies(t *testing.T) {
	base := &stubProvider{metadata: sampleMetadata()}
	cache := NewCachingProvider(base, time.Minute, time.Minute)
	ref := mustReference(t, "https://youtu.be/dQw4w9WgXcQ")

	first, err := cache.Lookup(context.Background(), ref)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	first.Streams[0].Quality = "mutated"

	second, err := cache.Lookup(context.Background(), ref)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if second.Streams[0].Quality != "720p" {
		t.Fatalf("cached metadata was mutated through a returned value: %+v", second.Streams[0])
	}
}

func TestCachingProviderCoalescesConcurrentMisses(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	base := ProviderFunc(func(ctx context.Context, ref Reference) (Metadata, error) {
		calls.Add(1)
		<-release
		return Metadata{Title: "Shared"}, nil
	})

	cache := NewCachingProvider(base, time.Minute, time.Minute)
	ref := mustReference(t, "https://youtu.be/dQw4w9WgXcQ")

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			meta, err := cache.Lookup(context.Background(), ref)
			if err == nil && meta.Title != "Shared" {
				err = errors.New("unexpected title " + meta.Title)
			}
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected concurrent misses to share one base call got %d", got)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected a single cache entry got %d", cache.Len())
	}
}

func TestCachingProviderDefaults(t *testing.T) {
	cache := NewCachingProvider(&stubProvider{}, 0, 0)

	if cache.ttl != DefaultCacheTTL {
		t.Fatalf("expected ttl to default to %v got %v", DefaultCacheTTL, cache.ttl)
	}
}
