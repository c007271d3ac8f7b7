package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voxcanvas/internal/blobstore"
	"voxcanvas/internal/domain"
	"voxcanvas/internal/observability"
)

// 1x1 transparent PNG.
const tinyPNGBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

func newTestImageController(generator *fakeGenerator, store *blobstore.Store, fetcher *fakeFetcher, events *fakeEventSink, timeout time.Duration) *ImageController {
	return NewImageController(generator, store, fetcher, events, observability.NewMetrics(), zerolog.Nop(), timeout)
}

func TestImageControllerBase64PNGBecomesDataURI(t *testing.T) {
	t.Parallel()

	store := blobstore.New(nil)
	generator := &fakeGenerator{responses: []generateResponse{{payload: textPayload(tinyPNGBase64)}}}
	events := &fakeEventSink{}
	controller := newTestImageController(generator, store, &fakeFetcher{}, events, 0)

	result, err := controller.Generate(context.Background(), "  a cat  ")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if result.Reference != "data:image/png;base64,"+tinyPNGBase64 {
		t.Fatalf("unexpected reference: %q", result.Reference)
	}
	if result.MimeType != "image/png" || result.Kind != domain.ReferenceKindEmbeddable || result.Failed() {
		t.Fatalf("unexpected result: %+v", result)
	}
	if prompts := generator.snapshotPrompts(); len(prompts) != 1 || prompts[0] != "a cat" {
		t.Fatalf("expected trimmed prompt sent, got %v", prompts)
	}
	if store.Live() != 0 {
		t.Fatalf("text results must not mint handles")
	}
	if images := events.snapshotImages(); len(images) != 1 || images[0] != result {
		t.Fatalf("expected one image event, got %+v", images)
	}

	name, data, err := controller.Download(context.Background())
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if name != "generated-image.png" || !strings.HasPrefix(string(data), "\x89PNG") {
		t.Fatalf("unexpected download: %s %q", name, data[:4])
	}
}

func TestImageControllerBase64JPEGSniffsJPEG(t *testing.T) {
	t.Parallel()

	controller := newTestImageController(
		&fakeGenerator{responses: []generateResponse{{payload: textPayload("/9j/4AAQSkZJRgABAQAAAQABAAD")}}},
		blobstore.New(nil),
		&fakeFetcher{},
		&fakeEventSink{},
		0,
	)

	result, err := controller.Generate(context.Background(), "cat")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if result.MimeType != "image/jpeg" || !strings.HasPrefix(result.Reference, "data:image/jpeg;base64,/9j/") {
		t.Fatalf("unexpected result: %+v", result)
	}

	name, _, err := controller.Download(context.Background())
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if name != "generated-image.jpg" {
		t.Fatalf("unexpected download name: %s", name)
	}
}

func TestImageControllerBinaryResponseMintsHandle(t *testing.T) {
	t.Parallel()

	store := blobstore.New(nil)
	body := []byte("\x89PNG-bytes")
	controller := newTestImageController(
		&fakeGenerator{responses: []generateResponse{{payload: domain.ImagePayload{ContentType: "image/png", Body: body}}}},
		store,
		&fakeFetcher{},
		&fakeEventSink{},
		0,
	)

	result, err := controller.Generate(context.Background(), "cat")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if !result.Revocable() || result.MimeType != "image/png" {
		t.Fatalf("expected a revocable png handle, got %+v", result)
	}
	if !blobstore.IsHandle(result.Reference) || store.Live() != 1 {
		t.Fatalf("expected one live handle, got %d", store.Live())
	}

	name, data, err := controller.Download(context.Background())
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if name != "generated-image.png" || string(data) != string(body) {
		t.Fatalf("unexpected download: %s %q", name, data)
	}
}

func TestImageControllerKeepsExactlyOneLiveHandle(t *testing.T) {
	t.Parallel()

	const calls = 5
	responses := make([]generateResponse, calls)
	for i := range responses {
		responses[i] = generateResponse{payload: domain.ImagePayload{ContentType: "image/png", Body: []byte{byte(i + 1)}}}
	}
	store := blobstore.New(nil)
	controller := newTestImageController(&fakeGenerator{responses: responses}, store, &fakeFetcher{}, &fakeEventSink{}, 0)

	var handles []string
	for i := 0; i < calls; i++ {
		result, err := controller.Generate(context.Background(), "cat")
		if err != nil {
			t.Fatalf("generate %d failed: %v", i, err)
		}
		handles = append(handles, result.Reference)
		if store.Live() != 1 {
			t.Fatalf("after call %d expected one live handle, got %d", i, store.Live())
		}
	}
	for _, handle := range handles[:calls-1] {
		if _, _, err := store.Bytes(handle); !errors.Is(err, blobstore.ErrNotFound) {
			t.Fatalf("expected %s revoked, got %v", handle, err)
		}
	}
	if controller.Current().Reference != handles[calls-1] {
		t.Fatalf("expected last handle installed")
	}
}

func TestImageControllerEmptyPromptMakesNoCall(t *testing.T) {
	t.Parallel()

	generator := &fakeGenerator{}
	events := &fakeEventSink{}
	controller := newTestImageController(generator, blobstore.New(nil), &fakeFetcher{}, events, 0)

	for _, prompt := range []string{"", "   \t\n"} {
		result, err := controller.Generate(context.Background(), prompt)
		if !errors.Is(err, domain.ErrEmptyPrompt) {
			t.Fatalf("expected ErrEmptyPrompt for %q, got %v", prompt, err)
		}
		if !result.Failed() || result.Reference != "" {
			t.Fatalf("expected failure only, got %+v", result)
		}
	}
	if len(generator.snapshotPrompts()) != 0 {
		t.Fatalf("expected zero network calls")
	}
	if errs := events.snapshotErrors(); len(errs) != 2 || errs[0].code != domain.ErrorCodeImage {
		t.Fatalf("expected image error events, got %+v", errs)
	}
}

func TestImageControllerServerErrorClearsPreviousResult(t *testing.T) {
	t.Parallel()

	store := blobstore.New(nil)
	controller := newTestImageController(
		&fakeGenerator{responses: []generateResponse{
			{payload: domain.ImagePayload{ContentType: "image/webp", Body: []byte("webp")}},
			{err: &domain.GenerationFailedError{Status: 500, Reason: "Internal Server Error", Body: "server overloaded"}},
		}},
		store,
		&fakeFetcher{},
		&fakeEventSink{},
		0,
	)

	if _, err := controller.Generate(context.Background(), "cat"); err != nil {
		t.Fatalf("first generate failed: %v", err)
	}

	result, err := controller.Generate(context.Background(), "cat")
	var failed *domain.GenerationFailedError
	if !errors.As(err, &failed) || failed.Status != 500 || failed.Body != "server overloaded" {
		t.Fatalf("expected GenerationFailedError 500, got %v", err)
	}
	if result.Reference != "" || !strings.Contains(result.Error, "500") || !strings.Contains(result.Error, "server overloaded") {
		t.Fatalf("unexpected failure result: %+v", result)
	}
	if current := controller.Current(); current != result {
		t.Fatalf("expected failure installed, got %+v", current)
	}
	if store.Live() != 0 {
		t.Fatalf("expected previous handle revoked, %d live", store.Live())
	}
}

func TestImageControllerTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)

	controller := newTestImageController(
		&fakeGenerator{responses: []generateResponse{{payload: textPayload(tinyPNGBase64), wait: release}}},
		blobstore.New(nil),
		&fakeFetcher{},
		&fakeEventSink{},
		20*time.Millisecond,
	)

	started := time.Now()
	result, err := controller.Generate(context.Background(), "cat")
	if !errors.Is(err, domain.ErrGenerationTimeout) {
		t.Fatalf("expected ErrGenerationTimeout, got %v", err)
	}
	if time.Since(started) > time.Second {
		t.Fatalf("timeout was not enforced promptly")
	}
	if result.Error != domain.ErrGenerationTimeout.Error() || result.Reference != "" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestImageControllerEmptyTextPayload(t *testing.T) {
	t.Parallel()

	controller := newTestImageController(
		&fakeGenerator{responses: []generateResponse{{payload: domain.ImagePayload{ContentType: "text/plain"}}}},
		blobstore.New(nil),
		&fakeFetcher{},
		&fakeEventSink{},
		0,
	)

	result, err := controller.Generate(context.Background(), "cat")
	if !errors.Is(err, domain.ErrEmptyImagePayload) || !result.Failed() {
		t.Fatalf("expected ErrEmptyImagePayload, got %v %+v", err, result)
	}
}

func TestImageControllerEmptyBinaryPayload(t *testing.T) {
	t.Parallel()

	blobs := blobstore.New(nil)
	events := &fakeEventSink{}
	controller := newTestImageController(
		&fakeGenerator{responses: []generateResponse{{payload: domain.ImagePayload{ContentType: "image/png"}}}},
		blobs,
		&fakeFetcher{},
		events,
		0,
	)

	result, err := controller.Generate(context.Background(), "cat")
	if !errors.Is(err, domain.ErrEmptyImagePayload) {
		t.Fatalf("expected ErrEmptyImagePayload, got %v", err)
	}
	if result.Error != domain.ErrEmptyImagePayload.Error() || result.Reference != "" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if blobs.Live() != 0 {
		t.Fatalf("expected no handle minted, got %d", blobs.Live())
	}
	if errs := events.snapshotErrors(); len(errs) != 1 || errs[0].code != domain.ErrorCodeImage {
		t.Fatalf("expected image error event, got %+v", errs)
	}
}

func TestImageControllerRemoteURLPassthroughAndDownload(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{data: []byte("jpeg-bytes"), contentType: "image/jpeg"}
	controller := newTestImageController(
		&fakeGenerator{responses: []generateResponse{{payload: textPayload("https://cdn.example.com/cat.jpg")}}},
		blobstore.New(nil),
		fetcher,
		&fakeEventSink{},
		0,
	)

	result, err := controller.Generate(context.Background(), "cat")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if result.Reference != "https://cdn.example.com/cat.jpg" || result.MimeType != "" || result.Revocable() {
		t.Fatalf("expected verbatim reference, got %+v", result)
	}

	name, data, err := controller.Download(context.Background())
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if name != "generated-image.jpg" || string(data) != "jpeg-bytes" {
		t.Fatalf("unexpected download: %s %q", name, data)
	}
	if fetcher.lastURL() != "https://cdn.example.com/cat.jpg" {
		t.Fatalf("unexpected fetch url: %s", fetcher.lastURL())
	}
}

func TestImageControllerDiscardsStaleResult(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	store := blobstore.New(nil)
	generator := &fakeGenerator{responses: []generateResponse{
		{payload: domain.ImagePayload{ContentType: "image/png", Body: []byte("slow")}, wait: release},
		{payload: domain.ImagePayload{ContentType: "image/png", Body: []byte("fast")}},
	}}
	controller := newTestImageController(
		generator,
		store,
		&fakeFetcher{},
		&fakeEventSink{},
		0,
	)

	slowDone := make(chan error, 1)
	var slowResult domain.ImageResult
	go func() {
		result, err := controller.Generate(context.Background(), "slow")
		slowResult = result
		slowDone <- err
	}()
	waitFor(t, func() bool { return len(generator.snapshotPrompts()) == 1 })

	fast, err := controller.Generate(context.Background(), "fast")
	if err != nil {
		t.Fatalf("fast generate failed: %v", err)
	}

	close(release)
	if err := <-slowDone; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if controller.Current() != fast {
		t.Fatalf("stale result overwrote the newer one")
	}
	if _, _, err := store.Bytes(slowResult.Reference); !errors.Is(err, blobstore.ErrNotFound) {
		t.Fatalf("expected stale handle revoked, got %v", err)
	}
	if store.Live() != 1 {
		t.Fatalf("expected one live handle, got %d", store.Live())
	}
}

func TestImageControllerCloseRevokesOutstandingHandle(t *testing.T) {
	t.Parallel()

	store := blobstore.New(nil)
	controller := newTestImageController(
		&fakeGenerator{responses: []generateResponse{
			{payload: domain.ImagePayload{ContentType: "image/png", Body: []byte("a")}},
			{payload: domain.ImagePayload{ContentType: "image/png", Body: []byte("b")}},
		}},
		store,
		&fakeFetcher{},
		&fakeEventSink{},
		0,
	)

	if _, err := controller.Generate(context.Background(), "cat"); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	controller.Close()
	if store.Live() != 0 {
		t.Fatalf("expected handle revoked on close, %d live", store.Live())
	}
	if controller.Current() != (domain.ImageResult{}) {
		t.Fatalf("expected empty slot after close")
	}

	if _, err := controller.Generate(context.Background(), "cat"); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected results after close to be discarded, got %v", err)
	}
	if store.Live() != 0 {
		t.Fatalf("expected late handle revoked, %d live", store.Live())
	}

	if _, _, err := controller.Download(context.Background()); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func textPayload(text string) domain.ImagePayload {
	return domain.ImagePayload{ContentType: "text/plain; charset=utf-8", Body: []byte(text)}
}

type generateResponse struct {
	payload domain.ImagePayload
	err     error
	wait    chan struct{}
}

type fakeGenerator struct {
	mu        sync.Mutex
	responses []generateResponse
	prompts   []string
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, prompt string) (domain.ImagePayload, error) {
	f.mu.Lock()
	index := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	var response generateResponse
	if index < len(f.responses) {
		response = f.responses[index]
	}
	f.mu.Unlock()

	if response.wait != nil {
		select {
		case <-response.wait:
		case <-ctx.Done():
			return domain.ImagePayload{}, ctx.Err()
		}
	}
	return response.payload, response.err
}

func (f *fakeGenerator) snapshotPrompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

type fakeFetcher struct {
	mu          sync.Mutex
	data        []byte
	contentType string
	err         error
	urls        []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	return f.data, f.contentType, f.err
}

func (f *fakeFetcher) lastURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.urls) == 0 {
		return ""
	}
	return f.urls[len(f.urls)-1]
}
