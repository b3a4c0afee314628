package facade

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/filegate/internal/charset"
	gerrors "github.com/Iron-Ham/filegate/internal/errors"
	"github.com/Iron-Ham/filegate/internal/logging"
	"github.com/Iron-Ham/filegate/internal/stamped"
	"github.com/Iron-Ham/filegate/internal/xprocess"
)

// recorder counts observer callbacks.
type recorder struct {
	nopObserver

	mu          sync.Mutex
	upgrades    map[bool]int
	pessimistic int
	timeouts    map[gerrors.LockMode]int
	ioFailures  map[gerrors.IOOp]int
}

func newRecorder() *recorder {
	return &recorder{
		upgrades:   make(map[bool]int),
		timeouts:   make(map[gerrors.LockMode]int),
		ioFailures: make(map[gerrors.IOOp]int),
	}
}

func (r *recorder) Upgrade(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upgrades[ok]++
}

func (r *recorder) PessimisticRead() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pessimistic++
}

func (r *recorder) LockTimeout(m gerrors.LockMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timeouts[m]++
}

func (r *recorder) IOFailure(op gerrors.IOOp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ioFailures[op]++
}

// newMemFacade returns a facade over an in-memory filesystem targeting /data.txt.
func newMemFacade(t *testing.T, opts ...Option) *Facade {
	t.Helper()
	opts = append([]Option{WithFile("/data.txt")}, opts...)
	return New(afero.NewMemMapFs(), opts...)
}

// newOsFacade returns a facade over the OS filesystem targeting a temp file.
func newOsFacade(t *testing.T, opts ...Option) (*Facade, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.txt")
	opts = append([]Option{WithFile(path)}, opts...)
	return New(afero.NewOsFs(), opts...), path
}

func mustContent(t *testing.T, f *Facade) string {
	t.Helper()
	got, _, _, err := f.Content(context.Background())
	if err != nil {
		t.Fatalf("Content() error: %v", err)
	}
	return got
}

func TestNewDefaults(t *testing.T) {
	f := New(nil)

	st := f.Status()
	if st.File != "" {
		t.Errorf("File = %q, want empty", st.File)
	}
	if st.GlobalLock {
		t.Error("GlobalLock should default to false")
	}
	if st.Retries != DefaultOptimisticRetries {
		t.Errorf("Retries = %d, want %d", st.Retries, DefaultOptimisticRetries)
	}
	if st.Encoding != "UTF-8" {
		t.Errorf("Encoding = %q, want UTF-8", st.Encoding)
	}
	if st.ReadTimeout != "1s" || st.WriteTimeout != "1s" {
		t.Errorf("timeouts = %s/%s, want 1s/1s", st.ReadTimeout, st.WriteTimeout)
	}
}

func TestFileReference(t *testing.T) {
	ctx := context.Background()
	f := New(afero.NewMemMapFs())

	if err := f.SetFileReference(ctx, "/a.txt", nil); err != nil {
		t.Fatalf("SetFileReference() error: %v", err)
	}

	got, stamp, ok, err := f.FileReference(ctx)
	if err != nil {
		t.Fatalf("FileReference() error: %v", err)
	}
	if got != "/a.txt" {
		t.Errorf("FileReference() = %q, want /a.txt", got)
	}
	if !ok {
		t.Fatal("uncontended read should complete optimistically")
	}

	if err := f.SetFileReference(ctx, "/b.txt", &stamp); err != nil {
		t.Fatalf("SetFileReference() with stamp error: %v", err)
	}
	if got, _, _, _ := f.FileReference(ctx); got != "/b.txt" {
		t.Errorf("FileReference() = %q, want /b.txt", got)
	}

	if err := f.SetFileReference(ctx, "", nil); !errors.Is(err, gerrors.ErrInvalidInput) {
		t.Errorf("SetFileReference(\"\") error = %v, want ErrInvalidInput", err)
	}
}

func TestContentRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"ascii", "hello world, {} this is ascii"},
		{"utf8", "ôą ✓ 日本語"},
		{"multiline", "line one\nline two\n"},
		{"large", strings.Repeat("0123456789", 1000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMemFacade(t)
			if err := f.SaveContent(context.Background(), tt.text, false, nil); err != nil {
				t.Fatalf("SaveContent() error: %v", err)
			}
			if got := mustContent(t, f); got != tt.text {
				t.Errorf("Content() = %q, want %q", got, tt.text)
			}
		})
	}
}

func TestSaveContentReplacesLongerContent(t *testing.T) {
	ctx := context.Background()
	f := newMemFacade(t)

	if err := f.SaveContent(ctx, "a much longer first value", false, nil); err != nil {
		t.Fatal(err)
	}
	if err := f.SaveContent(ctx, "short", false, nil); err != nil {
		t.Fatal(err)
	}
	if got := mustContent(t, f); got != "short" {
		t.Errorf("Content() = %q, want %q", got, "short")
	}
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	f := newMemFacade(t)

	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		if err := f.SaveContent(ctx, s, true, nil); err != nil {
			t.Fatalf("SaveContent(%q, append) error: %v", s, err)
		}
	}
	if got := mustContent(t, f); got != "abcdefg" {
		t.Errorf("Content() = %q, want abcdefg", got)
	}
}

func TestClearContent(t *testing.T) {
	ctx := context.Background()
	f := newMemFacade(t)

	if err := f.SaveContent(ctx, "something", false, nil); err != nil {
		t.Fatal(err)
	}
	if err := f.ClearContent(ctx); err != nil {
		t.Fatalf("ClearContent() error: %v", err)
	}

	got, _, ok, err := f.Content(ctx)
	if err != nil {
		t.Fatalf("Content() error: %v", err)
	}
	if got != "" {
		t.Errorf("Content() = %q, want empty", got)
	}
	if !ok {
		t.Error("single-threaded read after clear should carry a stamp")
	}
}

func TestContentWithoutUnicode(t *testing.T) {
	ctx := context.Background()
	f := newMemFacade(t)

	in := "hello world, {} this is ascii, ôą this is utf-8 "
	want := "hello world, {} this is ascii, ���� this is utf-8 "

	if err := f.SaveContent(ctx, in, false, nil); err != nil {
		t.Fatal(err)
	}
	got, _, _, err := f.ContentWithoutUnicode(ctx)
	if err != nil {
		t.Fatalf("ContentWithoutUnicode() error: %v", err)
	}
	if got != want {
		t.Errorf("ContentWithoutUnicode() = %q, want %q", got, want)
	}
}

func TestContentRaw(t *testing.T) {
	ctx := context.Background()
	f := newMemFacade(t)
	if err := f.SaveContent(ctx, "é", false, nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		encoding string
		want     string
		wantErr  error
	}{
		{"", "é", nil},
		{"UTF-8", "é", nil},
		{"US-ASCII", "��", nil},
		{"ISO-8859-1", "Ã©", nil},
		{"bogus", "", gerrors.ErrUnknownEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			got, _, _, err := f.ContentRaw(ctx, tt.encoding)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ContentRaw() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ContentRaw() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ContentRaw(%q) = %q, want %q", tt.encoding, got, tt.want)
			}
		})
	}
}

func TestNoFileReference(t *testing.T) {
	ctx := context.Background()
	f := New(afero.NewMemMapFs())

	if _, _, _, err := f.Content(ctx); !errors.Is(err, gerrors.ErrNoFileReference) {
		t.Errorf("Content() error = %v, want ErrNoFileReference", err)
	}
	if err := f.SaveContent(ctx, "x", false, nil); !errors.Is(err, gerrors.ErrNoFileReference) {
		t.Errorf("SaveContent() error = %v, want ErrNoFileReference", err)
	}
}

func TestMissingFileIsIOFailure(t *testing.T) {
	rec := newRecorder()
	f := newMemFacade(t, WithObserver(rec))

	_, _, _, err := f.Content(context.Background())
	if !errors.Is(err, gerrors.ErrIOFailure) {
		t.Fatalf("Content() error = %v, want ErrIOFailure", err)
	}
	var ioe *gerrors.IOError
	if !errors.As(err, &ioe) || ioe.Op != gerrors.OpRead || ioe.Path != "/data.txt" {
		t.Errorf("IOError = %+v", ioe)
	}
	if rec.ioFailures[gerrors.OpRead] != 1 {
		t.Errorf("ioFailures[read] = %d, want 1", rec.ioFailures[gerrors.OpRead])
	}
}

func TestFailuresLoggedBySeverity(t *testing.T) {
	ctx := context.Background()

	t.Run("io failure", func(t *testing.T) {
		var buf bytes.Buffer
		f := newMemFacade(t, WithLogger(logging.NewWriterLogger(&buf, logging.LevelDebug)))

		if _, _, _, err := f.Content(ctx); err == nil {
			t.Fatal("Content() of a missing file should fail")
		}
		for _, want := range []string{`"level":"ERROR"`, `"msg":"io failure"`, `"component":"facade"`, `"op":"get_content"`} {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("log missing %s:\n%s", want, buf.String())
			}
		}
	})

	t.Run("lock timeout", func(t *testing.T) {
		var buf bytes.Buffer
		f := newMemFacade(t,
			WithLogger(logging.NewWriterLogger(&buf, logging.LevelDebug)),
			WithWriteTimeout(10*time.Millisecond),
		)
		rs, err := f.gate.AcquireRead(ctx, time.Second)
		if err != nil {
			t.Fatal(err)
		}
		defer f.gate.ReleaseRead(rs)

		if err := f.SaveContent(ctx, "x", false, nil); err == nil {
			t.Fatal("SaveContent() should time out while a reader holds the lock")
		}
		for _, want := range []string{`"level":"WARN"`, `"msg":"lock timeout"`, `"op":"save_content"`, `"mode":"write"`} {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("log missing %s:\n%s", want, buf.String())
			}
		}
	})
}

func TestSaveContentUnrepresentable(t *testing.T) {
	tests := []struct {
		name    string
		charset string
		text    string
	}{
		{"ascii", charset.USASCII, "naïve"},
		{"latin1", charset.Latin1, "漢"},
		{"cp1252", charset.CP1252, "漢"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := charset.Lookup(tt.charset)
			if err != nil {
				t.Fatal(err)
			}
			f := newMemFacade(t, WithEncoding(enc))

			err = f.SaveContent(context.Background(), tt.text, false, nil)
			var verr *gerrors.ValidationError
			if !errors.As(err, &verr) || !errors.Is(err, gerrors.ErrInvalidInput) {
				t.Errorf("SaveContent() error = %v, want ValidationError", err)
			}
			if f.Status().Generation != 0 {
				t.Error("rejected input should not enter a write section")
			}
		})
	}
}

func TestStampUpgrade(t *testing.T) {
	ctx := context.Background()

	t.Run("current stamp converts", func(t *testing.T) {
		rec := newRecorder()
		f := newMemFacade(t, WithObserver(rec))
		if err := f.SaveContent(ctx, "v1", false, nil); err != nil {
			t.Fatal(err)
		}

		text, stamp, ok, err := f.Content(ctx)
		if err != nil || !ok {
			t.Fatalf("Content() = %q, %v, %v", text, ok, err)
		}
		if err := f.SaveContent(ctx, text+"+v2", false, &stamp); err != nil {
			t.Fatalf("SaveContent() with stamp error: %v", err)
		}

		if rec.upgrades[true] != 1 || rec.upgrades[false] != 0 {
			t.Errorf("upgrades = %v, want one successful conversion", rec.upgrades)
		}
		if got := mustContent(t, f); got != "v1+v2" {
			t.Errorf("Content() = %q, want v1+v2", got)
		}
	})

	t.Run("stale stamp falls back", func(t *testing.T) {
		rec := newRecorder()
		f := newMemFacade(t, WithObserver(rec))
		if err := f.SaveContent(ctx, "v1", false, nil); err != nil {
			t.Fatal(err)
		}

		_, stamp, ok, err := f.Content(ctx)
		if err != nil || !ok {
			t.Fatalf("Content() ok=%v err=%v", ok, err)
		}
		if err := f.SaveContent(ctx, "intervening", false, nil); err != nil {
			t.Fatal(err)
		}

		if f.gate.Validate(stamp) {
			t.Fatal("stamp should be stale after an intervening write")
		}
		if err := f.SaveContent(ctx, "v3", false, &stamp); err != nil {
			t.Fatalf("SaveContent() with stale stamp error: %v", err)
		}
		if rec.upgrades[false] != 1 {
			t.Errorf("upgrades = %v, want one failed conversion", rec.upgrades)
		}
		if got := mustContent(t, f); got != "v3" {
			t.Errorf("Content() = %q, want v3", got)
		}
	})
}

func TestHeldStampsAreNotConverted(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		stamp func(f *Facade) stamped.Stamp
	}{
		{"read", func(*Facade) stamped.Stamp { return stamped.Stamp(1 << 63) }},
		{"write at current generation", func(f *Facade) stamped.Stamp {
			return stamped.Stamp(f.gate.Generation()) | 1<<62
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder()
			f := newMemFacade(t, WithObserver(rec), WithWriteTimeout(50*time.Millisecond))

			stamp := tt.stamp(f)
			if !stamp.IsRead() && !stamp.IsWrite() {
				t.Fatalf("stamp %s should look held", stamp)
			}
			if err := f.SaveContent(ctx, "x", false, &stamp); err != nil {
				t.Fatalf("SaveContent() error: %v", err)
			}
			if rec.upgrades[false] != 1 || rec.upgrades[true] != 0 {
				t.Errorf("upgrades = %v, want one failed conversion", rec.upgrades)
			}
			if f.Status().Generation != 2 {
				t.Errorf("Generation = %d, want 2 after one locked write", f.Status().Generation)
			}

			// Every semaphore unit must be back, or this write times out.
			if err := f.SaveContent(ctx, "y", true, nil); err != nil {
				t.Fatalf("follow-up SaveContent() error: %v", err)
			}
			if got := mustContent(t, f); got != "xy" {
				t.Errorf("Content() = %q, want xy", got)
			}
		})
	}
}

func TestReadFallsBackWhileWriteHeld(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	f := newMemFacade(t, WithObserver(rec), WithReadTimeout(20*time.Millisecond))
	if err := f.SaveContent(ctx, "x", false, nil); err != nil {
		t.Fatal(err)
	}

	ws, err := f.gate.AcquireWrite(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	_, _, _, err = f.Content(ctx)
	var lte *gerrors.LockTimeoutError
	if !errors.As(err, &lte) || lte.Mode != gerrors.ModeRead {
		t.Fatalf("Content() error = %v, want read LockTimeoutError", err)
	}
	if rec.timeouts[gerrors.ModeRead] != 1 {
		t.Errorf("timeouts[read] = %d, want 1", rec.timeouts[gerrors.ModeRead])
	}

	done := make(chan struct{})
	var got string
	var ok bool
	f.readTimeout = time.Second
	go func() {
		defer close(done)
		got, _, ok, err = f.Content(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	f.gate.ReleaseWrite(ws)
	<-done

	if err != nil || got != "x" {
		t.Fatalf("Content() = %q, %v", got, err)
	}
	if ok {
		t.Error("pessimistic read should not report a stamp")
	}
	if rec.pessimistic != 1 {
		t.Errorf("pessimistic reads = %d, want 1", rec.pessimistic)
	}
}

func TestMaxReaders(t *testing.T) {
	ctx := context.Background()
	f := newMemFacade(t,
		WithMaxReaders(1),
		WithOptimisticRetries(0),
		WithReadTimeout(20*time.Millisecond),
	)
	if err := f.SaveContent(ctx, "x", false, nil); err != nil {
		t.Fatal(err)
	}

	rs, err := f.gate.AcquireRead(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_, _, _, err = f.Content(ctx)
	var lte *gerrors.LockTimeoutError
	if !errors.As(err, &lte) || lte.Mode != gerrors.ModeRead {
		t.Errorf("Content() error = %v, want read LockTimeoutError with the only reader slot taken", err)
	}

	f.gate.ReleaseRead(rs)
	if got := mustContent(t, f); got != "x" {
		t.Errorf("Content() = %q, want x", got)
	}
}

func TestWriteTimeout(t *testing.T) {
	ctx := context.Background()
	f := newMemFacade(t, WithWriteTimeout(20*time.Millisecond))

	rs, err := f.gate.AcquireRead(ctx, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer f.gate.ReleaseRead(rs)

	err = f.SaveContent(ctx, "x", false, nil)
	var lte *gerrors.LockTimeoutError
	if !errors.As(err, &lte) || lte.Mode != gerrors.ModeWrite {
		t.Errorf("SaveContent() error = %v, want write LockTimeoutError", err)
	}
	if !gerrors.IsRetryable(err) {
		t.Error("lock timeout should be retryable")
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := newMemFacade(t)

	if _, _, _, err := f.Content(ctx); !errors.Is(err, gerrors.ErrInterrupted) {
		t.Errorf("Content() error = %v, want ErrInterrupted", err)
	}
	if err := f.SaveContent(ctx, "x", false, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("SaveContent() error = %v, want to wrap context.Canceled", err)
	}
	if ctx.Err() == nil {
		t.Error("context should stay cancelled")
	}
}

func TestGlobalLockMode(t *testing.T) {
	ctx := context.Background()
	f, _ := newOsFacade(t)

	if f.GlobalLockMode() {
		t.Fatal("global lock mode should default to off")
	}
	f.SetGlobalLockMode(true)
	if !f.GlobalLockMode() {
		t.Fatal("SetGlobalLockMode(true) did not take effect")
	}

	if err := f.SaveContent(ctx, "locked", false, nil); err != nil {
		t.Fatalf("SaveContent() error: %v", err)
	}
	if got := mustContent(t, f); got != "locked" {
		t.Errorf("Content() = %q, want locked", got)
	}
}

func TestGlobalLockUnsupportedOnMemFs(t *testing.T) {
	ctx := context.Background()
	f := newMemFacade(t, WithGlobalLock(true))

	err := f.SaveContent(ctx, "x", false, nil)
	if !errors.Is(err, gerrors.ErrGlobalLockUnsupported) {
		t.Errorf("SaveContent() error = %v, want ErrGlobalLockUnsupported", err)
	}
}

func TestGlobalLockContention(t *testing.T) {
	backends := []struct {
		name   string
		locker xprocess.Locker
	}{
		{"handle", xprocess.HandleLocker{}},
		{"path", xprocess.PathLocker{}},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			f, path := newOsFacade(t, WithLocker(b.locker))
			if err := f.SaveContent(ctx, "original", false, nil); err != nil {
				t.Fatal(err)
			}
			f.SetGlobalLockMode(true)

			// Another holder of an exclusive lock stands in for a second process.
			other, err := os.OpenFile(path, os.O_RDWR, 0)
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = other.Close() }()
			release, ok, err := b.locker.TryLock(other, false)
			if err != nil || !ok {
				t.Fatalf("TryLock() = %v, %v", ok, err)
			}

			_, _, _, err = f.Content(ctx)
			var gle *gerrors.GlobalLockError
			if !errors.As(err, &gle) || !gle.Shared() {
				t.Errorf("Content() error = %v, want shared GlobalLockError", err)
			}

			err = f.SaveContent(ctx, "clobbered", false, nil)
			if !errors.As(err, &gle) || gle.Shared() {
				t.Errorf("SaveContent() error = %v, want exclusive GlobalLockError", err)
			}
			if !gerrors.IsRetryable(err) {
				t.Error("global lock contention should be retryable")
			}

			if err := release(); err != nil {
				t.Fatal(err)
			}

			// The failed write must not have truncated the file.
			if got := mustContent(t, f); got != "original" {
				t.Errorf("Content() = %q, want original", got)
			}
		})
	}
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	for _, global := range []bool{false, true} {
		t.Run("global="+strconv.FormatBool(global), func(t *testing.T) {
			ctx := context.Background()
			f, _ := newOsFacade(t, WithGlobalLock(global))
			if err := f.ClearContent(ctx); err != nil {
				t.Fatal(err)
			}

			const writers, appends, readers = 8, 10, 8
			var wg sync.WaitGroup
			stop := make(chan struct{})
			errCh := make(chan error, writers*appends+readers)

			for i := 0; i < readers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						select {
						case <-stop:
							return
						default:
						}
						text, _, _, err := f.Content(ctx)
						if err != nil {
							if gerrors.IsRetryable(err) {
								continue
							}
							errCh <- err
							return
						}
						if text != "" && !strings.HasSuffix(text, ",") {
							errCh <- errors.New("torn read: " + text)
							return
						}
					}
				}()
			}

			var writersWG sync.WaitGroup
			for i := 0; i < writers; i++ {
				writersWG.Add(1)
				go func() {
					defer writersWG.Done()
					for j := 0; j < appends; j++ {
						for {
							err := f.SaveContent(ctx, "1,", true, nil)
							if err == nil {
								break
							}
							if !gerrors.IsRetryable(err) {
								errCh <- err
								return
							}
						}
					}
				}()
			}

			writersWG.Wait()
			close(stop)
			wg.Wait()
			close(errCh)
			for err := range errCh {
				t.Error(err)
			}

			if got := sumContent(t, mustContent(t, f)); got != writers*appends {
				t.Errorf("sum = %d, want %d", got, writers*appends)
			}
			if f.Status().WriteLocked {
				t.Error("write lock still held after all writers finished")
			}
		})
	}
}

func sumContent(t *testing.T, text string) int {
	t.Helper()
	sum := 0
	for _, part := range strings.Split(text, ",") {
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			t.Fatalf("unexpected token %q in %q", part, text)
		}
		sum += n
	}
	return sum
}

func TestZeroRetriesGoesPessimistic(t *testing.T) {
	ctx := context.Background()
	rec := newRecorder()
	f := newMemFacade(t, WithOptimisticRetries(0), WithObserver(rec))
	if err := f.SaveContent(ctx, "x", false, nil); err != nil {
		t.Fatal(err)
	}

	_, stamp, ok, err := f.Content(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ok || stamp != 0 {
		t.Errorf("Content() stamp = %v ok = %v, want none", stamp, ok)
	}
	if rec.pessimistic != 1 {
		t.Errorf("pessimistic reads = %d, want 1", rec.pessimistic)
	}
}
