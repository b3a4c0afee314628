package xprocess

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"

	gerrors "github.com/Iron-Ham/filegate/internal/errors"
)

// openTwice opens the same temp file through two independent descriptors.
func openTwice(t *testing.T) (afero.File, afero.File) {
	t.Helper()

	fs := afero.NewOsFs()
	path := filepath.Join(t.TempDir(), "data.txt")
	if err := afero.WriteFile(fs, path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	a, err := fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile() error: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	b, err := fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile() error: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	return a, b
}

func TestLockers(t *testing.T) {
	lockers := []struct {
		name   string
		locker Locker
	}{
		{"handle", HandleLocker{}},
		{"path", PathLocker{}},
	}

	for _, l := range lockers {
		t.Run(l.name+"/shared is compatible", func(t *testing.T) {
			a, b := openTwice(t)

			relA, ok, err := l.locker.TryLock(a, true)
			if err != nil || !ok {
				t.Fatalf("first shared TryLock() = %v, %v", ok, err)
			}
			defer func() { _ = relA() }()

			relB, ok, err := l.locker.TryLock(b, true)
			if err != nil || !ok {
				t.Fatalf("second shared TryLock() = %v, %v", ok, err)
			}
			if err := relB(); err != nil {
				t.Errorf("release error: %v", err)
			}
		})

		t.Run(l.name+"/exclusive conflicts with shared", func(t *testing.T) {
			a, b := openTwice(t)

			relA, ok, err := l.locker.TryLock(a, true)
			if err != nil || !ok {
				t.Fatalf("shared TryLock() = %v, %v", ok, err)
			}

			_, ok, err = l.locker.TryLock(b, false)
			if err != nil {
				t.Fatalf("exclusive TryLock() error: %v", err)
			}
			if ok {
				t.Fatal("exclusive TryLock() should report contention")
			}

			if err := relA(); err != nil {
				t.Fatalf("release error: %v", err)
			}

			relB, ok, err := l.locker.TryLock(b, false)
			if err != nil || !ok {
				t.Fatalf("exclusive TryLock() after release = %v, %v", ok, err)
			}
			_ = relB()
		})

		t.Run(l.name+"/in-memory handle unsupported", func(t *testing.T) {
			fs := afero.NewMemMapFs()
			f, err := fs.Create("/mem.txt")
			if err != nil {
				t.Fatalf("Create() error: %v", err)
			}
			defer func() { _ = f.Close() }()

			_, _, err = l.locker.TryLock(f, false)
			if !errors.Is(err, gerrors.ErrGlobalLockUnsupported) {
				t.Errorf("TryLock() error = %v, want ErrGlobalLockUnsupported", err)
			}
		})
	}
}

func TestLockerFor(t *testing.T) {
	tests := []struct {
		name    string
		want    Locker
		wantErr bool
	}{
		{"", HandleLocker{}, false},
		{BackendHandle, HandleLocker{}, false},
		{BackendPath, PathLocker{}, !pathBackendSupported},
		{"fcntl", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LockerFor(tt.name)
			if tt.wantErr {
				var verr *gerrors.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("LockerFor(%q) error = %v, want ValidationError", tt.name, err)
				}
				if verr.Field != "facade.lock_backend" {
					t.Errorf("Field = %q", verr.Field)
				}
				return
			}
			if err != nil {
				t.Fatalf("LockerFor(%q) error: %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("LockerFor(%q) = %T, want %T", tt.name, got, tt.want)
			}
		})
	}
}

func TestHandleLockerAllowsIOThroughLockedHandle(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		flag    int
		write   string
		want    string
	}{
		{"replace", "previous content", os.O_WRONLY, "new", "new"},
		{"clear", "previous content", os.O_WRONLY, "", ""},
		{"append to empty", "", os.O_WRONLY | os.O_APPEND, "1,", "1,"},
		{"append", "1,", os.O_WRONLY | os.O_APPEND, "1,", "1,1,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewOsFs()
			path := filepath.Join(t.TempDir(), "data.txt")
			if err := afero.WriteFile(fs, path, []byte(tt.initial), 0o644); err != nil {
				t.Fatal(err)
			}
			g := NewGate(HandleLocker{})

			w, err := fs.OpenFile(path, tt.flag, 0)
			if err != nil {
				t.Fatal(err)
			}
			err = g.WithExclusive(w, func() error {
				if tt.flag&os.O_APPEND == 0 {
					if err := w.Truncate(0); err != nil {
						return err
					}
				}
				_, err := w.Write([]byte(tt.write))
				return err
			})
			_ = w.Close()
			if err != nil {
				t.Fatalf("WithExclusive() error: %v", err)
			}

			r, err := fs.Open(path)
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = r.Close() }()
			var got []byte
			err = g.WithShared(r, func() error {
				var rerr error
				got, rerr = afero.ReadAll(r)
				return rerr
			})
			if err != nil {
				t.Fatalf("WithShared() error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("content = %q, want %q", got, tt.want)
			}
		})
	}
}

// stubLocker scripts TryLock outcomes.
type stubLocker struct {
	ok         bool
	err        error
	releaseErr error

	mu       sync.Mutex
	attempts int
	released int
}

func (s *stubLocker) TryLock(afero.File, bool) (Release, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.err != nil || !s.ok {
		return nil, false, s.err
	}
	return func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.released++
		return s.releaseErr
	}, true, nil
}

type countingObserver struct {
	acquired  map[gerrors.LockMode]int
	contended map[gerrors.LockMode]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		acquired:  make(map[gerrors.LockMode]int),
		contended: make(map[gerrors.LockMode]int),
	}
}

func (o *countingObserver) GlobalLockAcquired(m gerrors.LockMode)  { o.acquired[m]++ }
func (o *countingObserver) GlobalLockContended(m gerrors.LockMode) { o.contended[m]++ }

func memFile(t *testing.T) afero.File {
	t.Helper()
	f, err := afero.NewMemMapFs().Create("/f.txt")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestGateRunsBodyAndReleases(t *testing.T) {
	stub := &stubLocker{ok: true}
	obs := newCountingObserver()
	g := NewGate(stub, WithObserver(obs))

	ran := false
	err := g.WithExclusive(memFile(t), func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithExclusive() error: %v", err)
	}
	if !ran {
		t.Error("body did not run")
	}
	if stub.released != 1 {
		t.Errorf("released = %d, want 1", stub.released)
	}
	if obs.acquired[gerrors.ModeExclusive] != 1 {
		t.Errorf("acquired[exclusive] = %d, want 1", obs.acquired[gerrors.ModeExclusive])
	}
}

func TestGateReleasesOnBodyError(t *testing.T) {
	stub := &stubLocker{ok: true}
	g := NewGate(stub)
	bodyErr := errors.New("disk full")

	err := g.WithShared(memFile(t), func() error { return bodyErr })
	if !errors.Is(err, bodyErr) {
		t.Errorf("WithShared() error = %v, want body error", err)
	}
	if stub.released != 1 {
		t.Errorf("released = %d, want 1", stub.released)
	}
}

func TestGateReleasesOnPanic(t *testing.T) {
	stub := &stubLocker{ok: true}
	g := NewGate(stub)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = g.WithExclusive(memFile(t), func() error { panic("boom") })
	}()

	if stub.released != 1 {
		t.Errorf("released = %d, want 1", stub.released)
	}

	// The in-process guard must be free again.
	if err := g.WithExclusive(memFile(t), func() error { return nil }); err != nil {
		t.Errorf("WithExclusive() after panic error: %v", err)
	}
}

func TestGateContention(t *testing.T) {
	tests := []struct {
		name   string
		shared bool
		mode   gerrors.LockMode
	}{
		{"shared", true, gerrors.ModeShared},
		{"exclusive", false, gerrors.ModeExclusive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubLocker{ok: false}
			obs := newCountingObserver()
			g := NewGate(stub, WithObserver(obs))

			run := g.WithExclusive
			if tt.shared {
				run = g.WithShared
			}

			ran := false
			err := run(memFile(t), func() error {
				ran = true
				return nil
			})
			if ran {
				t.Error("body ran without the lock")
			}

			var gle *gerrors.GlobalLockError
			if !errors.As(err, &gle) {
				t.Fatalf("error = %v, want GlobalLockError", err)
			}
			if gle.Shared() != tt.shared {
				t.Errorf("Shared() = %v, want %v", gle.Shared(), tt.shared)
			}
			if !errors.Is(err, gerrors.ErrGlobalLockUnavailable) {
				t.Error("error should match ErrGlobalLockUnavailable")
			}
			if obs.contended[tt.mode] != 1 {
				t.Errorf("contended[%s] = %d, want 1", tt.mode, obs.contended[tt.mode])
			}
		})
	}
}

func TestGateLockFailureIsIOError(t *testing.T) {
	stub := &stubLocker{err: errors.New("EBADF")}
	g := NewGate(stub)

	err := g.WithExclusive(memFile(t), func() error { return nil })
	if !errors.Is(err, gerrors.ErrIOFailure) {
		t.Errorf("error = %v, want ErrIOFailure", err)
	}
}

func TestGateUnsupportedPassesThrough(t *testing.T) {
	g := NewGate(nil)

	err := g.WithShared(memFile(t), func() error { return nil })
	if !errors.Is(err, gerrors.ErrGlobalLockUnsupported) {
		t.Errorf("error = %v, want ErrGlobalLockUnsupported", err)
	}
}

func TestGateReleaseErrorSurfaces(t *testing.T) {
	stub := &stubLocker{ok: true, releaseErr: errors.New("EIO")}
	g := NewGate(stub)

	err := g.WithExclusive(memFile(t), func() error { return nil })
	if !errors.Is(err, gerrors.ErrIOFailure) {
		t.Errorf("error = %v, want ErrIOFailure", err)
	}

	bodyErr := errors.New("short write")
	err = g.WithExclusive(memFile(t), func() error { return bodyErr })
	if !errors.Is(err, bodyErr) {
		t.Errorf("error = %v, want body error to win", err)
	}
}

func TestGateConcurrentSharedBodies(t *testing.T) {
	stub := &stubLocker{ok: true}
	g := NewGate(stub)
	f := memFile(t)

	var inside, peak int
	var mu sync.Mutex
	release := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.WithShared(f, func() error {
				mu.Lock()
				inside++
				if inside > peak {
					peak = inside
				}
				ready := inside == 4
				mu.Unlock()
				if ready {
					close(release)
				}
				<-release
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if peak != 4 {
		t.Errorf("peak concurrent shared bodies = %d, want 4", peak)
	}
}
