package facade

import (
	"context"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/Iron-Ham/filegate/internal/charset"
	gerrors "github.com/Iron-Ham/filegate/internal/errors"
	"github.com/Iron-Ham/filegate/internal/logging"
	"github.com/Iron-Ham/filegate/internal/stamped"
	"github.com/Iron-Ham/filegate/internal/xprocess"
)

// filePerm is used when SaveContent creates the target.
const filePerm = 0o644

// Facade guards one file reference and the content of the file it names.
// Create one with New and share the pointer; the zero value is not usable.
type Facade struct {
	fs     afero.Fs
	gate   *stamped.Gate
	global *xprocess.Gate

	// file is written only inside a write section.
	file       atomic.Pointer[string]
	globalMode atomic.Bool

	retries      int
	readTimeout  time.Duration
	writeTimeout time.Duration
	enc          encoding.Encoding

	logger   *logging.Logger
	observer Observer
}

// New creates a Facade performing I/O through fs. A nil fs selects the OS
// filesystem.
func New(fs afero.Fs, opts ...Option) *Facade {
	o := options{
		logger:       logging.NopLogger(),
		observer:     nopObserver{},
		retries:      DefaultOptimisticRetries,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		encoding:     unicode.UTF8,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	logger := o.logger.WithComponent("facade")
	f := &Facade{
		fs:   fs,
		gate: stamped.New(stamped.WithMaxReaders(o.maxReaders)),
		global: xprocess.NewGate(o.locker,
			xprocess.WithLogger(logger.WithComponent("xprocess")),
			xprocess.WithObserver(o.observer),
		),
		retries:      o.retries,
		readTimeout:  o.readTimeout,
		writeTimeout: o.writeTimeout,
		enc:          o.encoding,
		logger:       logger,
		observer:     o.observer,
	}
	f.file.Store(&o.file)
	f.globalMode.Store(o.globalLock)
	return f
}

// FileReference returns the configured path. The stamp is reported only when
// the read completed optimistically, and may be passed to SetFileReference or
// SaveContent to upgrade without a second lock round trip.
func (f *Facade) FileReference(ctx context.Context) (string, stamped.Stamp, bool, error) {
	return readOp(ctx, f, "get_file", func() (string, error) {
		return *f.file.Load(), nil
	})
}

// SetFileReference replaces the target path.
func (f *Facade) SetFileReference(ctx context.Context, path string, stamp *stamped.Stamp) error {
	if path == "" {
		return gerrors.NewValidationError("file reference must not be empty").WithField("facade.file")
	}
	return writeOp(ctx, f, "set_file", stamp, func() error {
		f.file.Store(&path)
		return nil
	})
}

// Content reads the whole file in the facade's encoding (UTF-8 by default).
func (f *Facade) Content(ctx context.Context) (string, stamped.Stamp, bool, error) {
	return f.content(ctx, "get_content", f.enc)
}

// ContentRaw reads the whole file decoding it with the named encoding.
// Bytes the encoding cannot represent become U+FFFD.
func (f *Facade) ContentRaw(ctx context.Context, encodingName string) (string, stamped.Stamp, bool, error) {
	enc, err := charset.Lookup(encodingName)
	if err != nil {
		return "", 0, false, err
	}
	return f.content(ctx, "get_content_raw", enc)
}

// ContentWithoutUnicode reads the file as strict US-ASCII: every byte of a
// multi-byte character becomes its own replacement glyph.
func (f *Facade) ContentWithoutUnicode(ctx context.Context) (string, stamped.Stamp, bool, error) {
	return f.content(ctx, "get_content_ascii", charset.ASCII)
}

func (f *Facade) content(ctx context.Context, op string, enc encoding.Encoding) (string, stamped.Stamp, bool, error) {
	return readOp(ctx, f, op, func() (string, error) {
		path := *f.file.Load()
		if path == "" {
			return "", gerrors.ErrNoFileReference
		}
		return f.readFile(path, enc)
	})
}

// SaveContent writes text to the file, replacing its content unless
// appendMode is set. A non-nil stamp is upgraded to the write lock when still
// current; otherwise the write lock is acquired normally.
func (f *Facade) SaveContent(ctx context.Context, text string, appendMode bool, stamp *stamped.Stamp) error {
	data, err := charset.Encode(f.enc, text)
	if err != nil {
		return err
	}
	return writeOp(ctx, f, "save_content", stamp, func() error {
		path := *f.file.Load()
		if path == "" {
			return gerrors.ErrNoFileReference
		}
		return f.writeFile(path, data, appendMode)
	})
}

// ClearContent truncates the file to zero length.
func (f *Facade) ClearContent(ctx context.Context) error {
	return f.SaveContent(ctx, "", false, nil)
}

// SetGlobalLockMode toggles cross-process locking. Operations already past
// their I/O entry keep the mode they observed.
func (f *Facade) SetGlobalLockMode(enabled bool) {
	f.globalMode.Store(enabled)
}

// GlobalLockMode reports whether cross-process locking is enabled.
func (f *Facade) GlobalLockMode() bool {
	return f.globalMode.Load()
}

// Status is a point-in-time view of the facade for diagnostics.
type Status struct {
	File         string `yaml:"file" json:"file"`
	GlobalLock   bool   `yaml:"global_lock" json:"global_lock"`
	Encoding     string `yaml:"encoding" json:"encoding"`
	Generation   uint64 `yaml:"generation" json:"generation"`
	WriteLocked  bool   `yaml:"write_locked" json:"write_locked"`
	Retries      int    `yaml:"optimistic_retries" json:"optimistic_retries"`
	ReadTimeout  string `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout" json:"write_timeout"`
}

// Status reports the current state without taking any lock. It is an
// unsynchronized diagnostic: the file reference is read through its atomic
// pointer, not the gate, so the snapshot may already be stale and need not
// match the generation reported alongside it. Use FileReference when the
// value must be consistent with the lock.
func (f *Facade) Status() Status {
	return Status{
		File:         *f.file.Load(),
		GlobalLock:   f.globalMode.Load(),
		Encoding:     charset.Name(f.enc),
		Generation:   f.gate.Generation(),
		WriteLocked:  f.gate.IsWriteLocked(),
		Retries:      f.retries,
		ReadTimeout:  f.readTimeout.String(),
		WriteTimeout: f.writeTimeout.String(),
	}
}

func (f *Facade) readFile(path string, enc encoding.Encoding) (string, error) {
	file, err := f.fs.Open(path)
	if err != nil {
		return "", gerrors.NewIOError(gerrors.OpRead, path, err)
	}
	defer func() { _ = file.Close() }()

	var out string
	read := func() error {
		b, err := io.ReadAll(charset.NewReader(file, enc))
		if err != nil {
			return gerrors.NewIOError(gerrors.OpRead, path, err)
		}
		out = string(b)
		return nil
	}

	if f.globalMode.Load() {
		err = f.global.WithShared(file, read)
	} else {
		err = read()
	}
	return out, err
}

// writeFile opens without truncation so that a replacing write only
// truncates once the exclusive lock is held.
func (f *Facade) writeFile(path string, data []byte, appendMode bool) (err error) {
	flag := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flag |= os.O_APPEND
	}

	file, err := f.fs.OpenFile(path, flag, filePerm)
	if err != nil {
		return gerrors.NewIOError(gerrors.OpWrite, path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = gerrors.NewIOError(gerrors.OpWrite, path, cerr)
		}
	}()

	write := func() error {
		if !appendMode {
			if err := file.Truncate(0); err != nil {
				return gerrors.NewIOError(gerrors.OpWrite, path, err)
			}
		}
		if _, err := file.Write(data); err != nil {
			return gerrors.NewIOError(gerrors.OpWrite, path, err)
		}
		return nil
	}

	if f.globalMode.Load() {
		return f.global.WithExclusive(file, write)
	}
	return write()
}
