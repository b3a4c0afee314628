// Package facade exposes one file reference and the content of the file it
// names to many goroutines, and optionally many processes, at once.
//
// Every operation runs inside a section of an in-process stamped gate.
// Reads try a bounded number of optimistic attempts validated by stamp, then
// fall back to the blocking read lock. Writes take the write lock, upgrading a
// caller-supplied stamp when it is still current.
//
// When global lock mode is on, the file I/O of each operation is additionally
// wrapped in a non-blocking OS advisory lock (shared for reads, exclusive for
// writes). Contention on that lock is returned as a retryable
// errors.GlobalLockError; the facade never retries it.
//
// # Basic Usage
//
//	f := facade.New(afero.NewOsFs(), facade.WithFile("/srv/data.txt"))
//	if err := f.SaveContent(ctx, "1,", true, nil); err != nil {
//	    return err
//	}
//	text, stamp, ok, err := f.Content(ctx)
//
// # Read-then-write
//
// A stamp from an optimistic read can be passed back to a write. If no write
// intervened the write proceeds without a second lock acquisition:
//
//	text, stamp, ok, err := f.Content(ctx)
//	var sp *stamped.Stamp
//	if ok {
//	    sp = &stamp
//	}
//	err = f.SaveContent(ctx, text+"x", false, sp)
package facade
