// Package stress drives many concurrent appenders and readers through one
// facade and checks that no append was lost, duplicated or torn.
package stress

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	gerrors "github.com/Iron-Ham/filegate/internal/errors"
	"github.com/Iron-Ham/filegate/internal/facade"
	"github.com/Iron-Ham/filegate/internal/logging"
)

// ErrSumOutOfRange is returned when the final content does not add up.
var ErrSumOutOfRange = gerrors.New("content sum out of range")

// Token is appended by every writer on every save.
const Token = "1,"

// Config describes one scenario.
type Config struct {
	Writers    int
	Readers    int
	Saves      int
	Optimistic bool
	GlobalLock bool

	// Processes is the number of independent processes running the same
	// scenario against the same file. Values above 1 widen the accepted
	// sum to [expected, expected*Processes].
	Processes int

	// Clear truncates the file before the writers start.
	Clear bool

	ReaderPause  time.Duration
	RetryBackoff time.Duration
}

// DefaultConfig returns 40 writers of 10 saves each and 70 readers.
func DefaultConfig() Config {
	return Config{
		Writers:      40,
		Readers:      70,
		Saves:        10,
		Processes:    1,
		Clear:        true,
		ReaderPause:  time.Millisecond,
		RetryBackoff: time.Millisecond,
	}
}

// Result summarizes one run.
type Result struct {
	GlobalLock bool          `yaml:"global_lock" json:"global_lock"`
	Optimistic bool          `yaml:"optimistic" json:"optimistic"`
	Sum        int           `yaml:"sum" json:"sum"`
	Expected   int           `yaml:"expected" json:"expected"`
	Max        int           `yaml:"max" json:"max"`
	Reads      int64         `yaml:"reads" json:"reads"`
	Writes     int64         `yaml:"writes" json:"writes"`
	Retries    int64         `yaml:"retries" json:"retries"`
	Duration   time.Duration `yaml:"duration" json:"duration"`
}

// OK reports whether Sum lies in [Expected, Max].
func (r Result) OK() bool {
	return r.Sum >= r.Expected && r.Sum <= r.Max
}

// Runner executes scenarios against one facade.
type Runner struct {
	f      *facade.Facade
	logger *logging.Logger
}

// NewRunner creates a Runner. A nil logger discards output.
func NewRunner(f *facade.Facade, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Runner{f: f, logger: logger.WithComponent("stress")}
}

// Run executes cfg once. The facade's global lock mode is set from cfg for
// the duration of the run and left that way afterwards.
func (r *Runner) Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.Processes < 1 {
		cfg.Processes = 1
	}
	res := Result{
		GlobalLock: cfg.GlobalLock,
		Optimistic: cfg.Optimistic,
		Expected:   cfg.Writers * cfg.Saves,
	}
	res.Max = res.Expected * cfg.Processes

	r.f.SetGlobalLockMode(cfg.GlobalLock)

	// Appending nothing creates the file without disturbing other processes.
	prepare := func() error { return r.f.SaveContent(ctx, "", true, nil) }
	if cfg.Clear {
		prepare = func() error { return r.f.ClearContent(ctx) }
	}
	if err := retry(ctx, cfg.RetryBackoff, nil, prepare); err != nil {
		return res, gerrors.Wrap(err, "prepare file")
	}

	var reads, writes, retries atomic.Int64
	start := time.Now()

	readCtx, stopReaders := context.WithCancel(ctx)
	defer stopReaders()

	readers := pool.New().WithErrors().WithContext(readCtx)
	for i := 0; i < cfg.Readers; i++ {
		readers.Go(func(ctx context.Context) error {
			for ctx.Err() == nil {
				text, _, _, err := r.f.Content(ctx)
				switch {
				case err == nil:
					reads.Add(1)
					if perr := checkWhole(text); perr != nil {
						return perr
					}
				case gerrors.IsRetryable(err):
					retries.Add(1)
				case gerrors.Is(err, gerrors.ErrInterrupted):
					return nil
				default:
					return err
				}
				sleep(ctx, cfg.ReaderPause)
			}
			return nil
		})
	}

	writers := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	for i := 0; i < cfg.Writers; i++ {
		writers.Go(func(ctx context.Context) error {
			for j := 0; j < cfg.Saves; j++ {
				err := retry(ctx, cfg.RetryBackoff, &retries, func() error {
					return r.save(ctx, cfg.Optimistic)
				})
				if err != nil {
					return err
				}
				writes.Add(1)
			}
			return nil
		})
	}

	werr := writers.Wait()
	stopReaders()
	rerr := readers.Wait()

	res.Reads, res.Writes, res.Retries = reads.Load(), writes.Load(), retries.Load()
	res.Duration = time.Since(start)

	if werr != nil {
		return res, gerrors.Wrap(werr, "writer")
	}
	if rerr != nil {
		return res, gerrors.Wrap(rerr, "reader")
	}

	var text string
	err := retry(ctx, cfg.RetryBackoff, nil, func() error {
		var err error
		text, _, _, err = r.f.Content(ctx)
		return err
	})
	if err != nil {
		return res, gerrors.Wrap(err, "final read")
	}
	if res.Sum, err = sum(text); err != nil {
		return res, err
	}

	r.logger.Info("stress run finished",
		"global_lock", cfg.GlobalLock,
		"optimistic", cfg.Optimistic,
		"sum", res.Sum,
		"reads", res.Reads,
		"writes", res.Writes,
		"retries", res.Retries,
		"duration", res.Duration.String(),
	)

	if !res.OK() {
		return res, gerrors.Wrapf(ErrSumOutOfRange, "sum %d not in [%d, %d]", res.Sum, res.Expected, res.Max)
	}
	return res, nil
}

// Series runs cfg n times, alternating the global lock mode starting from
// cfg.GlobalLock.
func (r *Runner) Series(ctx context.Context, cfg Config, n int) ([]Result, error) {
	results := make([]Result, 0, n)
	global := cfg.GlobalLock
	for i := 0; i < n; i++ {
		run := cfg
		run.GlobalLock = global
		res, err := r.Run(ctx, run)
		results = append(results, res)
		if err != nil {
			return results, err
		}
		global = !global
	}
	return results, nil
}

// save appends Token. In optimistic mode it first reads the file reference
// and passes the stamp along so the write can upgrade in place.
func (r *Runner) save(ctx context.Context, optimistic bool) error {
	if !optimistic {
		return r.f.SaveContent(ctx, Token, true, nil)
	}
	_, stamp, ok, err := r.f.FileReference(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return r.f.SaveContent(ctx, Token, true, nil)
	}
	return r.f.SaveContent(ctx, Token, true, &stamp)
}

// retry calls fn until it succeeds, fails with a non-retryable error, or ctx
// is done.
func retry(ctx context.Context, backoff time.Duration, counter *atomic.Int64, fn func() error) error {
	for {
		err := fn()
		if err == nil || !gerrors.IsRetryable(err) {
			return err
		}
		if counter != nil {
			counter.Add(1)
		}
		if ctx.Err() != nil {
			return err
		}
		sleep(ctx, backoff)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// checkWhole rejects content that ends inside a token.
func checkWhole(text string) error {
	if text != "" && !strings.HasSuffix(text, ",") {
		return gerrors.NewValidationError("torn read").WithValue(text)
	}
	_, err := sum(text)
	return err
}

// sum adds up the comma separated integers in text. Anything else is a torn
// or foreign write.
func sum(text string) (int, error) {
	total := 0
	for _, part := range strings.Split(text, ",") {
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return 0, gerrors.NewValidationError("unexpected token in content").WithValue(part)
		}
		total += n
	}
	return total, nil
}
