package storage

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"analyst-sandbox/internal/turn"
)

// turnLogger persists turn records. *DB implements it.
type turnLogger interface {
	LogTurn(ctx context.Context, rec *TurnRecord) error
}

// AuditWriter persists turns in the background so that request handling
// never waits on the database. It implements turn.Recorder.
type AuditWriter struct {
	db      turnLogger
	ch      chan *TurnRecord
	wg      sync.WaitGroup
	done    chan struct{}
	backoff time.Duration
}

var _ turn.Recorder = (*AuditWriter)(nil)

func NewAuditWriter(db *DB, bufferSize int) *AuditWriter {
	return newAuditWriter(db, bufferSize)
}

func newAuditWriter(db turnLogger, bufferSize int) *AuditWriter {
	if bufferSize < 1 {
		bufferSize = 10000
	}
	return &AuditWriter{
		db:      db,
		ch:      make(chan *TurnRecord, bufferSize),
		done:    make(chan struct{}),
		backoff: 100 * time.Millisecond,
	}
}

func (w *AuditWriter) Start() {
	w.wg.Add(1)
	go w.processLoop()
}

// Record queues res for writing. It drops the record when the buffer is full.
func (w *AuditWriter) Record(res *turn.Result) {
	w.Log(FromResult(res))
}

func (w *AuditWriter) Log(rec *TurnRecord) {
	select {
	case w.ch <- rec:
	default:
		log.Warn().Str("turn_id", rec.ID).Msg("audit buffer full, dropping log entry")
	}
}

func (w *AuditWriter) Flush(timeout time.Duration) {
	close(w.done)

	doneCh := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		log.Info().Msg("audit writer flushed")
	case <-time.After(timeout):
		log.Warn().Msg("audit writer flush timed out")
	}
}

func (w *AuditWriter) processLoop() {
	defer w.wg.Done()

	for {
		select {
		case rec := <-w.ch:
			w.writeWithRetry(rec)
		case <-w.done:
			// Drain remaining entries
			for {
				select {
				case rec := <-w.ch:
					w.writeWithRetry(rec)
				default:
					return
				}
			}
		}
	}
}

func (w *AuditWriter) writeWithRetry(rec *TurnRecord) {
	const maxRetries = 3

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := w.db.LogTurn(ctx, rec)
		cancel()

		if err == nil {
			return
		}

		if attempt < maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * w.backoff
			log.Warn().
				Err(err).
				Str("turn_id", rec.ID).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("audit write failed, retrying")
			time.Sleep(backoff)
		} else {
			log.Error().
				Err(err).
				Str("turn_id", rec.ID).
				Msg("audit write failed permanently after retries")
		}
	}
}
