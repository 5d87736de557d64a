// Package writer implements the bounded, batching audit-log writer of
// spec.md §4.5 (C5): a FIFO queue with size- and time-triggered flushes, a
// single-in-flight-plus-pending-bit coalescing scheme, and strict/lenient
// failure handling.
//
// The shape is grounded on the teacher's internal/tracker.ConnectionTracker:
// a mutex-guarded in-memory collection, a background goroutine driven by a
// time.Ticker, and a stopCh-based shutdown — repurposed here for batch
// flush instead of heartbeat expiry.
package writer

import (
	"context"
	"database/sql"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/lattice-data/pgaudit/auditctx"
	"github.com/lattice-data/pgaudit/internal/auditerr"
	"github.com/lattice-data/pgaudit/internal/capture"
	"github.com/lattice-data/pgaudit/internal/plog"
)

// Config configures a Writer.
type Config struct {
	DB            *sql.DB
	AuditTable    string
	Columns       ColumnMap
	BatchSize     int
	FlushInterval time.Duration
	MaxQueueSize  int
	Strict        bool
	WaitForWrite  bool
	GetUserID     func() string
	GetMetadata   func() map[string]any
	LogError      func(msg string, err error)
	Logger        *zerolog.Logger
}

type queuedRecord struct {
	id        string
	action    string
	table     string
	recordID  string
	values    map[string]any
	metadata  map[string]any
	userID    string
	ip        string
	ua        string
	txn       string
	createdAt time.Time
}

// round tracks the completion of a single flush for waitForWrite callers.
type round struct {
	done chan struct{}
	err  error
}

func newRound() *round { return &round{done: make(chan struct{})} }

// Writer is the bounded batching audit writer. The zero value is not
// usable; construct with New.
type Writer struct {
	db            *sql.DB
	auditTable    string
	columns       ColumnMap
	batchSize     int
	flushInterval time.Duration
	maxQueueSize  int
	strict        bool
	waitForWrite  bool
	getUserID     func() string
	getMetadata   func() map[string]any
	logError      func(msg string, err error)
	log           zerolog.Logger

	mu         sync.Mutex
	queue      []queuedRecord
	inFlight   bool
	pending    bool
	curRound   *round
	nextRound  *round
	closed     bool
	stopCh     chan struct{}
	tickerDone sync.WaitGroup
}

// New constructs a Writer and starts its periodic flush goroutine.
func New(cfg Config) *Writer {
	getUserID := cfg.GetUserID
	if getUserID == nil {
		getUserID = func() string { return "" }
	}
	getMetadata := cfg.GetMetadata
	if getMetadata == nil {
		getMetadata = func() map[string]any { return nil }
	}
	log := plog.Component("writer")
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	logError := cfg.LogError
	if logError == nil {
		logError = func(msg string, err error) {
			log.Warn().Err(err).Msg(msg)
		}
	}

	w := &Writer{
		db:            cfg.DB,
		auditTable:    cfg.AuditTable,
		columns:       cfg.Columns,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		maxQueueSize:  cfg.MaxQueueSize,
		strict:        cfg.Strict,
		waitForWrite:  cfg.WaitForWrite,
		getUserID:     getUserID,
		getMetadata:   getMetadata,
		logError:      logError,
		log:           log,
		stopCh:        make(chan struct{}),
	}

	w.tickerDone.Add(1)
	go w.tickerLoop()
	return w
}

func (w *Writer) tickerLoop() {
	defer w.tickerDone.Done()
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.triggerPeriodicFlush()
		case <-w.stopCh:
			return
		}
	}
}

func (w *Writer) triggerPeriodicFlush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight {
		if w.nextRound == nil {
			w.nextRound = newRound()
		}
		w.pending = true
		return
	}
	if len(w.queue) == 0 {
		return
	}
	w.startFlushLocked()
}

// startFlushLocked must be called with w.mu held and w.inFlight false; it
// starts a new flush round.
func (w *Writer) startFlushLocked() *round {
	w.inFlight = true
	w.curRound = newRound()
	go w.runFlushLoop()
	return w.curRound
}

// Enqueue resolves ambient context for each record, appends them to the
// queue (subject to maxQueueSize backpressure), and triggers a flush when
// the size threshold is crossed, per spec.md §4.5.
func (w *Writer) Enqueue(ctx context.Context, records []capture.Record, scope auditctx.Context) error {
	if len(records) == 0 {
		return nil
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return auditerr.Shutdown("writer is shut down")
	}

	dropped := 0
	n := len(records)
	if len(w.queue)+n > w.maxQueueSize {
		if w.strict {
			w.mu.Unlock()
			return auditerr.Overflow("queue full")
		}
		room := w.maxQueueSize - len(w.queue)
		if room < 0 {
			room = 0
		}
		dropped = n - room
		records = records[:room]
	}

	for _, rec := range records {
		w.queue = append(w.queue, w.resolve(rec, scope))
	}

	var wait *round
	if w.inFlight {
		if w.nextRound == nil {
			w.nextRound = newRound()
		}
		w.pending = true
		wait = w.nextRound
	} else if len(w.queue) >= w.batchSize {
		wait = w.startFlushLocked()
	}
	w.mu.Unlock()

	if dropped > 0 {
		w.logError("[AUDIT] queue full, dropping records", auditerr.Overflow("queue full"))
	}

	if w.waitForWrite && wait != nil {
		<-wait.done
		return wait.err
	}
	return nil
}

func (w *Writer) resolve(rec capture.Record, scope auditctx.Context) queuedRecord {
	metadata := auditctx.MergeMetadata(w.getMetadata(), scope.Metadata, rec.Metadata)
	userID := scope.UserID
	if userID == "" {
		userID = w.getUserID()
	}
	return queuedRecord{
		id:        uuid.NewString(),
		action:    rec.Action,
		table:     rec.TableName,
		recordID:  rec.RecordID,
		values:    rec.Values,
		metadata:  metadata,
		userID:    userID,
		ip:        scope.IPAddress,
		ua:        scope.UserAgent,
		txn:       scope.TransactionID,
		createdAt: time.Now(),
	}
}

// runFlushLoop drains the queue in batchSize chunks, re-looping while a
// pending flush was requested during the write, per spec.md §4.5's flush
// coalescing rule.
func (w *Writer) runFlushLoop() {
	for {
		w.mu.Lock()
		n := w.batchSize
		if n > len(w.queue) {
			n = len(w.queue)
		}
		batch := append([]queuedRecord(nil), w.queue[:n]...)
		w.queue = w.queue[n:]
		rnd := w.curRound
		w.mu.Unlock()

		var err error
		if len(batch) > 0 {
			err = w.writeBatch(batch)
		}

		w.mu.Lock()
		if err != nil {
			if w.strict {
				w.queue = append(batch, w.queue...)
				rnd.err = err
			} else {
				w.logError("[AUDIT] batch write failed", err)
			}
		}
		close(rnd.done)

		if w.pending {
			w.pending = false
			w.curRound = w.nextRound
			w.nextRound = nil
			w.mu.Unlock()
			continue
		}
		w.inFlight = false
		w.curRound = nil
		w.mu.Unlock()
		return
	}
}

func (w *Writer) writeBatch(batch []queuedRecord) error {
	cols := w.columns
	ib := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Insert(w.auditTable).
		Columns(cols.UserID, cols.IPAddress, cols.UserAgent, cols.Action,
			cols.TableName, cols.RecordID, cols.Values, cols.Metadata, cols.TransactionID, cols.CreatedAt)

	for _, rec := range batch {
		valuesJSON, err := marshalNullableJSON(rec.values)
		if err != nil {
			return auditerr.Write(err)
		}
		metadataJSON, err := marshalNullableJSON(rec.metadata)
		if err != nil {
			return auditerr.Write(err)
		}
		ib = ib.Values(nullableString(rec.userID), nullableString(rec.ip), nullableString(rec.ua),
			rec.action, rec.table, rec.recordID, valuesJSON, metadataJSON,
			nullableString(rec.txn), rec.createdAt)
	}

	query, args, err := ib.ToSql()
	if err != nil {
		return auditerr.Write(err)
	}

	if _, err := w.db.ExecContext(context.Background(), query, args...); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			w.log.Error().Str("pg_code", string(pqErr.Code)).Msg("audit batch insert failed")
		}
		return auditerr.Write(err)
	}
	return nil
}

// Shutdown stops the periodic flusher, drains the queue (failing fast in
// strict mode on the first write error), and marks the writer closed so
// further Enqueue calls fail with auditerr.ShutdownClosed.
func (w *Writer) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stopCh)
	w.tickerDone.Wait()

	for {
		w.mu.Lock()
		inFlight := w.inFlight
		rnd := w.curRound
		w.mu.Unlock()
		if !inFlight {
			break
		}
		<-rnd.done
	}

	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return nil
		}
		n := w.batchSize
		if n > len(w.queue) {
			n = len(w.queue)
		}
		batch := append([]queuedRecord(nil), w.queue[:n]...)
		w.queue = w.queue[n:]
		w.mu.Unlock()

		if err := w.writeBatch(batch); err != nil {
			if w.strict {
				w.mu.Lock()
				w.queue = append(batch, w.queue...)
				w.mu.Unlock()
				return err
			}
			w.logError("[AUDIT] write failed during shutdown", err)
			continue
		}
	}
}

// Stats reports the current queue length and whether a flush is in
// flight, for tests and health checks.
func (w *Writer) Stats() (queueSize int, inFlight bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue), w.inFlight
}

func marshalNullableJSON(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return jsonMarshal(m)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
