package fetchqueue

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/semaphore"
)

const DefaultWorkers = 10

var ErrQueueClosed = errors.New("fetch queue closed")

// Callback receives the fetched document, or the reason it could not be fetched.
type Callback func(body []byte, err errorsx.Error)

type task struct {
	location string
	callback Callback
	body     []byte
	err      errorsx.Error
}

// Queue fetches scene and data documents in the background.
// Completed fetches are only handed back from Process, so callbacks always run on the goroutine that pumps the queue.
type Queue struct {
	logger  *logpkg.Logger
	client  httpextra.Doer
	fs      gofs.Fs
	workers int
	sema    *semaphore.Semaphore

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	pending   []*task
	inFlight  int
	completed []*task
	closed    bool
}

func NewQueue(logger *logpkg.Logger, client httpextra.Doer, fs gofs.Fs, workers uint) *Queue {
	if workers == 0 {
		workers = DefaultWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		logger:  logger,
		client:  client,
		fs:      fs,
		workers: int(workers),
		sema:    semaphore.NewSemaphore(workers),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue adds a fetch. location is an http(s) URL, a file:// URL or a local path.
func (q *Queue) Enqueue(location string, callback Callback) errorsx.Error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errorsx.Wrap(ErrQueueClosed, "location", location)
	}

	q.pending = append(q.pending, &task{location: location, callback: callback})

	return nil
}

// Process hands pending fetches to free workers without blocking, then runs the callbacks of finished fetches.
// It returns how many callbacks were run.
func (q *Queue) Process() int {
	q.mu.Lock()
	for len(q.pending) > 0 && q.sema.CurrentlyRunning() < q.workers {
		t := q.pending[0]
		q.pending = q.pending[1:]
		q.inFlight++
		q.sema.Add()
		go q.run(t)
	}
	completed := q.completed
	q.completed = nil
	q.mu.Unlock()

	for _, t := range completed {
		t.callback(t.body, t.err)
	}

	return len(completed)
}

// Pending counts fetches that have not been delivered by Process yet.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending) + q.inFlight + len(q.completed)
}

// Finish stops intake, cancels fetches that haven't started, and waits for the running ones to stop.
func (q *Queue) Finish() {
	q.mu.Lock()
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()

	q.cancel()
	q.sema.Wait()

	q.mu.Lock()
	q.completed = nil
	q.mu.Unlock()

	if dropped != 0 {
		q.logger.Debug("fetch queue finished. %d queued fetches dropped", dropped)
	}
}

func (q *Queue) run(t *task) {
	defer q.sema.Done()

	body, err := q.load(t.location)
	if err != nil {
		q.logger.Warn("failed to fetch %q: %s", t.location, err)
	}

	q.mu.Lock()
	t.body, t.err = body, err
	q.inFlight--
	q.completed = append(q.completed, t)
	q.mu.Unlock()
}

func (q *Queue) load(location string) ([]byte, errorsx.Error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, errorsx.Wrap(err, "location", location)
	}

	switch u.Scheme {
	case "http", "https":
		return q.loadHTTP(location)
	case "file":
		return q.loadFile(u.Path)
	case "":
		return q.loadFile(location)
	default:
		return nil, errorsx.Errorf("unsupported scheme %q in %q", u.Scheme, location)
	}
}

func (q *Queue) loadHTTP(location string) ([]byte, errorsx.Error) {
	req, err := http.NewRequestWithContext(q.ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, errorsx.Wrap(err, "location", location)
	}
	defer resp.Body.Close()

	err = httpextra.CheckResponseCode(http.StatusOK, resp.StatusCode)
	if err != nil {
		return nil, errorsx.Wrap(err, "location", location, "body", httpextra.GetBodyOrErrorMsg(resp))
	}

	r, err := httpextra.RemoveGzip(resp)
	if err != nil {
		return nil, errorsx.Wrap(err, "location", location)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, errorsx.Wrap(err, "location", location)
	}

	return body, nil
}

func (q *Queue) loadFile(path string) ([]byte, errorsx.Error) {
	body, err := q.fs.ReadFile(path)
	if err != nil {
		return nil, errorsx.Wrap(err, "path", path)
	}

	return body, nil
}
