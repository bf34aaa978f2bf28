package dicom

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/radionest/clarinet/internal/clarineterr"
)

// Client is the async façade over the synchronous association layer,
// bounding concurrent associations with a weighted semaphore and
// retrying transient association failures with backoff. Grounded on
// `internal/winrm/executor.go`'s Execute/executeOnce retry loop,
// generalized from a per-hostname session cache (WinRM sessions are
// long-lived and reused) to a per-call bounded pool (DIMSE associations
// here are opened and released per operation).
type Client struct {
	peer        Node
	sem         *semaphore.Weighted
	findTimeout time.Duration
	getTimeout  time.Duration
	retries     int
	retryDelay  time.Duration
}

// NewClient constructs a Client bounded to maxConcurrent simultaneous
// associations against peer.
func NewClient(peer Node, maxConcurrent int, findTimeout, getTimeout time.Duration) *Client {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Client{
		peer:        peer,
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		findTimeout: findTimeout,
		getTimeout:  getTimeout,
		retries:     2,
		retryDelay:  500 * time.Millisecond,
	}
}

func (c *Client) acquire(ctx context.Context) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return clarineterr.DependencyTimeoutf(err, "acquire DICOM association slot")
	}
	return nil
}

func (c *Client) release() { c.sem.Release(1) }

// withRetry opens a fresh association per attempt, since a failed
// association carries no reusable state (unlike a WinRM session, which
// is worth caching across calls).
func (c *Client) withRetry(ctx context.Context, model InformationModel, wantStorage bool, timeout time.Duration, fn func(*Association) error) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			log.Printf("[dicom] retry %d/%d against %s after association failure: %v", attempt, c.retries, c.peer.AET, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		assoc, err := Open(ctx, c.peer, model, wantStorage, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		err = fn(assoc)
		assoc.Close()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// FindStudies issues a C-FIND at the STUDY level under the
// Study-Root information model.
func (c *Client) FindStudies(ctx context.Context, q Query) ([]*Dataset, error) {
	return c.find(ctx, StudyRootFind, LevelStudy, q)
}

// FindSeries issues a C-FIND at the SERIES level, scoped to a study.
func (c *Client) FindSeries(ctx context.Context, q Query) ([]*Dataset, error) {
	return c.find(ctx, StudyRootFind, LevelSeries, q)
}

// FindImages issues a C-FIND at the IMAGE level, scoped to a series.
func (c *Client) FindImages(ctx context.Context, q Query) ([]*Dataset, error) {
	return c.find(ctx, StudyRootFind, LevelImage, q)
}

func (c *Client) find(ctx context.Context, model InformationModel, level QueryLevel, q Query) ([]*Dataset, error) {
	fctx, cancel := context.WithTimeout(ctx, c.findTimeout)
	defer cancel()

	identifier := BuildIdentifier(level, q)
	var results []*Dataset
	err := c.withRetry(fctx, model, false, c.findTimeout, func(a *Association) error {
		if err := a.send(CmdCFindRQ, nil, identifier); err != nil {
			return clarineterr.ProtocolStatusf("C-FIND send failed: %v", err)
		}
		out, err := a.Find(fctx, identifier, func() (*Dataset, uint16, error) {
			return a.recv()
		})
		results = out
		return err
	})
	return results, err
}

// GetStudyToDisk retrieves a whole study, writing each instance to
// outDir/<SOPInstanceUID>.dcm.
func (c *Client) GetStudyToDisk(ctx context.Context, studyUID, outDir string) (int, error) {
	return c.get(ctx, LevelStudy, Query{StudyInstanceUID: &studyUID}, &DiskStoreHandler{OutDir: outDir})
}

// GetSeriesToDisk retrieves one series to disk.
func (c *Client) GetSeriesToDisk(ctx context.Context, studyUID, seriesUID, outDir string) (int, error) {
	return c.get(ctx, LevelSeries, Query{StudyInstanceUID: &studyUID, SeriesInstanceUID: &seriesUID}, &DiskStoreHandler{OutDir: outDir})
}

// GetStudyToMemory retrieves a whole study, keeping every instance in
// memory.
func (c *Client) GetStudyToMemory(ctx context.Context, studyUID string) ([]*Dataset, error) {
	h := &MemoryStoreHandler{}
	_, err := c.get(ctx, LevelStudy, Query{StudyInstanceUID: &studyUID}, h)
	return h.Datasets, err
}

// GetSeriesToMemory retrieves one series, keeping every instance in
// memory. This is the call `internal/dicomcache` makes on a cache miss.
func (c *Client) GetSeriesToMemory(ctx context.Context, studyUID, seriesUID string) ([]*Dataset, error) {
	h := &MemoryStoreHandler{}
	_, err := c.get(ctx, LevelSeries, Query{StudyInstanceUID: &studyUID, SeriesInstanceUID: &seriesUID}, h)
	return h.Datasets, err
}

func (c *Client) get(ctx context.Context, level QueryLevel, q Query, handler StoreHandler) (int, error) {
	gctx, cancel := context.WithTimeout(ctx, c.getTimeout)
	defer cancel()

	identifier := BuildIdentifier(level, q)
	var count int
	err := c.withRetry(gctx, StudyRootFind, true, c.getTimeout, func(a *Association) error {
		if err := a.send(CmdCGetRQ, nil, identifier); err != nil {
			return clarineterr.ProtocolStatusf("C-GET send failed: %v", err)
		}
		n, err := a.get(gctx, identifier, handler, func() (*Dataset, uint16, error) {
			return a.recv()
		})
		count = n
		return err
	})
	return count, err
}

// MoveStudy issues a C-MOVE of a whole study to destAET.
func (c *Client) MoveStudy(ctx context.Context, studyUID, destAET string) error {
	return c.move(ctx, LevelStudy, Query{StudyInstanceUID: &studyUID}, destAET)
}

// MoveSeries issues a C-MOVE of one series to destAET.
func (c *Client) MoveSeries(ctx context.Context, studyUID, seriesUID, destAET string) error {
	return c.move(ctx, LevelSeries, Query{StudyInstanceUID: &studyUID, SeriesInstanceUID: &seriesUID}, destAET)
}

func (c *Client) move(ctx context.Context, level QueryLevel, q Query, destAET string) error {
	mctx, cancel := context.WithTimeout(ctx, c.getTimeout)
	defer cancel()

	identifier := BuildIdentifier(level, q)
	return c.withRetry(mctx, StudyRootMove, false, c.getTimeout, func(a *Association) error {
		cmd := NewDataset()
		cmd.SetString(Tag{Group: 0x0000, Element: 0x0600}, VRCS, destAET) // Move Destination
		if err := a.send(CmdCMoveRQ, cmd, identifier); err != nil {
			return clarineterr.ProtocolStatusf("C-MOVE send failed: %v", err)
		}
		for {
			_, status, err := a.recv()
			if err != nil {
				return clarineterr.ProtocolStatusf("C-MOVE response failed: %v", err)
			}
			if status == StatusSuccess {
				return nil
			}
			if status != StatusPending && status != StatusPendingWarning {
				return clarineterr.ProtocolStatusf("C-MOVE to %s ended with status 0x%04X", destAET, status)
			}
		}
	})
}
