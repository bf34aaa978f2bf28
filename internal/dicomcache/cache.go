// Package dicomcache implements the two-tier (memory + disk) series
// cache that sits in front of the DICOM client, so a series fetched
// once over C-GET is served locally on every subsequent DICOMweb
// request until it expires. Grounded line-for-line on
// services/dicomweb/cache.py's ensure_series_cached, translated from
// asyncio primitives to singleflight + goroutines.
package dicomcache

import (
	"context"
	"encoding/gob"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/radionest/clarinet/internal/clarineterr"
	"github.com/radionest/clarinet/internal/dicom"
	"github.com/radionest/clarinet/internal/ttlru"
)

const cachedAtMarker = ".cached_at"

// seriesKey identifies one cached series.
type seriesKey struct {
	StudyUID  string
	SeriesUID string
}

func (k seriesKey) String() string { return k.StudyUID + "/" + k.SeriesUID }

// Entry is a cached series: every instance keyed by SOPInstanceUID.
type Entry struct {
	Instances     map[string]*dicom.Dataset
	CachedAt      time.Time
	DiskPersisted bool
}

// Cache is the two-tier series cache.
type Cache struct {
	rootDir      string
	diskTTL      time.Duration
	maxSizeBytes int64

	memory *ttlru.Cache[seriesKey, *Entry]
	group  singleflight.Group

	wg sync.WaitGroup
}

// Config bundles the tunables §4.D exposes via configuration.
type Config struct {
	RootDir        string
	DiskTTL        time.Duration
	MaxSizeBytes   int64
	MemoryTTL      time.Duration
	MemoryCapacity int
}

// New constructs a Cache rooted at cfg.RootDir.
func New(cfg Config) *Cache {
	return &Cache{
		rootDir:      cfg.RootDir,
		diskTTL:      cfg.DiskTTL,
		maxSizeBytes: cfg.MaxSizeBytes,
		memory:       ttlru.New[seriesKey, *Entry](cfg.MemoryCapacity, cfg.MemoryTTL),
	}
}

func (c *Cache) seriesDir(k seriesKey) string {
	return filepath.Join(c.rootDir, k.StudyUID, k.SeriesUID)
}

// EnsureSeriesCached guarantees at-most-once concurrent retrieval per
// (study, series): memory -> disk -> PACS, in that order, with the
// result always returned as the memory entry.
func (c *Cache) EnsureSeriesCached(ctx context.Context, studyUID, seriesUID string, fetch SeriesFetcher) (*Entry, error) {
	k := seriesKey{StudyUID: studyUID, SeriesUID: seriesUID}

	if e, ok := c.memory.Get(k); ok {
		return e, nil
	}

	v, err, _ := c.group.Do(k.String(), func() (any, error) {
		// Double-check after acquiring the coalescing slot: another
		// caller may have just finished populating memory.
		if e, ok := c.memory.Get(k); ok {
			return e, nil
		}

		if e, ok := c.loadFromDisk(k); ok {
			c.memory.Put(k, e)
			return e, nil
		}

		datasets, err := fetch(ctx, studyUID, seriesUID)
		if err != nil {
			return nil, err
		}
		e := &Entry{Instances: make(map[string]*dicom.Dataset, len(datasets)), CachedAt: time.Now()}
		for _, ds := range datasets {
			sop := ds.String(dicom.TagSOPInstanceUID)
			e.Instances[sop] = ds
		}
		c.memory.Put(k, e)
		c.scheduleDiskWrite(k, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// SeriesFetcher retrieves a series from the PACS on a cache miss.
type SeriesFetcher func(ctx context.Context, studyUID, seriesUID string) ([]*dicom.Dataset, error)

// scheduleDiskWrite persists e to disk in the background. It receives
// e by reference so an LRU eviction of the memory entry in the meantime
// does not corrupt the write; on success, if the entry is still present
// in memory, it is marked disk_persisted in place (Peek does not
// disturb LRU order).
func (c *Cache) scheduleDiskWrite(k seriesKey, e *Entry) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.writeToDisk(k, e); err != nil {
			log.Printf("[dicomcache] background disk write failed for %s: %v", k, err)
			return
		}
		c.memory.Peek(k, func(cur **Entry) {
			(*cur).DiskPersisted = true
		})
	}()
}

func (c *Cache) writeToDisk(k seriesKey, e *Entry) error {
	dir := c.seriesDir(k)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return clarineterr.Storagef(err, "create series cache dir %s", dir)
	}
	for sop, ds := range e.Instances {
		path := filepath.Join(dir, sop+".dcm")
		f, err := os.Create(path)
		if err != nil {
			return clarineterr.Storagef(err, "write %s", path)
		}
		err = gob.NewEncoder(f).Encode(dicom.ToWire(ds))
		f.Close()
		if err != nil {
			return clarineterr.Storagef(err, "encode %s", path)
		}
	}
	marker := filepath.Join(dir, cachedAtMarker)
	return os.WriteFile(marker, []byte(formatCachedAt(e.CachedAt)), 0o644)
}

// formatCachedAt renders t as the float unix timestamp the on-disk
// .cached_at marker is documented to hold.
func formatCachedAt(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', -1, 64)
}

// parseCachedAt parses a .cached_at marker's float unix timestamp body.
func parseCachedAt(raw string) (time.Time, error) {
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, int64(secs*1e9)), nil
}

// loadFromDisk validates the .cached_at marker against diskTTL; on a
// stale directory it deletes the directory and reports a miss. On a
// fresh hit it loads every .dcm file into memory.
func (c *Cache) loadFromDisk(k seriesKey) (*Entry, bool) {
	dir := c.seriesDir(k)
	marker := filepath.Join(dir, cachedAtMarker)
	raw, err := os.ReadFile(marker)
	if err != nil {
		return nil, false
	}
	cachedAt, err := parseCachedAt(string(raw))
	if err != nil {
		return nil, false
	}
	if c.diskTTL > 0 && time.Since(cachedAt) > c.diskTTL {
		os.RemoveAll(dir)
		return nil, false
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}
	e := &Entry{Instances: make(map[string]*dicom.Dataset), CachedAt: cachedAt, DiskPersisted: true}
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".dcm" {
			continue
		}
		ds, err := readDatasetFile(filepath.Join(dir, de.Name()))
		if err != nil {
			log.Printf("[dicomcache] skipping unreadable cache file %s: %v", de.Name(), err)
			continue
		}
		sop := ds.String(dicom.TagSOPInstanceUID)
		e.Instances[sop] = ds
	}
	return e, true
}

// ReadInstanceFromDisk returns a single instance without loading the
// whole series into memory, the fast path WADO-RS frame retrieval uses
// when the in-memory entry has already been evicted.
func (c *Cache) ReadInstanceFromDisk(studyUID, seriesUID, sop string) (*dicom.Dataset, error) {
	path := filepath.Join(c.rootDir, studyUID, seriesUID, sop+".dcm")
	ds, err := readDatasetFile(path)
	if err != nil {
		return nil, clarineterr.NotFoundf("instance %s not cached on disk", sop)
	}
	return ds, nil
}

func readDatasetFile(path string) (*dicom.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var w dicom.WireDataset
	if err := gob.NewDecoder(f).Decode(&w); err != nil {
		return nil, err
	}
	return dicom.FromWire(w), nil
}

// EvictExpired walks the disk tree removing any series whose
// .cached_at marker is older than diskTTL, then removes any study
// directory left empty.
func (c *Cache) EvictExpired() error {
	studies, err := os.ReadDir(c.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return clarineterr.Storagef(err, "read cache root %s", c.rootDir)
	}
	for _, study := range studies {
		if !study.IsDir() {
			continue
		}
		studyDir := filepath.Join(c.rootDir, study.Name())
		series, err := os.ReadDir(studyDir)
		if err != nil {
			continue
		}
		for _, s := range series {
			if !s.IsDir() {
				continue
			}
			seriesDir := filepath.Join(studyDir, s.Name())
			raw, err := os.ReadFile(filepath.Join(seriesDir, cachedAtMarker))
			if err != nil {
				continue
			}
			cachedAt, err := parseCachedAt(string(raw))
			if err != nil || (c.diskTTL > 0 && time.Since(cachedAt) > c.diskTTL) {
				os.RemoveAll(seriesDir)
			}
		}
		c.cleanupEmptyStudyDir(studyDir)
	}
	return nil
}

func (c *Cache) cleanupEmptyStudyDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
}

type seriesBySize struct {
	dir      string
	cachedAt time.Time
	size     int64
}

// EvictBySize sums file sizes across the cache tree; if over
// maxSizeBytes, removes series in ascending cached_at order (oldest
// first) until under the cap.
func (c *Cache) EvictBySize() error {
	var all []seriesBySize
	var total int64

	studies, err := os.ReadDir(c.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return clarineterr.Storagef(err, "read cache root %s", c.rootDir)
	}
	for _, study := range studies {
		if !study.IsDir() {
			continue
		}
		studyDir := filepath.Join(c.rootDir, study.Name())
		series, err := os.ReadDir(studyDir)
		if err != nil {
			continue
		}
		for _, s := range series {
			if !s.IsDir() {
				continue
			}
			seriesDir := filepath.Join(studyDir, s.Name())
			var size int64
			var cachedAt time.Time
			filepath.Walk(seriesDir, func(path string, info os.FileInfo, err error) error {
				if err != nil || info.IsDir() {
					return nil
				}
				size += info.Size()
				return nil
			})
			if raw, err := os.ReadFile(filepath.Join(seriesDir, cachedAtMarker)); err == nil {
				cachedAt, _ = parseCachedAt(string(raw))
			}
			all = append(all, seriesBySize{dir: seriesDir, cachedAt: cachedAt, size: size})
			total += size
		}
	}

	if total <= c.maxSizeBytes {
		return nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].cachedAt.Before(all[j].cachedAt) })
	for _, s := range all {
		if total <= c.maxSizeBytes {
			break
		}
		os.RemoveAll(s.dir)
		total -= s.size
	}
	return nil
}

// Shutdown cancels nothing (background writes are not cancellable
// mid-flight by design, to avoid partial series on disk) but awaits
// every pending disk-write goroutine, then clears the memory cache. The
// singleflight group is left as is: it drops each key itself once that
// key's call returns.
func (c *Cache) Shutdown() {
	c.wg.Wait()
	c.memory.Clear()
}
