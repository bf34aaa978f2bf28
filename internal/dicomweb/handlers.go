package dicomweb

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/radionest/clarinet/internal/clarineterr"
	"github.com/radionest/clarinet/internal/dicom"
	"github.com/radionest/clarinet/internal/dicomcache"
)

// Handler wires the DICOM client and series cache to chi routes,
// grounded structurally on the reference corpus's handler-wrapping-a-
// service shape (other_examples' ris-dicom-connector dicomweb handler),
// adapted to this port's error and logging conventions.
type Handler struct {
	Client    *dicom.Client
	Cache     *dicomcache.Cache
	PublicURL string // URL prefix these routes are mounted under, for BulkDataURI generation
}

// Mount registers every DICOMweb route under r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/studies", h.qidoStudies)
	r.Get("/studies/{study}/series", h.qidoSeries)
	r.Get("/studies/{study}/series/{series}/instances", h.qidoInstances)
	r.Get("/studies/{study}/metadata", h.wadoStudyMetadata)
	r.Get("/studies/{study}/series/{series}/metadata", h.wadoSeriesMetadata)
	r.Get("/studies/{study}/series/{series}/instances/{sop}/frames/{frames}", h.wadoFrames)
}

func (h *Handler) bulkDataURI(studyUID, seriesUID, sop string) string {
	return h.PublicURL + "/studies/" + studyUID + "/series/" + seriesUID + "/instances/" + sop + "/frames/1"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/dicom+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, clarineterr.StatusOf(err), map[string]string{"error": err.Error()})
}

// queryFromParams maps DICOMweb query parameters (long tag names or hex
// group-element keys, the long name winning when both are given) onto
// a dicom.Query.
func queryFromParams(values map[string][]string) dicom.Query {
	var q dicom.Query
	get := func(keys ...string) *string {
		for _, key := range keys {
			if vs, ok := values[key]; ok && len(vs) > 0 && vs[0] != "" {
				v := vs[0]
				return &v
			}
		}
		return nil
	}
	q.PatientID = get("PatientID", "00100020")
	q.StudyInstanceUID = get("StudyInstanceUID", "0020000D")
	q.SeriesInstanceUID = get("SeriesInstanceUID", "0020000E")
	q.Modality = get("Modality", "00080060")
	q.StudyDate = get("StudyDate", "00080020")
	return q
}

func (h *Handler) qidoStudies(w http.ResponseWriter, r *http.Request) {
	q := queryFromParams(r.URL.Query())
	results, err := h.Client.FindStudies(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DatasetsToJSON(results, "", "", h.bulkDataURI))
}

func (h *Handler) qidoSeries(w http.ResponseWriter, r *http.Request) {
	study := chi.URLParam(r, "study")
	q := queryFromParams(r.URL.Query())
	q.StudyInstanceUID = &study
	results, err := h.Client.FindSeries(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DatasetsToJSON(results, study, "", h.bulkDataURI))
}

func (h *Handler) qidoInstances(w http.ResponseWriter, r *http.Request) {
	study := chi.URLParam(r, "study")
	series := chi.URLParam(r, "series")
	q := queryFromParams(r.URL.Query())
	q.StudyInstanceUID = &study
	q.SeriesInstanceUID = &series
	results, err := h.Client.FindImages(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DatasetsToJSON(results, study, series, h.bulkDataURI))
}

// wadoStudyMetadata discovers every series in the study via C-FIND,
// then fetches each series' metadata in parallel, flattening into one
// DICOM-JSON array.
func (h *Handler) wadoStudyMetadata(w http.ResponseWriter, r *http.Request) {
	study := chi.URLParam(r, "study")
	ctx := r.Context()

	seriesList, err := h.Client.FindSeries(ctx, dicom.Query{StudyInstanceUID: &study})
	if err != nil {
		writeError(w, err)
		return
	}

	type seriesResult struct {
		json []map[string]jsonElement
		err  error
	}
	results := make([]seriesResult, len(seriesList))
	var wg sync.WaitGroup
	for i, s := range seriesList {
		seriesUID := s.String(dicom.TagSeriesInstanceUID)
		wg.Add(1)
		go func(i int, seriesUID string) {
			defer wg.Done()
			entry, err := h.Cache.EnsureSeriesCached(ctx, study, seriesUID, h.Client.GetSeriesToMemory)
			if err != nil {
				results[i] = seriesResult{err: err}
				return
			}
			datasets := make([]*dicom.Dataset, 0, len(entry.Instances))
			for _, ds := range entry.Instances {
				datasets = append(datasets, ds)
			}
			results[i] = seriesResult{json: DatasetsToJSON(datasets, study, seriesUID, h.bulkDataURI)}
		}(i, seriesUID)
	}
	wg.Wait()

	var flattened []map[string]jsonElement
	for _, r := range results {
		if r.err != nil {
			continue // a single series' metadata failure does not fail the whole response
		}
		flattened = append(flattened, r.json...)
	}
	writeJSON(w, http.StatusOK, flattened)
}

func (h *Handler) wadoSeriesMetadata(w http.ResponseWriter, r *http.Request) {
	study := chi.URLParam(r, "study")
	series := chi.URLParam(r, "series")

	entry, err := h.Cache.EnsureSeriesCached(r.Context(), study, series, h.Client.GetSeriesToMemory)
	if err != nil {
		writeError(w, err)
		return
	}
	datasets := make([]*dicom.Dataset, 0, len(entry.Instances))
	for _, ds := range entry.Instances {
		datasets = append(datasets, ds)
	}
	writeJSON(w, http.StatusOK, DatasetsToJSON(datasets, study, series, h.bulkDataURI))
}

func (h *Handler) wadoFrames(w http.ResponseWriter, r *http.Request) {
	study := chi.URLParam(r, "study")
	series := chi.URLParam(r, "series")
	sop := chi.URLParam(r, "sop")
	frameParam := chi.URLParam(r, "frames")

	var frameNumbers []int
	for _, part := range strings.Split(frameParam, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid frame number " + strconv.Quote(part)})
			return
		}
		frameNumbers = append(frameNumbers, n)
	}

	entry, err := h.Cache.EnsureSeriesCached(r.Context(), study, series, h.Client.GetSeriesToMemory)
	if err != nil {
		writeError(w, err)
		return
	}
	ds, ok := entry.Instances[sop]
	if !ok || ds.Bytes(dicom.TagPixelData) == nil {
		ds, err = h.Cache.ReadInstanceFromDisk(study, series, sop)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	frames, err := ExtractFrames(ds, frameNumbers)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := WriteMultipartRelated(w, frames); err != nil {
		writeError(w, err)
	}
}
