package dicomweb

import (
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/radionest/clarinet/internal/clarineterr"
	"github.com/radionest/clarinet/internal/dicom"
)

// ExtractFrames splits an instance's PixelData into the frames
// requested (1-based, as WADO-RS specifies). A single-frame instance
// returns the whole PixelData once per requested frame number (any
// number other than 1 is out of range); a multi-frame instance splits
// PixelData into NumberOfFrames equal-size chunks.
func ExtractFrames(ds *dicom.Dataset, frameNumbers []int) ([][]byte, error) {
	pixels := ds.Bytes(dicom.TagPixelData)
	if pixels == nil {
		return nil, clarineterr.NotFoundf("instance has no PixelData element")
	}

	numFrames := 1
	if e, ok := ds.Get(dicom.TagNumberOfFrames); ok {
		if s, ok := e.Value.(string); ok {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				numFrames = n
			}
		}
	}

	frameSize := len(pixels) / numFrames
	out := make([][]byte, 0, len(frameNumbers))
	for _, n := range frameNumbers {
		if n < 1 || n > numFrames {
			return nil, clarineterr.Validationf("frame %d out of range 1..%d", n, numFrames)
		}
		start := (n - 1) * frameSize
		end := start + frameSize
		if end > len(pixels) {
			end = len(pixels)
		}
		out = append(out, pixels[start:end])
	}
	return out, nil
}

// WriteMultipartRelated writes one application/octet-stream part per
// frame to w, setting the Content-Type header with the multipart
// boundary as WADO-RS's frames endpoint requires.
func WriteMultipartRelated(w http.ResponseWriter, frames [][]byte) error {
	boundary := strings.ReplaceAll(uuid.New().String(), "-", "")
	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(boundary); err != nil {
		return clarineterr.Internalf(err, "set multipart boundary")
	}
	w.Header().Set("Content-Type", `multipart/related; type="application/octet-stream"; boundary=`+boundary)
	w.WriteHeader(http.StatusOK)

	for _, frame := range frames {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/octet-stream")
		part, err := mw.CreatePart(header)
		if err != nil {
			return err
		}
		if _, err := part.Write(frame); err != nil {
			return err
		}
	}
	return mw.Close()
}
