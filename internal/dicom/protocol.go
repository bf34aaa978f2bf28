package dicom

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// DIMSE command fields, simplified to the subset this client needs
// (PS3.7 Annex E uses a much larger command set; only what C-FIND,
// C-GET, C-MOVE and C-STORE actually exchange is modeled).
var (
	TagCommandField   = Tag{0x0000, 0x0100}
	TagStatus         = Tag{0x0000, 0x0900}
	TagAffectedSOPUID = Tag{0x0000, 0x0002}
)

// Command field values.
const (
	CmdCFindRQ   uint16 = 0x0020
	CmdCFindRSP  uint16 = 0x8020
	CmdCGetRQ    uint16 = 0x0010
	CmdCGetRSP   uint16 = 0x8010
	CmdCMoveRQ   uint16 = 0x0021
	CmdCMoveRSP  uint16 = 0x8021
	CmdCStoreRQ  uint16 = 0x0001
	CmdCStoreRSP uint16 = 0x8001
)

// message is one DIMSE command plus an optional accompanying dataset,
// the unit exchanged over the association's transport.
type message struct {
	Command WireDataset
	Data    WireDataset
	HasData bool
}

// writeFrame writes a length-prefixed gob-encoded message.
func writeFrame(w io.Writer, m message) error {
	var buf []byte
	enc := &gobBuffer{}
	if err := gob.NewEncoder(enc).Encode(m); err != nil {
		return fmt.Errorf("encode DIMSE frame: %w", err)
	}
	buf = enc.data

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(buf)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(buf)
	return err
}

// readFrame reads one length-prefixed gob-encoded message.
func readFrame(r io.Reader) (message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return message{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return message{}, err
	}
	var m message
	gb := &gobBuffer{data: buf}
	if err := gob.NewDecoder(gb).Decode(&m); err != nil {
		return message{}, fmt.Errorf("decode DIMSE frame: %w", err)
	}
	return m, nil
}

// gobBuffer is a minimal io.Reader/io.Writer over an in-memory byte
// slice, avoiding a bytes.Buffer import purely for this pair of calls.
type gobBuffer struct {
	data []byte
	pos  int
}

func (b *gobBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *gobBuffer) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}

// send writes a command (and optional dataset) to the peer.
func (a *Association) send(cmdField uint16, cmd *Dataset, data *Dataset) error {
	if cmd == nil {
		cmd = NewDataset()
	}
	cmd.Set(TagCommandField, VRUI, fmt.Sprintf("%d", cmdField))
	m := message{Command: datasetWire(cmd)}
	if data != nil {
		m.Data = datasetWire(data)
		m.HasData = true
	}
	return writeFrame(a.conn, m)
}

// recv reads the next command/dataset pair and the status it carries.
func (a *Association) recv() (*Dataset, uint16, error) {
	m, err := readFrame(a.conn)
	if err != nil {
		return nil, 0, err
	}
	cmd := datasetFromWire(m.Command)
	var status uint16
	fmt.Sscanf(cmd.String(TagStatus), "%d", &status)
	if !m.HasData {
		return nil, status, nil
	}
	return datasetFromWire(m.Data), status, nil
}
