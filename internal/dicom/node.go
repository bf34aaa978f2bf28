package dicom

// Node describes a peer Application Entity: the PACS itself, or a
// downstream AE a FORWARD store handler relays to.
type Node struct {
	Host       string
	Port       int
	AET        string // peer's Application Entity Title
	CallingAET string // our AET, presented on association open
}
