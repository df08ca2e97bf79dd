package types

// Kind distinguishes file transfers from short text messages.
type Kind string

const (
	KindFile Kind = "file"
	KindText Kind = "text"
)

// TransferMetadata describes the payload announced by the sender before any data
type TransferMetadata struct {
	Filename    string `json:"filename"`              // Base name of the file, empty for text
	Filesize    int64  `json:"filesize"`              // Exact payload size in bytes
	Kind        Kind   `json:"kind"`                  // File or text
	MimeType    string `json:"mimeType,omitempty"`    // Detected MIME type
	Checksum    string `json:"checksum,omitempty"`    // Hex SHA-256 of the payload, optional
	Compression string `json:"compression,omitempty"` // Per-chunk codec, "" when uncompressed
}

// ProgressEvent reports cumulative progress of a single transfer
type ProgressEvent struct {
	BytesTransferred int64
	TotalBytes       int64
}

// Fraction returns completion in the range [0, 1]. An empty transfer is complete.
func (p ProgressEvent) Fraction() float64 {
	if p.TotalBytes <= 0 {
		return 1
	}
	return float64(p.BytesTransferred) / float64(p.TotalBytes)
}

// TransferResult is what a successful receive hands back to the caller
type TransferResult struct {
	Data     []byte
	Filename string
	Filesize int64
	Kind     Kind
	MimeType string
}

// Text returns the payload as a string for text transfers.
func (r *TransferResult) Text() string {
	return string(r.Data)
}
