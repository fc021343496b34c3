package model

// Artifact is a result CSV written for a job. Rows includes the header row.
type Artifact struct {
	Filename string     `json:"filename"`
	Path     string     `json:"path"`
	Rows     [][]string `json:"-"`
}

// DataRows returns the rows without the header.
func (a *Artifact) DataRows() [][]string {
	if a == nil || len(a.Rows) == 0 {
		return nil
	}
	return a.Rows[1:]
}

// Email is an outbound message with optional file attachments.
type Email struct {
	To          string
	Subject     string
	Body        string
	Attachments []string
}
