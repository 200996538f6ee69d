// Package remote implements the XML request/reply envelope a peer uses to
// drive ZMaps and views.
//
//	<zmap><request command="new_view"><sequence name="chr1" start="1" end="5000"/></request></zmap>
//	<zmap><response command="new_view" result="200" viewid="..." zmapid="..."/></zmap>
package remote

import (
	"encoding/xml"
	"fmt"
	"io"

	"zmapd/internal/feature"
)

// Result codes carried in Response.Result.
const (
	CodeOK          = 200
	CodeBadRequest  = 400
	CodeNotFound    = 404
	CodeConflict    = 409
	CodeError       = 500
	CodeUnavailable = 503
)

// Commands understood by Handler.
const (
	CmdPing      = "ping"
	CmdNewView   = "new_view"
	CmdAddView   = "add_view"
	CmdLoad      = "load"
	CmdReset     = "reset"
	CmdCloseView = "close_view"
	CmdListViews = "list_views"
	CmdShutdown  = "shutdown"
)

type envelope struct {
	XMLName  xml.Name  `xml:"zmap"`
	Request  *Request  `xml:"request,omitempty"`
	Response *Response `xml:"response,omitempty"`
}

// Request is one peer command.
type Request struct {
	Command  string    `xml:"command,attr"`
	ViewID   string    `xml:"viewid,attr,omitempty"`
	ZMapID   string    `xml:"zmapid,attr,omitempty"`
	Sequence *Sequence `xml:"sequence,omitempty"`
}

// Sequence names a region; Start and End of 0 mean the whole sequence.
type Sequence struct {
	Name  string `xml:"name,attr"`
	Start int    `xml:"start,attr,omitempty"`
	End   int    `xml:"end,attr,omitempty"`
}

func (s *Sequence) region() (feature.Sequence, error) {
	seq := feature.Sequence{Name: s.Name, Start: s.Start, End: s.End}
	return seq, seq.Validate()
}

// Response is the reply to a Request.
type Response struct {
	Command string `xml:"command,attr"`
	Result  int    `xml:"result,attr"`
	Reason  string `xml:"reason,attr,omitempty"`
	ViewID  string `xml:"viewid,attr,omitempty"`
	ZMapID  string `xml:"zmapid,attr,omitempty"`
	Views   []View `xml:"view,omitempty"`
}

// View is a list_views entry.
type View struct {
	ID       string `xml:"id,attr"`
	ZMapID   string `xml:"zmapid,attr"`
	State    string `xml:"state,attr"`
	Sequence string `xml:"sequence,attr"`
	Features int    `xml:"features,attr"`
}

// DecodeRequest reads one request envelope.
func DecodeRequest(r io.Reader) (Request, error) {
	var env envelope
	if err := xml.NewDecoder(r).Decode(&env); err != nil {
		return Request{}, fmt.Errorf("remote: decode: %w", err)
	}
	if env.Request == nil {
		return Request{}, fmt.Errorf("remote: envelope has no request")
	}
	return *env.Request, nil
}

// EncodeRequest writes req as an envelope.
func EncodeRequest(w io.Writer, req Request) error {
	return xml.NewEncoder(w).Encode(envelope{Request: &req})
}

// DecodeResponse reads one response envelope.
func DecodeResponse(r io.Reader) (Response, error) {
	var env envelope
	if err := xml.NewDecoder(r).Decode(&env); err != nil {
		return Response{}, fmt.Errorf("remote: decode: %w", err)
	}
	if env.Response == nil {
		return Response{}, fmt.Errorf("remote: envelope has no response")
	}
	return *env.Response, nil
}

// EncodeResponse writes resp as an envelope.
func EncodeResponse(w io.Writer, resp Response) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(envelope{Response: &resp})
}
