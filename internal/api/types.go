package api

import (
	"encoding/json"
	"encoding/xml"
	"sort"
	"strconv"
	"strings"
)

// Target is a backend import target a file is matched to by name.
type Target struct {
	ID        string `json:"id"`
	FileName  string `json:"fileName"`
	FileType  string `json:"fileType"`
	Exchange  string `json:"exchange,omitempty"`
	Segment   string `json:"segment,omitempty"`
	ImportKey string `json:"importKey,omitempty"`
	Enabled   bool   `json:"enabled"`
}

// Rejection is one record the backend refused.
type Rejection struct {
	Exchange string `json:"exchange"`
	Segment  string `json:"segment"`
	FileType string `json:"fileType"`
	Code     string `json:"code"`
	Status   string `json:"status"`
	Remark   string `json:"remark"`
}

// Request is one call to the backend's generic dsXml endpoint.
type Request struct {
	Action   string
	Filters  map[string]string
	Payload  interface{}
	UserID   string
	UserType string
}

type dsXML struct {
	XMLName xml.Name  `xml:"dsXml"`
	UI      string    `xml:"J_Ui"`
	Sql     string    `xml:"Sql"`
	Filter  filterXML `xml:"X_Filter"`
	Data    cdataXML  `xml:"X_Data"`
	API     string    `xml:"J_Api"`
}

type cdataXML struct {
	Text string `xml:",cdata"`
}

// filterXML renders filters as child elements in key order.
type filterXML map[string]string

func (f filterXML) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := xmlName(k)
		if name == "" {
			continue
		}
		if err := e.EncodeElement(f[k], xml.StartElement{Name: xml.Name{Local: name}}); err != nil {
			return err
		}
	}

	return e.EncodeToken(start.End())
}

func xmlName(key string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(key) {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		case i > 0 && ((r >= '0' && r <= '9') || r == '-' || r == '.'):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Encode renders the request body.
func (r *Request) Encode() ([]byte, error) {
	ui, err := json.Marshal(map[string]string{"ActionName": r.Action})
	if err != nil {
		return nil, err
	}
	apiCtx, err := json.Marshal(map[string]string{"UserId": r.UserID, "UserType": r.UserType})
	if err != nil {
		return nil, err
	}

	var data []byte
	if r.Payload != nil {
		if data, err = json.Marshal(r.Payload); err != nil {
			return nil, err
		}
	}

	return xml.Marshal(dsXML{
		UI:     string(ui),
		Filter: filterXML(r.Filters),
		Data:   cdataXML{Text: string(data)},
		API:    string(apiCtx),
	})
}

// Response is the JSON envelope returned by the backend.
type Response struct {
	Status  flexBool        `json:"status"`
	Success flexBool        `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// OK reports whether the backend acknowledged the request.
func (r *Response) OK() bool {
	return bool(r.Status) || bool(r.Success)
}

// Rows decodes the first result set (rs0).
func (r *Response) Rows() ([]map[string]interface{}, error) {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil, nil
	}

	var sets struct {
		RS0 []map[string]interface{} `json:"rs0"`
	}
	if err := json.Unmarshal(r.Data, &sets); err != nil {
		// some actions return the rows directly
		var rows []map[string]interface{}
		if err2 := json.Unmarshal(r.Data, &rows); err2 != nil {
			return nil, err
		}
		return rows, nil
	}
	return sets.RS0, nil
}

// Rejections extracts per-record rejections from rs0.
func (r *Response) Rejections() []Rejection {
	rows, err := r.Rows()
	if err != nil {
		return nil
	}

	out := make([]Rejection, 0, len(rows))
	for _, row := range rows {
		rej := Rejection{
			Exchange: field(row, "Exchange"),
			Segment:  field(row, "Segment"),
			FileType: field(row, "FileType"),
			Code:     field(row, "Code", "ClientCode"),
			Status:   field(row, "Status"),
			Remark:   field(row, "Remark", "Remarks"),
		}
		if rej == (Rejection{}) {
			continue
		}
		out = append(out, rej)
	}
	return out
}

// field returns the first non-empty value among keys, matched
// case-insensitively.
func field(row map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		for k, v := range row {
			if !strings.EqualFold(k, key) || v == nil {
				continue
			}
			if s := stringify(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

// flexBool accepts true/false, "Y"/"N", "true"/"1" and numbers.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = flexBool(truthy(v))
	return nil
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "y", "yes", "true", "1", "success":
			return true
		}
	}
	return false
}
