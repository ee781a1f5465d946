package g2b

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"
)

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

type envelope struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			Items      items   `json:"items"`
			NumOfRows  flexInt `json:"numOfRows"`
			PageNo     flexInt `json:"pageNo"`
			TotalCount flexInt `json:"totalCount"`
		} `json:"body"`
	} `json:"response"`
}

// xmlFault is the gateway error body returned regardless of the requested
// format when the key, quota or service lookup fails.
type xmlFault struct {
	XMLName xml.Name `xml:"OpenAPI_ServiceResponse"`
	Header  struct {
		ErrMsg     string `xml:"errMsg"`
		AuthMsg    string `xml:"returnAuthMsg"`
		ReasonCode string `xml:"returnReasonCode"`
	} `xml:"cmmMsgHeader"`
}

type itemsKind int

const (
	itemsEmpty itemsKind = iota
	itemsSingle
	itemsList
)

// items decodes the three shapes upstream uses for the result list: absent
// (or null / ""), a single object, or an array. Some gateways additionally
// wrap the payload as {"item": ...}.
type items struct {
	kind itemsKind
	list []apiItem
}

func (it *items) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte(`""`)):
		*it = items{kind: itemsEmpty}
		return nil

	case data[0] == '[':
		var list []apiItem
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("failed to decode item list: %w", err)
		}
		if len(list) == 0 {
			*it = items{kind: itemsEmpty}
			return nil
		}
		*it = items{kind: itemsList, list: list}
		return nil

	case data[0] == '{':
		var wrapper struct {
			Item json.RawMessage `json:"item"`
		}
		if err := json.Unmarshal(data, &wrapper); err == nil && len(wrapper.Item) > 0 {
			return it.UnmarshalJSON(wrapper.Item)
		}

		var single apiItem
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("failed to decode single item: %w", err)
		}
		*it = items{kind: itemsSingle, list: []apiItem{single}}
		return nil
	}

	return fmt.Errorf("unexpected items shape: %.20s", data)
}

func (it items) Items() []apiItem {
	if it.kind == itemsEmpty {
		return nil
	}
	return it.list
}

type apiItem struct {
	BidNtceNo            flexString `json:"bidNtceNo"`
	BidNtceOrd           flexString `json:"bidNtceOrd"`
	BidNtceNm            flexString `json:"bidNtceNm"`
	NtceInsttNm          flexString `json:"ntceInsttNm"`
	DminsttNm            flexString `json:"dminsttNm"`
	PrtcptPsblRgnNm      flexString `json:"prtcptPsblRgnNm"`
	JntcontrctDutyRgnNm1 flexString `json:"jntcontrctDutyRgnNm1"`
	PubPrcrmntClsfcNm    flexString `json:"pubPrcrmntClsfcNm"`
	SrvceDivNm           flexString `json:"srvceDivNm"`
	AsignBdgtAmt         flexString `json:"asignBdgtAmt"`
	PresmptPrce          flexString `json:"presmptPrce"`
	BidClseDt            flexString `json:"bidClseDt"`
	BidNtceDtlUrl        flexString `json:"bidNtceDtlUrl"`
	BidNtceUrl           flexString `json:"bidNtceUrl"`
	BidNtceDt            flexString `json:"bidNtceDt"`
}

// flexString accepts JSON strings, numbers and null.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(data)
	return nil
}

// flexInt accepts numbers and numeric strings; anything else decodes as 0.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	v, err := strconv.Atoi(string(s))
	if err != nil {
		*n = 0
		return nil
	}
	*n = flexInt(v)
	return nil
}
