package g2b

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/bid-comb/app/bid"
)

const (
	DefaultBaseURL = "https://apis.data.go.kr/1230000/ad/BidPublicInfoService/getBidPblancListInfoServc"

	inquiryByDate   = "1"
	inquiryByNumber = "2"

	timeLayout = "200601021504"
)

type Options struct {
	BaseURL    string
	ServiceKey string
	UserAgent  string
	Timeout    time.Duration
	Location   *time.Location
	HTTPClient *http.Client
}

// Client queries the public procurement bid-notice API.
type Client struct {
	baseURL    string
	serviceKey string
	userAgent  string
	location   *time.Location
	httpClient *http.Client
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cmp.Or(opts.Timeout, 30*time.Second)}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	return &Client{
		baseURL:    cmp.Or(opts.BaseURL, DefaultBaseURL),
		serviceKey: decodeServiceKey(opts.ServiceKey),
		userAgent:  opts.UserAgent,
		location:   loc,
		httpClient: httpClient,
	}
}

// Page is one upstream page. Fetched is the item count before client-side
// title filtering and is what pagination must look at.
type Page struct {
	Items      []bid.RawNotice
	Fetched    int
	TotalCount int
}

// Fetch returns one page of notices registered inside window whose title
// contains keyword.
func (c *Client) Fetch(ctx context.Context, keyword string, window Window, page, pageSize int) ([]bid.RawNotice, error) {
	p, err := c.FetchPage(ctx, keyword, window, page, pageSize)
	if err != nil {
		return nil, err
	}
	return p.Items, nil
}

// FetchPage is Fetch with pagination metadata. Upstream keyword filtering is
// not trusted, so titles are filtered again here.
func (c *Client) FetchPage(ctx context.Context, keyword string, window Window, page, pageSize int) (Page, error) {
	params := url.Values{}
	params.Set("inqryDiv", inquiryByDate)
	params.Set("inqryBgnDt", c.EncodeTime(window.Start))
	// The upstream end bound is inclusive at minute precision.
	params.Set("inqryEndDt", c.EncodeTime(window.End.Add(-time.Minute)))
	if keyword != "" {
		params.Set("bidNtceNm", keyword)
	}

	raws, total, err := c.query(ctx, params, page, pageSize)
	if err != nil {
		return Page{}, err
	}

	result := Page{Items: raws, Fetched: len(raws), TotalCount: total}
	if keyword == "" {
		return result, nil
	}

	filtered := make([]bid.RawNotice, 0, len(raws))
	for _, raw := range raws {
		if bid.ContainsFold(raw.Title, keyword) {
			filtered = append(filtered, raw)
		}
	}
	if dropped := len(raws) - len(filtered); dropped > 0 {
		slog.Debug("Dropped items not matching keyword", "keyword", keyword, "page", page, "dropped", dropped)
	}
	result.Items = filtered

	return result, nil
}

// Lookup fetches a notice by its number.
func (c *Client) Lookup(ctx context.Context, noticeNo string) ([]bid.RawNotice, error) {
	params := url.Values{}
	params.Set("inqryDiv", inquiryByNumber)
	params.Set("bidNtceNo", noticeNo)

	raws, _, err := c.query(ctx, params, 1, 10)
	return raws, err
}

// EncodeTime renders t in the API's local-time minute format.
func (c *Client) EncodeTime(t time.Time) string {
	return t.In(c.location).Format(timeLayout)
}

func (c *Client) query(ctx context.Context, params url.Values, page, pageSize int) ([]bid.RawNotice, int, error) {
	params.Set("serviceKey", c.serviceKey)
	params.Set("pageNo", strconv.Itoa(page))
	params.Set("numOfRows", strconv.Itoa(pageSize))
	params.Set("type", "json")

	reqURL := c.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, &APIError{Kind: KindUpstream, Code: "transport", Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &APIError{Kind: KindUpstream, Code: "transport", Message: fmt.Sprintf("failed to read response body: %v", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, 0, errorForStatus(resp.StatusCode, string(body))
	}

	return decodeBody(body)
}

func decodeBody(body []byte) ([]bid.RawNotice, int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, 0, &APIError{Kind: KindUpstream, Code: "empty_body", Message: "empty response body"}
	}

	if trimmed[0] == '<' {
		var fault xmlFault
		if err := xml.Unmarshal(trimmed, &fault); err != nil {
			return nil, 0, &APIError{Kind: KindUnknown, Code: "xml", Message: fmt.Sprintf("undecodable XML response: %v", err)}
		}
		return nil, 0, errorForCode(fault.Header.ReasonCode, cmp.Or(fault.Header.AuthMsg, fault.Header.ErrMsg))
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, 0, &APIError{Kind: KindUnknown, Code: "json", Message: fmt.Sprintf("undecodable JSON response: %v", err)}
	}

	header := env.Response.Header
	switch header.ResultCode {
	case codeNormal, "":
	case codeNoData:
		return nil, 0, nil
	default:
		return nil, 0, errorForCode(header.ResultCode, header.ResultMsg)
	}

	apiItems := env.Response.Body.Items.Items()
	raws := make([]bid.RawNotice, 0, len(apiItems))
	for _, item := range apiItems {
		raws = append(raws, item.toRaw())
	}
	return raws, int(env.Response.Body.TotalCount), nil
}

func (i apiItem) toRaw() bid.RawNotice {
	return bid.RawNotice{
		NoticeID:         string(i.BidNtceNo),
		Order:            string(i.BidNtceOrd),
		Title:            string(i.BidNtceNm),
		Agency:           string(i.NtceInsttNm),
		DemandAgency:     string(i.DminsttNm),
		Region:           string(i.PrtcptPsblRgnNm),
		RegionFallback:   string(i.JntcontrctDutyRgnNm1),
		Category:         string(i.PubPrcrmntClsfcNm),
		CategoryFallback: string(i.SrvceDivNm),
		Budget:           string(i.AsignBdgtAmt),
		BudgetFallback:   string(i.PresmptPrce),
		Deadline:         string(i.BidClseDt),
		DetailURL:        string(i.BidNtceDtlUrl),
		NoticeURL:        string(i.BidNtceUrl),
		PublishedAt:      string(i.BidNtceDt),
	}
}

// decodeServiceKey accepts either the raw key or the URL-encoded form the
// portal also issues, so it is not encoded twice.
func decodeServiceKey(key string) string {
	key = strings.TrimSpace(key)
	if !strings.Contains(key, "%") {
		return key
	}
	if decoded, err := url.QueryUnescape(key); err == nil {
		return decoded
	}
	return key
}
