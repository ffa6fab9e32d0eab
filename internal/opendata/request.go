package opendata

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

const (
	contentType     = "application/json"
	contentEncoding = "gzip"

	// pageLimit is the largest page the API serves.
	pageLimit = 100
	// maxWindow bounds offset+limit on the records endpoint.
	maxWindow = 10000
)

type RecordResponse struct {
	TotalCount int              `json:"total_count"`
	Results    []map[string]any `json:"results"`
}

// GetRecords pages through a records endpoint with limit/offset until it has
// maxRecords records, the dataset is exhausted or the API window ends.
func (c *Client) GetRecords(ctx context.Context, rawURL string, q url.Values, maxRecords int) ([]map[string]any, error) {
	var records []map[string]any

	for offset := 0; len(records) < maxRecords && offset < maxWindow; {
		limit := min(pageLimit, maxRecords-len(records), maxWindow-offset)

		page := cloneValues(q)
		page.Set("limit", strconv.Itoa(limit))
		page.Set("offset", strconv.Itoa(offset))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req = c.setHeaders(req)
		req.URL.RawQuery = page.Encode()

		resp, err := c.request(req)
		if err != nil {
			return nil, err
		}

		response, err := c.parseRecordResponse(resp)
		if err != nil {
			return nil, err
		}

		records = append(records, response.Results...)
		offset += len(response.Results)

		c.logger.Debug("got records page",
			zap.Int("offset", offset),
			zap.Int("page_size", len(response.Results)),
			zap.Int("total_count", response.TotalCount),
		)

		if len(response.Results) < limit || offset >= response.TotalCount {
			break
		}
	}

	if len(records) > maxRecords {
		records = records[:maxRecords]
	}
	return records, nil
}

func (c *Client) parseRecordResponse(resp *http.Response) (*RecordResponse, error) {
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		body = gz
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(body).Decode(&apiErr)
		if apiErr.Message != "" {
			return nil, fmt.Errorf("bad status: %s: %s", resp.Status, apiErr.Message)
		}
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var response RecordResponse
	if err := json.NewDecoder(body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}

	return &response, nil
}

func (c *Client) request(req *http.Request) (*http.Response, error) {
	c.logger.Debug("make request", zap.String("url", req.URL.String()))
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) *http.Request {
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", contentType)
	req.Header.Set("Accept-Encoding", contentEncoding)

	return req
}

func cloneValues(q url.Values) url.Values {
	out := make(url.Values, len(q)+2)
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
