// Package opendata fetches job offers from an Opendatasoft records API.
package opendata

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openjobs/jobmatch/internal/jobs"
)

const (
	DefaultAPIURL    = "https://www.odwb.be/api/explore/v2.1"
	DefaultDataset   = "offres-d-emploi-forem"
	DefaultUserAgent = "openjobs/jobmatch (+https://github.com/openjobs/jobmatch)"

	// DefaultMaxRecords caps a search when the caller sets no limit.
	DefaultMaxRecords = 500
	// IDField is the record field holding the offer number.
	IDField = "numerooffre"

	recordsPath = "/catalog/datasets/%s/records"
)

type Client struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	UserAgent  string
	APIURL     string
	Dataset    string
}

func New(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		APIURL:  DefaultAPIURL,
		Dataset: DefaultDataset,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger:    logger,
		UserAgent: DefaultUserAgent,
	}
}

// Search returns the offers matching params, fetching as many pages as
// needed up to params.MaxRecords.
func (c *Client) Search(ctx context.Context, params *SearchParams) (*jobs.Jobs, error) {
	if params == nil {
		params = &SearchParams{}
	}

	limit := params.MaxRecords
	if limit <= 0 {
		limit = DefaultMaxRecords
	}

	records, err := c.GetRecords(ctx, c.recordsURL(), buildParams(params), limit)
	if err != nil {
		return nil, fmt.Errorf("search dataset %s: %w", c.Dataset, err)
	}

	list := jobs.FromRecords(records)
	c.logger.Debug("offers fetched", zap.Int("count", list.Len()))
	return list, nil
}

// FindByID returns the offer with the given number, or nil when the dataset
// has none.
func (c *Client) FindByID(ctx context.Context, id string) (*jobs.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("offer id is required")
	}

	params := &SearchParams{Where: fmt.Sprintf("%s=%s", IDField, quote(id))}
	records, err := c.GetRecords(ctx, c.recordsURL(), buildParams(params), 1)
	if err != nil {
		return nil, fmt.Errorf("get offer %s: %w", id, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return jobs.FromRecord(records[0]), nil
}

func (c *Client) recordsURL() string {
	return strings.TrimRight(c.APIURL, "/") + fmt.Sprintf(recordsPath, c.Dataset)
}
