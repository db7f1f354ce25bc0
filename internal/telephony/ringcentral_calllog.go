package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const rcTimeLayout = "2006-01-02T15:04:05.000Z"

type callLogPage struct {
	Records    []CallLogRecord `json:"records"`
	Paging     paging          `json:"paging"`
	Navigation navigation      `json:"navigation"`
}

type paging struct {
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	PerPage    int `json:"perPage"`
}

type navigation struct {
	NextPage *struct {
		URI string `json:"uri"`
	} `json:"nextPage,omitempty"`
}

// FetchCallLogs pages through the call log by page number until the provider stops
// advertising a next page. A throttled page is retried in place after the suggested
// delay, RateLimitRetries times at most; every other error aborts the fetch.
func (c *RingCentral) FetchCallLogs(ctx context.Context, q CallLogQuery) ([]CallLogRecord, error) {
	if !q.DateTo.IsZero() && !q.DateFrom.IsZero() && !q.DateTo.After(q.DateFrom) {
		return nil, fmt.Errorf("ringcentral: dateTo must be after dateFrom")
	}

	path := "/restapi/v1.0/account/~/call-log"
	if q.ExtensionID != "" {
		path = "/restapi/v1.0/account/~/extension/" + url.PathEscape(q.ExtensionID) + "/call-log"
	}

	var out []CallLogRecord
	for page := 1; ; page++ {
		p, err := c.fetchCallLogPage(ctx, path, q, page)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Records...)
		if p.Navigation.NextPage == nil || len(p.Records) == 0 {
			break
		}
	}
	c.log.Debug("call log fetched", "records", len(out), "extension_id", q.ExtensionID)
	return out, nil
}

func (c *RingCentral) fetchCallLogPage(ctx context.Context, path string, q CallLogQuery, page int) (callLogPage, error) {
	query := url.Values{}
	if !q.DateFrom.IsZero() {
		query.Set("dateFrom", q.DateFrom.UTC().Format(rcTimeLayout))
	}
	if !q.DateTo.IsZero() {
		query.Set("dateTo", q.DateTo.UTC().Format(rcTimeLayout))
	}
	query.Set("type", "Voice")
	query.Set("view", "Detailed")
	query.Set("page", strconv.Itoa(page))
	query.Set("perPage", strconv.Itoa(c.opts.PageSize))

	for attempt := 0; ; attempt++ {
		var p callLogPage
		err := c.getJSON(ctx, path, query, &p)
		if err == nil {
			return p, nil
		}

		var rl *RateLimitError
		if !errors.As(err, &rl) {
			return callLogPage{}, fmt.Errorf("ringcentral: fetch call log page %d: %w", page, err)
		}
		if attempt >= c.opts.RateLimitRetries {
			return callLogPage{}, fmt.Errorf("ringcentral: call log page %d still rate limited after %d retries: %w", page, c.opts.RateLimitRetries, err)
		}

		wait := rl.RetryAfter
		if wait <= 0 {
			wait = c.opts.RateLimitDelay
		}
		c.log.Warn("call log rate limited, waiting", "page", page, "attempt", attempt+1, "wait", wait.String())
		if err := c.sleep(ctx, wait); err != nil {
			return callLogPage{}, err
		}
	}
}

type extensionPage struct {
	Records    []Extension `json:"records"`
	Navigation navigation  `json:"navigation"`
}

// ListExtensions returns every extension on the account.
func (c *RingCentral) ListExtensions(ctx context.Context) ([]Extension, error) {
	var out []Extension
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("page", strconv.Itoa(page))
		query.Set("perPage", strconv.Itoa(c.opts.PageSize))

		var p extensionPage
		if err := c.getJSON(ctx, "/restapi/v1.0/account/~/extension", query, &p); err != nil {
			return nil, fmt.Errorf("ringcentral: list extensions: %w", err)
		}
		out = append(out, p.Records...)
		if p.Navigation.NextPage == nil || len(p.Records) == 0 {
			return out, nil
		}
	}
}

// FetchRecordingContent downloads recording audio from the media host.
func (c *RingCentral) FetchRecordingContent(ctx context.Context, recordingID string) ([]byte, error) {
	if recordingID == "" {
		return nil, fmt.Errorf("ringcentral: recording id is required")
	}
	body, err := c.do(ctx, http.MethodGet, c.opts.MediaURL, recordingContentPath(recordingID), nil, "", nil)
	if err != nil {
		return nil, fmt.Errorf("ringcentral: fetch recording %s: %w", recordingID, err)
	}
	return body, nil
}

func recordingContentPath(recordingID string) string {
	return "/restapi/v1.0/account/~/recording/" + url.PathEscape(recordingID) + "/content"
}

// DefaultWindow is the last 24 hours ending at now.
func DefaultWindow(now time.Time) (time.Time, time.Time) {
	return now.Add(-24 * time.Hour), now
}
