// Package archiveapi implements the historical-API DataSource of spec.md
// §4.6: it queries a REST archive and shapes the response into the same
// canonical (timestamp, topic, data) triples the recorded-directory source
// produces, sorted by timestamp, paginating per SPEC_FULL.md §2's
// offset-cursor supplement (the wire format of the archive itself is out of
// scope per spec.md §1; only that pagination exists for any season replay
// spanning more than one response page).
package archiveapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/heytcass/f12mqtt/datasource"
	"github.com/heytcass/f12mqtt/model"
)

// pageSize is the number of entries requested per page.
const pageSize = 500

type page struct {
	Entries []rawEntry `json:"entries"`
	Total   int        `json:"total"`
}

type rawEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Topic     string    `json:"topic"`
	Data      any       `json:"data"`
}

// Archive is a DataSource backed by the historical REST API.
type Archive struct {
	baseURL string
	client  *http.Client
}

var _ datasource.DataSource = (*Archive)(nil)

// New returns an Archive client targeting baseURL.
func New(baseURL string, client *http.Client) *Archive {
	if client == nil {
		client = http.DefaultClient
	}
	return &Archive{baseURL: baseURL, client: client}
}

// InitialState is unsupported by the historical API: the archive's first
// page is taken as the starting point instead, so there is no separate
// "subscribe" snapshot to fetch.
func (a *Archive) InitialState(context.Context) (*model.Snapshot, error) {
	return nil, nil
}

// TimeRange is unknown ahead of a full fetch; callers needing it should
// inspect the Stream result instead.
func (a *Archive) TimeRange(context.Context) (*datasource.TimeRange, error) {
	return nil, nil
}

// Stream fetches every page of entries at or after from, following the
// offset-cursor pagination contract, and returns them sorted by timestamp.
func (a *Archive) Stream(ctx context.Context, from time.Time, _ float64) ([]model.Entry, error) {
	var all []rawEntry
	offset := 0
	for {
		p, err := a.fetchPage(ctx, from, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Entries...)
		offset += len(p.Entries)
		if len(p.Entries) < pageSize || offset >= p.Total {
			break
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })

	out := make([]model.Entry, len(all))
	for i, e := range all {
		out[i] = model.Entry{Timestamp: e.Timestamp, Topic: e.Topic, Data: e.Data}
	}
	return out, nil
}

func (a *Archive) fetchPage(ctx context.Context, from time.Time, offset int) (*page, error) {
	u, err := url.Parse(a.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse archive base URL: %w", err)
	}
	q := u.Query()
	q.Set("since", from.UTC().Format(time.RFC3339))
	q.Set("offset", strconv.Itoa(offset))
	q.Set("limit", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build archive request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("archive request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("archive returned %d", resp.StatusCode)
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode archive page: %w", err)
	}
	return &p, nil
}

// Close is a no-op: the Archive holds no persistent connection.
func (a *Archive) Close() error { return nil }
