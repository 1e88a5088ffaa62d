package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/gcp"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
)

const metadataCheckTimeout = 10 * time.Second

var (
	errDatasetRequired      = errors.New("bigquery: dataset is required")
	errTableNameRequired    = errors.New("bigquery: table name is required")
	errClientNotInitialized = errors.New("bigquery: client not initialized")
)

type Pinger interface {
	Ping(context.Context) error
}

// Client streams order analytics rows into one dataset. Tables are
// provisioned outside the service.
type Client struct {
	bq          *bigquery.Client
	dataset     *bigquery.Dataset
	eventsTable string
}

func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID, err := gcp.ProjectID(gcpCfg)
	if err != nil {
		return nil, err
	}
	datasetID, table := strings.TrimSpace(cfg.Dataset), strings.TrimSpace(cfg.OrderEventsTable)
	switch {
	case datasetID == "":
		return nil, errDatasetRequired
	case table == "":
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: connect to %s: %w", projectID, err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(datasetID), eventsTable: table}

	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"gcp_project": projectID,
			"dataset":     datasetID,
			"table":       table,
		}), "bigquery ready")
	}
	return c, nil
}

func (c *Client) ready() bool {
	return c != nil && c.dataset != nil
}

// OrderEventsTable is the table order events are streamed into.
func (c *Client) OrderEventsTable() string {
	if c == nil {
		return ""
	}
	return c.eventsTable
}

// Ping reads the dataset and events table metadata.
func (c *Client) Ping(ctx context.Context) error {
	if !c.ready() {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataCheckTimeout)
	defer cancel()

	checks := []struct {
		kind, name string
		fetch      func(context.Context) error
	}{
		{"dataset", c.dataset.DatasetID, func(ctx context.Context) error {
			_, err := c.dataset.Metadata(ctx)
			return err
		}},
		{"table", c.eventsTable, func(ctx context.Context) error {
			_, err := c.dataset.Table(c.eventsTable).Metadata(ctx)
			return err
		}},
	}
	for _, check := range checks {
		if err := check.fetch(ctx); err != nil {
			return describeMetadataErr(check.kind, check.name, err)
		}
	}
	return nil
}

// InsertRows streams rows into table. An empty batch is a no-op.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if !c.ready() {
		return errClientNotInitialized
	}
	if table = strings.TrimSpace(table); table == "" {
		return errTableNameRequired
	}
	if len(rows) == 0 {
		return nil
	}
	if err := c.dataset.Table(table).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("bigquery: insert %d rows into %s: %w", len(rows), table, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func describeMetadataErr(kind, name string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
