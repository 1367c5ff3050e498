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

	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/gcpauth"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
)

const (
	metadataTimeout = 10 * time.Second
	// streaming inserts above this size are rejected by the API
	maxRowsPerPut = 500
)

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errDatasetRequired      = errors.New("bigquery dataset is required")
	errTableNameRequired    = errors.New("bigquery settlement table is required")
	errClientNotInitialized = errors.New("bigquery client not initialized")
)

type putter interface {
	Put(ctx context.Context, src any) error
}

// Client streams settlement rows into one table of the configured dataset.
type Client struct {
	bq       *bigquery.Client
	table    *bigquery.Table
	inserter putter
}

// NewClient connects and checks the settlement table. A missing table is
// created, day-partitioned on scheduled_date, when cfg.CreateTable is set.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	tableID := strings.TrimSpace(cfg.SettlementTable)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case datasetID == "":
		return nil, errDatasetRequired
	case tableID == "":
		return nil, errTableNameRequired
	}

	bq, err := bigquery.NewClient(ctx, projectID, gcpauth.ClientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	table := bq.Dataset(datasetID).Table(tableID)
	c := &Client{bq: bq, table: table, inserter: table.Inserter()}

	created, err := c.ensureTable(ctx, cfg.CreateTable)
	if err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"dataset":       datasetID,
			"table":         tableID,
			"table_created": created,
		}), "bigquery client initialized")
	}
	return c, nil
}

func (c *Client) ensureTable(ctx context.Context, create bool) (bool, error) {
	err := c.Ping(ctx)
	if err == nil || !create || !errors.Is(err, errTableMissing) {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	meta := &bigquery.TableMetadata{
		Schema: SettlementSchema(),
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "scheduled_date",
		},
		Clustering: &bigquery.Clustering{Fields: []string{"group_id", "status"}},
	}
	if err := c.table.Create(ctx, meta); err != nil {
		return false, fmt.Errorf("creating table %q: %w", c.table.TableID, err)
	}
	return true, nil
}

var errTableMissing = errors.New("settlement table does not exist")

// Ping checks that the settlement table is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.table == nil {
		return errClientNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := c.table.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s.%s", errTableMissing, c.table.DatasetID, c.table.TableID)
		}
		return fmt.Errorf("checking table %s.%s: %w", c.table.DatasetID, c.table.TableID, err)
	}
	return nil
}

// InsertSettlements streams rows in chunks the API accepts. Each row's insert
// id is payout id and status, so re-exporting an overlapping window does not
// duplicate rows.
func (c *Client) InsertSettlements(ctx context.Context, rows []SettlementRow) error {
	if c == nil || c.inserter == nil {
		return errClientNotInitialized
	}
	for start := 0; start < len(rows); start += maxRowsPerPut {
		end := min(start+maxRowsPerPut, len(rows))
		chunk := make([]bigquery.ValueSaver, 0, end-start)
		for _, row := range rows[start:end] {
			chunk = append(chunk, row)
		}
		if err := c.inserter.Put(ctx, chunk); err != nil {
			return describePutError(err, start, end-start)
		}
	}
	return nil
}

func describePutError(err error, offset, size int) error {
	var multi bigquery.PutMultiError
	if errors.As(err, &multi) && len(multi) > 0 {
		first := multi[0]
		return fmt.Errorf("insert settlement rows: %d of %d rejected, first at row %d: %w",
			len(multi), size, offset+first.RowIndex, first.Errors)
	}
	return fmt.Errorf("insert %d settlement rows at offset %d: %w", size, offset, err)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
