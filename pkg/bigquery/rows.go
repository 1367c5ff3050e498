package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// SettlementRow is one terminal payout as exported for finance reporting.
type SettlementRow struct {
	PayoutID        string
	GroupID         string
	RecipientID     string
	CycleNumber     int
	Mode            string
	Status          string
	Currency        string
	GrossAmount     int64
	FeeAmount       int64
	NetAmount       int64
	ChargeID        string
	FailureCategory string
	ScheduledDate   time.Time
	ProcessedAt     *time.Time
	UpdatedAt       time.Time
}

// SettlementSchema is the table layout written by SettlementRow.Save.
func SettlementSchema() bigquery.Schema {
	required := func(name string, typ bigquery.FieldType) *bigquery.FieldSchema {
		return &bigquery.FieldSchema{Name: name, Type: typ, Required: true}
	}
	optional := func(name string, typ bigquery.FieldType) *bigquery.FieldSchema {
		return &bigquery.FieldSchema{Name: name, Type: typ}
	}
	return bigquery.Schema{
		required("payout_id", bigquery.StringFieldType),
		required("group_id", bigquery.StringFieldType),
		required("recipient_id", bigquery.StringFieldType),
		required("cycle_number", bigquery.IntegerFieldType),
		required("mode", bigquery.StringFieldType),
		required("status", bigquery.StringFieldType),
		required("currency", bigquery.StringFieldType),
		required("gross_amount", bigquery.IntegerFieldType),
		required("fee_amount", bigquery.IntegerFieldType),
		required("net_amount", bigquery.IntegerFieldType),
		optional("charge_id", bigquery.StringFieldType),
		optional("failure_category", bigquery.StringFieldType),
		required("scheduled_date", bigquery.DateFieldType),
		optional("processed_at", bigquery.TimestampFieldType),
		required("updated_at", bigquery.TimestampFieldType),
	}
}

// Save implements bigquery.ValueSaver.
func (r SettlementRow) Save() (map[string]bigquery.Value, string, error) {
	row := map[string]bigquery.Value{
		"payout_id":      r.PayoutID,
		"group_id":       r.GroupID,
		"recipient_id":   r.RecipientID,
		"cycle_number":   r.CycleNumber,
		"mode":           r.Mode,
		"status":         r.Status,
		"currency":       r.Currency,
		"gross_amount":   r.GrossAmount,
		"fee_amount":     r.FeeAmount,
		"net_amount":     r.NetAmount,
		"scheduled_date": r.ScheduledDate.UTC().Format("2006-01-02"),
		"updated_at":     r.UpdatedAt.UTC(),
	}
	if r.ChargeID != "" {
		row["charge_id"] = r.ChargeID
	}
	if r.FailureCategory != "" {
		row["failure_category"] = r.FailureCategory
	}
	if r.ProcessedAt != nil {
		row["processed_at"] = r.ProcessedAt.UTC()
	}
	return row, r.PayoutID + ":" + r.Status, nil
}
