package partition

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/arkilian/drilldown/pkg/types"
)

// Format selects the Arrow IPC framing.
type Format int

const (
	// FormatFile writes the random-access file format used for shards.
	FormatFile Format = iota
	// FormatStream writes the streaming format.
	FormatStream
)

var factSchema = arrow.NewSchema([]arrow.Field{
	{Name: types.FieldDate, Type: arrow.FixedWidthTypes.Date32},
	{Name: types.FieldAdvertiserID, Type: arrow.BinaryTypes.String},
	{Name: types.FieldCampaignID, Type: arrow.BinaryTypes.String},
	{Name: types.FieldCampaignType, Type: arrow.BinaryTypes.String},
	{Name: types.FieldAdSetID, Type: arrow.BinaryTypes.String},
	{Name: types.FieldAdID, Type: arrow.BinaryTypes.String},
	{Name: types.FieldImpressions, Type: arrow.PrimitiveTypes.Float64},
	{Name: types.FieldClicks, Type: arrow.PrimitiveTypes.Float64},
	{Name: types.FieldCost, Type: arrow.PrimitiveTypes.Float64},
	{Name: types.FieldConversions, Type: arrow.PrimitiveTypes.Float64},
	{Name: types.FieldGMV, Type: arrow.PrimitiveTypes.Float64},
}, nil)

var eventSchema = arrow.NewSchema([]arrow.Field{
	{Name: types.FieldTS, Type: arrow.FixedWidthTypes.Timestamp_us},
	{Name: types.FieldUserID, Type: arrow.BinaryTypes.String},
	{Name: types.FieldSKUID, Type: arrow.BinaryTypes.String},
	{Name: types.FieldEventType, Type: arrow.BinaryTypes.String},
	{Name: types.FieldCampaignID, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: types.FieldAdSetID, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: types.FieldAdID, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: types.FieldAttrs, Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// EncodeFacts writes rows as a single record batch.
func EncodeFacts(w io.Writer, rows []types.FactRow, format Format) error {
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, factSchema)
	defer b.Release()

	date := b.Field(0).(*array.Date32Builder)
	ids := make([]*array.StringBuilder, 5)
	for i := range ids {
		ids[i] = b.Field(1 + i).(*array.StringBuilder)
	}
	measures := make([]*array.Float64Builder, 5)
	for i := range measures {
		measures[i] = b.Field(6 + i).(*array.Float64Builder)
	}

	for _, r := range rows {
		date.Append(arrow.Date32FromTime(types.Day(r.Date)))
		for i, v := range []string{r.AdvertiserID, r.CampaignID, r.CampaignType, r.AdSetID, r.AdID} {
			ids[i].Append(v)
		}
		for i, v := range []float64{r.Impressions, r.Clicks, r.Cost, r.Conversions, r.GMV} {
			measures[i].Append(v)
		}
	}

	rec := b.NewRecord()
	defer rec.Release()
	return writeRecord(w, mem, factSchema, rec, format)
}

// EncodeEvents writes event rows as a single record batch. Empty
// attribution and attrs values are written as nulls.
func EncodeEvents(w io.Writer, rows []types.EventRow, format Format) error {
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, eventSchema)
	defer b.Release()

	ts := b.Field(0).(*array.TimestampBuilder)
	cols := make([]*array.StringBuilder, 7)
	for i := range cols {
		cols[i] = b.Field(1 + i).(*array.StringBuilder)
	}

	for _, r := range rows {
		ts.Append(arrow.Timestamp(r.TS.UnixMicro()))
		for i, v := range []string{r.UserID, r.SKUID, r.EventType} {
			cols[i].Append(v)
		}
		for i, v := range []string{r.CampaignID, r.AdSetID, r.AdID, r.Attrs} {
			if v == "" {
				cols[3+i].AppendNull()
				continue
			}
			cols[3+i].Append(v)
		}
	}

	rec := b.NewRecord()
	defer rec.Release()
	return writeRecord(w, mem, eventSchema, rec, format)
}

func writeRecord(w io.Writer, mem memory.Allocator, schema *arrow.Schema, rec arrow.Record, format Format) error {
	switch format {
	case FormatFile:
		fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
		if err != nil {
			return fmt.Errorf("create arrow file writer: %w", err)
		}
		if err := fw.Write(rec); err != nil {
			fw.Close()
			return fmt.Errorf("write record: %w", err)
		}
		return fw.Close()
	case FormatStream:
		sw := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
		if err := sw.Write(rec); err != nil {
			sw.Close()
			return fmt.Errorf("write record: %w", err)
		}
		return sw.Close()
	}
	return fmt.Errorf("unknown format %d", format)
}
