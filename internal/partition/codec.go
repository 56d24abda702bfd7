package partition

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/arkilian/drilldown/pkg/types"
)

// fileMagic opens every Arrow IPC file; streams start with a message.
var fileMagic = []byte("ARROW1")

// forEachRecord calls fn for every record batch of an Arrow IPC file or
// stream held in data. Records are only valid during fn.
func forEachRecord(data []byte, fn func(arrow.Record) (bool, error)) error {
	mem := memory.NewGoAllocator()

	if bytes.HasPrefix(data, fileMagic) {
		fr, err := ipc.NewFileReader(bytes.NewReader(data), ipc.WithAllocator(mem))
		if err != nil {
			return fmt.Errorf("open arrow file: %w", err)
		}
		defer fr.Close()
		for i := 0; i < fr.NumRecords(); i++ {
			rec, err := fr.Record(i)
			if err != nil {
				return fmt.Errorf("read record %d: %w", i, err)
			}
			more, err := fn(rec)
			if err != nil || !more {
				return err
			}
		}
		return nil
	}

	rdr, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("open arrow stream: %w", err)
	}
	defer rdr.Release()
	for rdr.Next() {
		more, err := fn(rdr.Record())
		if err != nil || !more {
			return err
		}
	}
	if err := rdr.Err(); err != nil {
		return fmt.Errorf("read arrow stream: %w", err)
	}
	return nil
}

// column reads one named column with lenient type conversion. Wide
// integers, decimals and dictionary-encoded values are narrowed to the Go
// type the row needs.
type column struct {
	name string
	arr  arrow.Array
}

func lookup(rec arrow.Record, name string, required bool) (*column, error) {
	idx := rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		if required {
			return nil, fmt.Errorf("missing column %q", name)
		}
		return nil, nil
	}
	return &column{name: name, arr: rec.Column(idx[0])}, nil
}

func (c *column) str(i int) (string, error) {
	if c == nil || c.arr.IsNull(i) {
		return "", nil
	}
	return stringValue(c.name, c.arr, i)
}

func stringValue(name string, arr arrow.Array, i int) (string, error) {
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i), nil
	case *array.LargeString:
		return a.Value(i), nil
	case *array.Binary:
		return string(a.Value(i)), nil
	case *array.Dictionary:
		return stringValue(name, a.Dictionary(), a.GetValueIndex(i))
	case *array.Int64:
		return strconv.FormatInt(a.Value(i), 10), nil
	case *array.Uint64:
		return strconv.FormatUint(a.Value(i), 10), nil
	case *array.Int8, *array.Int16, *array.Int32,
		*array.Uint8, *array.Uint16, *array.Uint32,
		*array.Float32, *array.Float64:
		v, err := floatValue(name, arr, i)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("column %q: unsupported type %s for text", name, arr.DataType())
}

func (c *column) float(i int) (float64, error) {
	if c == nil || c.arr.IsNull(i) {
		return 0, nil
	}
	return floatValue(c.name, c.arr, i)
}

func floatValue(name string, arr arrow.Array, i int) (float64, error) {
	switch a := arr.(type) {
	case *array.Float64:
		return a.Value(i), nil
	case *array.Float32:
		return float64(a.Value(i)), nil
	case *array.Int8:
		return float64(a.Value(i)), nil
	case *array.Int16:
		return float64(a.Value(i)), nil
	case *array.Int32:
		return float64(a.Value(i)), nil
	case *array.Int64:
		return float64(a.Value(i)), nil
	case *array.Uint8:
		return float64(a.Value(i)), nil
	case *array.Uint16:
		return float64(a.Value(i)), nil
	case *array.Uint32:
		return float64(a.Value(i)), nil
	case *array.Uint64:
		return float64(a.Value(i)), nil
	case *array.Decimal128:
		dt := a.DataType().(*arrow.Decimal128Type)
		return a.Value(i).ToFloat64(dt.Scale), nil
	case *array.Boolean:
		if a.Value(i) {
			return 1, nil
		}
		return 0, nil
	case *array.String, *array.LargeString, *array.Dictionary:
		s, err := stringValue(name, arr, i)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("column %q: %q is not a number", name, s)
		}
		return v, nil
	}
	return 0, fmt.Errorf("column %q: unsupported type %s for number", name, arr.DataType())
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (c *column) timestamp(i int) (time.Time, error) {
	if c == nil || c.arr.IsNull(i) {
		return time.Time{}, nil
	}
	switch a := c.arr.(type) {
	case *array.Date32:
		return a.Value(i).ToTime(), nil
	case *array.Date64:
		return a.Value(i).ToTime(), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC(), nil
	case *array.Int64:
		return time.UnixMilli(a.Value(i)).UTC(), nil
	case *array.String, *array.LargeString, *array.Dictionary:
		s, err := stringValue(c.name, c.arr, i)
		if err != nil {
			return time.Time{}, err
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("column %q: %q is not a date", c.name, s)
	}
	return time.Time{}, fmt.Errorf("column %q: unsupported type %s for time", c.name, c.arr.DataType())
}

// DecodeFacts decodes an ads shard.
func DecodeFacts(data []byte) ([]types.FactRow, error) {
	rows := []types.FactRow{}
	err := forEachRecord(data, func(rec arrow.Record) (bool, error) {
		cols := make(map[string]*column, 11)
		for _, name := range []string{
			types.FieldDate, types.FieldAdvertiserID, types.FieldCampaignID, types.FieldCampaignType,
			types.FieldAdSetID, types.FieldAdID, types.FieldImpressions, types.FieldClicks,
			types.FieldCost, types.FieldConversions, types.FieldGMV,
		} {
			c, err := lookup(rec, name, true)
			if err != nil {
				return false, err
			}
			cols[name] = c
		}

		n := int(rec.NumRows())
		for i := 0; i < n; i++ {
			var (
				r   types.FactRow
				err error
			)
			d, err := cols[types.FieldDate].timestamp(i)
			if err != nil {
				return false, err
			}
			r.Date = types.Day(d)
			for _, f := range []struct {
				name string
				dst  *string
			}{
				{types.FieldAdvertiserID, &r.AdvertiserID},
				{types.FieldCampaignID, &r.CampaignID},
				{types.FieldCampaignType, &r.CampaignType},
				{types.FieldAdSetID, &r.AdSetID},
				{types.FieldAdID, &r.AdID},
			} {
				if *f.dst, err = cols[f.name].str(i); err != nil {
					return false, err
				}
			}
			for _, f := range []struct {
				name string
				dst  *float64
			}{
				{types.FieldImpressions, &r.Impressions},
				{types.FieldClicks, &r.Clicks},
				{types.FieldCost, &r.Cost},
				{types.FieldConversions, &r.Conversions},
				{types.FieldGMV, &r.GMV},
			} {
				if *f.dst, err = cols[f.name].float(i); err != nil {
					return false, err
				}
			}
			rows = append(rows, r)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DecodeEvents decodes the event log, stopping after limit rows when
// limit is positive. Attribution and attrs columns are optional.
func DecodeEvents(data []byte, limit int) ([]types.EventRow, error) {
	rows := []types.EventRow{}
	err := forEachRecord(data, func(rec arrow.Record) (bool, error) {
		cols := make(map[string]*column, 8)
		for _, want := range []struct {
			name     string
			required bool
		}{
			{types.FieldTS, true},
			{types.FieldUserID, true},
			{types.FieldSKUID, true},
			{types.FieldEventType, true},
			{types.FieldCampaignID, false},
			{types.FieldAdSetID, false},
			{types.FieldAdID, false},
			{types.FieldAttrs, false},
		} {
			c, err := lookup(rec, want.name, want.required)
			if err != nil {
				return false, err
			}
			cols[want.name] = c
		}

		n := int(rec.NumRows())
		for i := 0; i < n; i++ {
			if limit > 0 && len(rows) >= limit {
				return false, nil
			}
			var (
				r   types.EventRow
				err error
			)
			if r.TS, err = cols[types.FieldTS].timestamp(i); err != nil {
				return false, err
			}
			for _, f := range []struct {
				name string
				dst  *string
			}{
				{types.FieldUserID, &r.UserID},
				{types.FieldSKUID, &r.SKUID},
				{types.FieldEventType, &r.EventType},
				{types.FieldCampaignID, &r.CampaignID},
				{types.FieldAdSetID, &r.AdSetID},
				{types.FieldAdID, &r.AdID},
				{types.FieldAttrs, &r.Attrs},
			} {
				if *f.dst, err = cols[f.name].str(i); err != nil {
					return false, err
				}
			}
			rows = append(rows, r)
		}
		return limit <= 0 || len(rows) < limit, nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
