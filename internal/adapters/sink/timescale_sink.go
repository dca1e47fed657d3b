package sink

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ghalamif/tempflow/internal/domain"
	"github.com/ghalamif/tempflow/internal/ports"
)

// TimescaleSink stores temperature samples in a hypertable with the columns
// (sensor_id, ts, degrees, writer_id, seq).
type TimescaleSink struct {
	db        *sql.DB
	tableName string
	obs       ports.Observability
}

func NewTimescaleSink(db *sql.DB, table string, obs ports.Observability) *TimescaleSink {
	return &TimescaleSink{db: db, tableName: table, obs: obs}
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

// WriteBatch inserts every record that decodes as a Temperature. Records that
// do not decode are skipped and logged.
func (t *TimescaleSink) WriteBatch(records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (sensor_id, ts, degrees, writer_id, seq) VALUES ")

	args := make([]any, 0, len(records)*5)
	for _, rec := range records {
		if !rec.Valid {
			continue
		}
		temp, err := domain.DecodeTemperature(rec.Payload)
		if err != nil {
			if t.obs != nil {
				t.obs.LogError("timescale_skip_record", err,
					ports.Field{Key: "topic", Value: rec.Topic},
					ports.Field{Key: "seq", Value: rec.Seq})
			}
			continue
		}
		if len(args) > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5))

		ts := temp.Timestamp
		if ts.IsZero() {
			ts = rec.ReceivedAt
		}
		args = append(args, temp.SensorID, ts, temp.Degrees, rec.WriterID, rec.Seq)
	}
	if len(args) == 0 {
		return nil
	}

	b.WriteString(" ON CONFLICT (sensor_id, ts, writer_id, seq) DO NOTHING")

	_, err := t.db.Exec(b.String(), args...)
	return err
}

var _ ports.Sink = (*TimescaleSink)(nil)
