package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// LoadCandlesCSV reads candles from a CSV file with a header row of
// timestamp,open,high,low,close,volume. Timestamps are RFC 3339.
func LoadCandlesCSV(path string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("market: open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if _, err := reader.Read(); err != nil { // header
		return nil, fmt.Errorf("market: read csv header: %w", err)
	}

	var candles []Candle
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("market: read csv row %d: %w", len(candles)+2, err)
		}
		if len(record) < 5 {
			return nil, fmt.Errorf("market: csv row %d has %d fields, want at least 5", len(candles)+2, len(record))
		}

		ts, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			return nil, fmt.Errorf("market: csv row %d timestamp: %w", len(candles)+2, err)
		}

		c := Candle{Timestamp: ts.UTC()}
		for i, dst := range []*float64{&c.Open, &c.High, &c.Low, &c.Close} {
			v, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("market: csv row %d field %d: %w", len(candles)+2, i+1, err)
			}
			*dst = v
		}
		if len(record) > 5 {
			c.Volume, _ = strconv.ParseFloat(record[5], 64)
		}
		candles = append(candles, c)
	}
	return candles, nil
}
