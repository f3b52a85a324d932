package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ledgerline/ledgerlog/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exportRow struct {
	ID      string         `json:"id"`
	Message string         `json:"message"`
	Count   int            `json:"count"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func TestWriteCSVQuotesAndOrdersHeader(t *testing.T) {
	records := []any{
		exportRow{ID: "e1", Message: `amount "10,5" rejected`, Count: 2, Meta: map[string]any{"k": "v"}},
		exportRow{ID: "e2", Message: "plain", Count: 3},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "id,message,count,meta", lines[0])
	assert.Equal(t, `e1,"amount ""10,5"" rejected",2,"{""k"":""v""}"`, lines[1])

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, `amount "10,5" rejected`, rows[1][1])
	assert.Equal(t, "", rows[2][3])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Empty(t, buf.String())
}

func TestParseExportType(t *testing.T) {
	for _, raw := range []string{"api", "errors", "ACTIVITIES"} {
		_, ok := ParseExportType(raw)
		assert.True(t, ok, raw)
	}
	_, ok := ParseExportType("frontend")
	assert.False(t, ok)
}

func TestCollectExportErrors(t *testing.T) {
	fx := newFixture(t, testConfig())
	fx.logging.LogError(assertErr("first, with comma"), apiReq("/api/orders"), nil)
	fx.clock.Advance(time.Second)
	fx.logging.LogError(assertErr(`second "quoted"`), apiReq("/api/orders"), nil)
	flushAll(t, fx.logging)

	recs, err := fx.logging.CollectExport(context.Background(), ExportErrors, model.TimeRange{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, recs))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "id", rows[0][0])
	assert.Contains(t, rows[0], "errorMessage")

	var out bytes.Buffer
	require.NoError(t, WriteJSON(&out, recs))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Len(t, decoded, 2)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
