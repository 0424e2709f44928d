package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/internal/broadcast/block"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Broadcast-Index-Platform/pkg/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticFlat(t *testing.T) {
	s := &Synthetic{Flat: true, RecordsPerGroup: 10}
	batches, err := s.Batches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 26)
	assert.Equal(t, 260, countRecords(batches))

	var prev string
	for _, b := range batches {
		for _, r := range b.Records {
			assert.Greater(t, r.SearchKey, prev)
			prev = r.SearchKey
		}
	}
}

func TestSyntheticGroups(t *testing.T) {
	s := &Synthetic{Groups: 3, RecordsPerGroup: 20}
	batches, err := s.Batches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"G01", "G02", "G03"}, GroupOrder(batches))
	assert.Equal(t, "G02:k00019", batches[1].Records[19].UniqueID)

	_, err = (&Synthetic{Groups: 0, RecordsPerGroup: 10}).Batches(context.Background())
	require.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestGroupOrderFoldsCase(t *testing.T) {
	batches := []Batch{{Group: "X"}, {Group: "Y"}, {Group: "x"}, {Group: "y"}}
	assert.Equal(t, []string{"X", "Y"}, GroupOrder(batches))
}

func TestJSONLinesRoundTrip(t *testing.T) {
	in, err := (&Synthetic{Groups: 2, RecordsPerGroup: 10}).Batches(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSONLines(&buf, in))
	out, err := ReadJSONLines(context.Background(), &buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[1].Records[3].UniqueID, out[1].Records[3].UniqueID)
	assert.Equal(t, "G02", out[1].Group)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	doc := strings.Join([]string{
		`# fruit and veg`,
		`{"unique_id":"1","group":"fruit","search_key":"apple"}`,
		`{"unique_id":"2","group":"FRUIT","search_key":"pear"}`,
		``,
		`{"unique_id":"3","group":"veg","search_key":"leek","payload":{"kg":2}}`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	batches, err := (&File{Path: path}).Batches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].Records, 2)
	assert.Equal(t, "veg", batches[1].Group)
	assert.NotNil(t, batches[1].Records[0].Payload)

	_, err = (&File{Path: filepath.Join(t.TempDir(), "missing")}).Batches(context.Background())
	require.Error(t, err)
}

func TestReadJSONLinesReportsLine(t *testing.T) {
	_, err := ReadJSONLines(context.Background(), strings.NewReader("{\"unique_id\":\"1\"}\n{oops\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestOpen(t *testing.T) {
	cfg := &config.Config{}
	cfg.Broadcast.Mode = "clustered"
	cfg.Dataset = config.DatasetConfig{Source: "synthetic", Groups: 2, RecordsPerGroup: 10}
	src, err := Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Synthetic{}, src)

	cfg.Dataset.Source = "file"
	_, err = Open(cfg)
	require.ErrorIs(t, err, apperrors.ErrInvalidConfig)

	cfg.Dataset.Source = "kafka"
	src, err = Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &Kafka{}, src)

	cfg.Dataset.Source = "ftp"
	_, err = Open(cfg)
	require.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

type stalled struct{}

func (stalled) Batches(ctx context.Context) ([]Batch, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestLoadTimeout(t *testing.T) {
	_, err := Load(context.Background(), stalled{}, 10*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func encodeMsg(t *testing.T, m batchMessage) []byte {
	t.Helper()
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return b
}

func TestCollector(t *testing.T) {
	batch := Batch{Group: "A", Records: []*block.Record{{UniqueID: "A:1", Group: "A", SearchKey: "1"}}}
	var c collector
	require.NoError(t, c.handle(context.Background(), nil, encodeMsg(t, batchMessage{Dataset: "d", Seq: 0, Batch: &batch})))
	err := c.handle(context.Background(), nil, encodeMsg(t, batchMessage{Dataset: "d", Seq: 1, End: true, Batches: 1}))
	require.ErrorIs(t, err, kafka.ErrStop)
	assert.True(t, c.done)
	require.Len(t, c.batches, 1)
	assert.Equal(t, "A:1", c.batches[0].Records[0].UniqueID)
}

func TestCollectorRejectsGapsAndForeignDatasets(t *testing.T) {
	batch := Batch{Group: "A"}
	var c collector
	err := c.handle(context.Background(), nil, encodeMsg(t, batchMessage{Dataset: "d", Seq: 1, Batch: &batch}))
	require.Error(t, err)

	c = collector{}
	require.NoError(t, c.handle(context.Background(), nil, encodeMsg(t, batchMessage{Dataset: "d", Seq: 0, Batch: &batch})))
	err = c.handle(context.Background(), nil, encodeMsg(t, batchMessage{Dataset: "e", Seq: 1, Batch: &batch}))
	require.Error(t, err)

	err = c.handle(context.Background(), nil, encodeMsg(t, batchMessage{Dataset: "d", Seq: 1, End: true, Batches: 5}))
	require.Error(t, err)
	assert.False(t, c.done)
}

func TestPostgresRoundTrip(t *testing.T) {
	pgCfg := config.PostgresConfig{
		Host: "localhost", Port: 5432, Database: "broadcast",
		User: "broadcast", Password: "localdev", SSLMode: "disable",
		MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetime: time.Minute,
	}
	client, err := postgres.New(context.Background(), pgCfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	defer client.Close()

	table := fmt.Sprintf("bcast_test_%d", time.Now().UnixNano())
	defer client.DB.Exec("DROP TABLE IF EXISTS " + table)

	in, err := (&Synthetic{Groups: 2, RecordsPerGroup: 20}).Batches(context.Background())
	require.NoError(t, err)
	require.NoError(t, StorePostgres(context.Background(), client, table, in))

	out, err := (&Postgres{Table: table, Client: client}).Batches(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0].Records[7].UniqueID, out[0].Records[7].UniqueID)
	assert.Equal(t, 40, countRecords(out))
}
