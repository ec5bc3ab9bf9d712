package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visitorbook/internal/visitorbook/models"
	dErrors "visitorbook/pkg/domain-errors"
	"visitorbook/pkg/requestcontext"
)

type stubSource struct {
	snap models.Snapshot
	err  error
}

func (s stubSource) Snapshot(context.Context) (models.Snapshot, error) {
	return s.snap, s.err
}

type failingBlobs struct{}

func (failingBlobs) Put(context.Context, string, []byte, string) error {
	return errors.New("bucket unavailable")
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestExport(t *testing.T) {
	contract := common.HexToAddress("0x00000000000000000000000000000000000000C0")
	alice := common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	source := stubSource{snap: models.Snapshot{
		Contract:      contract,
		Fee:           "100",
		TotalVisitors: 1,
		Visitors:      []common.Address{alice},
	}}
	blobs := NewMemoryBlobStore()
	exporter, err := NewExporter(source, blobs, discard)
	require.NoError(t, err)

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), at)

	res, err := exporter.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.TotalVisitors)
	assert.True(t, strings.HasPrefix(res.Key, "snapshots/"+contract.Hex()+"/20261019T120000"))

	body, ok := blobs.Get(res.Key)
	require.True(t, ok)
	var got models.Snapshot
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "100", got.Fee)
	assert.Equal(t, []common.Address{alice}, got.Visitors)
	assert.True(t, at.Equal(got.TakenAt))

	_, err = exporter.Export(ctx)
	assert.Error(t, err, "keys are write-once")
}

func TestExportFailures(t *testing.T) {
	_, err := NewExporter(nil, NewMemoryBlobStore(), discard)
	assert.Error(t, err)

	exporter, err := NewExporter(stubSource{err: errors.New("db down")}, NewMemoryBlobStore(), discard)
	require.NoError(t, err)
	_, err = exporter.Export(context.Background())
	assert.Error(t, err)

	exporter, err = NewExporter(stubSource{}, failingBlobs{}, discard)
	require.NoError(t, err)
	_, err = exporter.Export(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestRunStopsOnCancel(t *testing.T) {
	exporter, err := NewExporter(stubSource{}, NewMemoryBlobStore(), discard)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, exporter.Run(ctx, time.Hour), context.Canceled)
}
