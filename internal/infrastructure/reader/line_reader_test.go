package reader_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ueckoken/kagi/internal/core/domain/card"
	"github.com/ueckoken/kagi/internal/infrastructure/reader"
)

func fastConfig() reader.Config {
	return reader.Config{BackoffMin: time.Millisecond, BackoffMax: 5 * time.Millisecond}
}

func TestRead_ParsesHexAndSkipsBlankLines(t *testing.T) {
	open := func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("\n  012E4CD0A1B2C3D4 \n\nnot-hex\n")), nil
	}
	r := reader.NewLineReader(open, fastConfig(), nil)
	defer r.Close()
	ctx := context.Background()

	id, err := r.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, card.IDm{0x01, 0x2e, 0x4c, 0xd0, 0xa1, 0xb2, 0xc3, 0xd4}, id)

	id, err = r.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, card.IDm("not-hex"), id)
}

func TestRead_ReopensAfterOpenFailureAndEOF(t *testing.T) {
	var opens atomic.Int32
	open := func() (io.ReadCloser, error) {
		switch opens.Add(1) {
		case 1:
			return nil, errors.New("no such device")
		case 2:
			return io.NopCloser(strings.NewReader("aa\n")), nil
		default:
			return io.NopCloser(strings.NewReader("bb\n")), nil
		}
	}
	r := reader.NewLineReader(open, fastConfig(), nil)
	defer r.Close()

	id, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "aa", id.String())

	id, err = r.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "bb", id.String())
	require.GreaterOrEqual(t, opens.Load(), int32(3))
}

func TestRead_CancelledContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := reader.NewLineReader(func() (io.ReadCloser, error) { return pr, nil }, fastConfig(), nil)
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := r.Read(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRead_DebounceDropsRepeatedCard(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cfg := fastConfig()
	cfg.Debounce = time.Second
	cfg.Now = func() time.Time { return now }

	open := func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("aa\naa\nbb\n")), nil
	}
	r := reader.NewLineReader(open, cfg, nil)
	defer r.Close()

	id, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "aa", id.String())

	id, err = r.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "bb", id.String())
}

func TestRead_AttemptTimeoutKeepsUnclosableSource(t *testing.T) {
	// stdin-like: Close does not unblock a pending read
	pr, pw := io.Pipe()
	defer pw.Close()
	var opens atomic.Int32
	open := func() (io.ReadCloser, error) {
		opens.Add(1)
		return io.NopCloser(pr), nil
	}
	cfg := fastConfig()
	cfg.AttemptTimeout = 10 * time.Millisecond
	r := reader.NewLineReader(open, cfg, nil)
	defer r.Close()

	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = pw.Write([]byte("cc\n"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	id, err := r.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, "cc", id.String())
	require.EqualValues(t, 1, opens.Load())
}

func TestRead_AttemptTimeoutThenEOFReopens(t *testing.T) {
	var opens atomic.Int32
	open := func() (io.ReadCloser, error) {
		if opens.Add(1) == 1 {
			pr, pw := io.Pipe()
			go func() {
				time.Sleep(50 * time.Millisecond)
				_ = pw.Close()
			}()
			return pr, nil
		}
		return io.NopCloser(strings.NewReader("dd\n")), nil
	}
	cfg := fastConfig()
	cfg.AttemptTimeout = 10 * time.Millisecond
	r := reader.NewLineReader(open, cfg, nil)
	defer r.Close()

	id, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, "dd", id.String())
	require.EqualValues(t, 2, opens.Load())
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fifo")
	require.NoError(t, os.WriteFile(path, []byte("0102\n"), 0o600))

	r := reader.NewLineReader(reader.Open(path), fastConfig(), nil)
	defer r.Close()
	id, err := r.Read(context.Background())
	require.NoError(t, err)
	require.Equal(t, card.IDm{0x01, 0x02}, id)
}
