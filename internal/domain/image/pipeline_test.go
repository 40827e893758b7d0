package image

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"imgrelay-server-go/internal/platform/errors"
)

type mockCodec struct {
	mock.Mock
	delay time.Duration
}

func (m *mockCodec) Probe(data []byte) (Metadata, error) {
	args := m.Called(data)
	return args.Get(0).(Metadata), args.Error(1)
}

func (m *mockCodec) Transform(data []byte, plan Plan) (Encoded, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	args := m.Called(data, plan)
	return args.Get(0).(Encoded), args.Error(1)
}

func TestNewPipeline_RequiresCodec(t *testing.T) {
	_, err := NewPipeline(Options{})
	assert.True(t, errors.IsKind(err, errors.KindConfig))
}

func TestPipeline_Execute(t *testing.T) {
	codec := &mockCodec{}
	plan := Plan{Format: FormatWebP, Quality: 40}
	codec.On("Transform", []byte("src"), plan).Return(Encoded{Bytes: []byte("out"), Size: 3}, nil)

	p, err := NewPipeline(Options{Codec: codec, Timeout: time.Second})
	require.NoError(t, err)

	out, err := p.Execute(context.Background(), []byte("src"), plan)
	require.NoError(t, err)
	assert.Equal(t, []byte("out"), out.Bytes)
	assert.Equal(t, 3, out.Size)
	assert.Equal(t, FormatWebP, out.Format)
	assert.GreaterOrEqual(t, out.Duration, time.Duration(0))
	codec.AssertExpectations(t)
}

func TestPipeline_ExecuteCodecError(t *testing.T) {
	codec := &mockCodec{}
	codec.On("Transform", mock.Anything, mock.Anything).Return(Encoded{}, stderrors.New("vips: bad huffman table"))

	p, err := NewPipeline(Options{Codec: codec})
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), []byte("src"), Plan{Format: FormatJPEG})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTranscode))
	assert.Equal(t, "vips: bad huffman table", errors.MessageOf(err))
}

func TestPipeline_ExecuteTimeout(t *testing.T) {
	codec := &mockCodec{delay: 200 * time.Millisecond}
	codec.On("Transform", mock.Anything, mock.Anything).Return(Encoded{}, nil).Maybe()

	p, err := NewPipeline(Options{Codec: codec, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), []byte("src"), Plan{Format: FormatJPEG})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTranscode))
	assert.Contains(t, err.Error(), "timed out")
}

func TestPipeline_ExecuteIgnoresCallerCancel(t *testing.T) {
	codec := &mockCodec{delay: 20 * time.Millisecond}
	codec.On("Transform", mock.Anything, mock.Anything).Return(Encoded{Bytes: []byte("x"), Size: 1}, nil)

	p, err := NewPipeline(Options{Codec: codec, Timeout: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := p.Execute(ctx, []byte("src"), Plan{Format: FormatJPEG})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Size)
}

func TestPipeline_ExecuteRecoversPanic(t *testing.T) {
	codec := &mockCodec{}
	codec.On("Transform", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("index out of range")
	})

	p, err := NewPipeline(Options{Codec: codec})
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), []byte("src"), Plan{Format: FormatJPEG})
	assert.True(t, errors.IsKind(err, errors.KindTranscode))
}

func TestPipeline_Probe(t *testing.T) {
	codec := &mockCodec{}
	codec.On("Probe", []byte("good")).Return(Metadata{Format: "png", Width: 10, Height: 10, Channels: 4, BitDepth: 8}, nil)
	codec.On("Probe", []byte("blank")).Return(Metadata{}, nil)
	codec.On("Probe", []byte("bad")).Return(Metadata{}, ErrUnsupportedFormat)

	p, err := NewPipeline(Options{Codec: codec})
	require.NoError(t, err)

	meta, err := p.Probe([]byte("good"))
	require.NoError(t, err)
	assert.Equal(t, "png", meta.Format)

	_, err = p.Probe([]byte("blank"))
	assert.True(t, errors.IsKind(err, errors.KindTranscode))

	_, err = p.Probe([]byte("bad"))
	assert.True(t, errors.IsKind(err, errors.KindTranscode))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

type countingCodec struct {
	inflight atomic.Int32
	peak     atomic.Int32
}

func (c *countingCodec) Probe([]byte) (Metadata, error) {
	return Metadata{}, nil
}

func (c *countingCodec) Transform(data []byte, plan Plan) (Encoded, error) {
	n := c.inflight.Add(1)
	defer c.inflight.Add(-1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return Encoded{Bytes: data, Size: len(data)}, nil
}

func TestPipeline_ExecuteLimitsConcurrency(t *testing.T) {
	codec := &countingCodec{}
	p, err := NewPipeline(Options{Codec: codec, Timeout: 5 * time.Second, MaxConcurrent: 2})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Execute(context.Background(), []byte("src"), Plan{Format: FormatJPEG})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, codec.peak.Load(), int32(2))
	assert.GreaterOrEqual(t, codec.peak.Load(), int32(1))
}

func TestPipeline_ExecuteSlotWaitTimesOut(t *testing.T) {
	codec := &mockCodec{delay: 200 * time.Millisecond}
	codec.On("Transform", mock.Anything, mock.Anything).Return(Encoded{}, nil).Maybe()

	p, err := NewPipeline(Options{Codec: codec, Timeout: 50 * time.Millisecond, MaxConcurrent: 1})
	require.NoError(t, err)

	go p.Execute(context.Background(), []byte("first"), Plan{Format: FormatJPEG})
	time.Sleep(10 * time.Millisecond)

	_, err = p.Execute(context.Background(), []byte("second"), Plan{Format: FormatJPEG})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindTranscode))
}
