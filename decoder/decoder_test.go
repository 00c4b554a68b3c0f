package decoder_test

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-stream/api"
	"github.com/momentics/hioload-stream/decoder"
	"github.com/momentics/hioload-stream/pool"
)

// drive feeds chunks to d the way the reactor does and returns the
// delivered units. The last chunk carries the end flag.
func drive(t *testing.T, d api.Decoder, chunks [][]byte) []string {
	t.Helper()
	var (
		units []string
		carry *pool.Buffer
	)
	for i, c := range chunks {
		end := i == len(chunks)-1
		buf := pool.NewBuffer(bytes.Clone(c))
		if carry != nil {
			carry.Append(c)
			buf, carry = carry, nil
		}
		for {
			n, out, err := d.Decode(buf, end)
			require.NoError(t, err)
			if n == 0 {
				if out != nil && out.Len() > 0 {
					if end {
						units = append(units, string(out.Bytes()))
					} else {
						carry = out
					}
				}
				break
			}
			if out == nil {
				break
			}
			require.LessOrEqual(t, n, out.Len())
			rest := out.Split(n)
			units = append(units, string(out.Bytes()))
			if rest.Len() == 0 {
				break
			}
			buf = rest
		}
	}
	return units
}

func split(data []byte, rng *rand.Rand) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := 1 + rng.IntN(min(len(data), 7))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return append(chunks, nil)
}

func TestFixedLengthCarriesTail(t *testing.T) {
	units := drive(t, decoder.FixedLength(4), [][]byte{{1, 2}, {3, 4, 5}})
	assert.Equal(t, []string{string([]byte{1, 2, 3, 4}), string([]byte{5})}, units)
}

func TestFixedLengthRejectsZero(t *testing.T) {
	assert.Panics(t, func() { decoder.FixedLength(0) })
}

func TestLengthPrefixedRoundTripUnderFragmentation(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 50; round++ {
		var (
			stream []byte
			want   []string
		)
		for i := 0; i < 20; i++ {
			payload := make([]byte, 1+rng.IntN(300))
			for j := range payload {
				payload[j] = byte(rng.UintN(256))
			}
			stream = decoder.AppendFrame(stream, payload)
			want = append(want, string(payload))
		}
		got := drive(t, decoder.LengthPrefixed(1024), split(stream, rng))
		require.Equal(t, want, got, "round %d", round)
	}
}

func TestLengthPrefixedSkipsEmptyFrames(t *testing.T) {
	var stream []byte
	stream = decoder.AppendFrame(stream, nil)
	stream = decoder.AppendFrame(stream, []byte("abc"))
	stream = decoder.AppendFrame(stream, nil)
	got := drive(t, decoder.LengthPrefixed(16), [][]byte{stream, nil})
	assert.Equal(t, []string{"abc"}, got)
}

func TestLengthPrefixedErrors(t *testing.T) {
	d := decoder.LengthPrefixed(4)
	_, _, err := d.Decode(pool.NewBuffer(decoder.AppendFrame(nil, []byte("too long"))), false)
	assert.ErrorIs(t, err, decoder.ErrFrameTooLarge)

	d = decoder.LengthPrefixed(16)
	_, _, err = d.Decode(pool.NewBuffer([]byte{0x80, 0x00}), false)
	assert.ErrorIs(t, err, varint.ErrNotMinimal)

	d = decoder.LengthPrefixed(16)
	n, out, err := d.Decode(pool.NewBuffer([]byte{5, 'a'}), false)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NotNil(t, out)
	_, _, err = d.Decode(out, true)
	assert.ErrorIs(t, err, decoder.ErrTruncatedFrame)
}

func TestFrameMatchesAppendFrame(t *testing.T) {
	pkt := decoder.Frame([]byte("payload"))
	defer pkt.Release()
	assert.Equal(t, decoder.AppendFrame(nil, []byte("payload")), pkt.Bytes())
}

func TestDelimitedAcrossChunks(t *testing.T) {
	got := drive(t, decoder.Lines(64), [][]byte{
		[]byte("he"), []byte("llo\nwor"), []byte("ld\n\nta"), []byte("il"),
	})
	assert.Equal(t, []string{"hello\n", "world\n", "\n", "tail"}, got)
}

func TestDelimitedMultiByteSeparatorSplit(t *testing.T) {
	got := drive(t, decoder.Delimited([]byte("\r\n"), 0), [][]byte{
		[]byte("a\r"), []byte("\nb\r"), []byte("\n"), nil,
	})
	assert.Equal(t, []string{"a\r\n", "b\r\n"}, got)
}

func TestDelimitedTooLong(t *testing.T) {
	d := decoder.Lines(4)
	_, _, err := d.Decode(pool.NewBuffer([]byte("abcdef")), false)
	assert.ErrorIs(t, err, decoder.ErrUnitTooLong)
}

func TestDelimitedBoundAppliesToTerminatedUnits(t *testing.T) {
	d := decoder.Lines(4)
	n, _, err := d.Decode(pool.NewBuffer([]byte("abcd\n")), false)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	d = decoder.Lines(4)
	_, _, err = d.Decode(pool.NewBuffer([]byte("abcdefgh\nx")), false)
	assert.ErrorIs(t, err, decoder.ErrUnitTooLong)

	// the separator arrives once the body already exceeds the bound
	d = decoder.Delimited([]byte("\r\n"), 4)
	n, out, err := d.Decode(pool.NewBuffer([]byte("abcde")), false)
	require.NoError(t, err)
	assert.Zero(t, n)
	out.Append([]byte("\r\n"))
	_, _, err = d.Decode(out, false)
	assert.ErrorIs(t, err, decoder.ErrUnitTooLong)
}

func TestCaptureTakesBuffers(t *testing.T) {
	var seen []string
	d := decoder.Capture(func(buf *pool.Buffer, end bool) error {
		seen = append(seen, string(buf.Bytes()))
		buf.Release()
		return nil
	})
	assert.Empty(t, drive(t, d, [][]byte{[]byte("ab"), []byte("cd")}))
	assert.Equal(t, []string{"ab", "cd"}, seen)

	boom := errors.New("boom")
	d = decoder.Capture(func(buf *pool.Buffer, end bool) error { return boom })
	_, out, err := d.Decode(pool.NewBuffer([]byte("x")), false)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, out)
}

func TestCountingConservesBytes(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	data := make([]byte, 1000)
	c := decoder.Counting(decoder.FixedLength(10))
	units := drive(t, c, split(data, rng))
	assert.Len(t, units, 100)
	assert.Equal(t, uint64(len(data)), c.Consumed())
	assert.Equal(t, uint64(len(data)), c.UnitBytes())
	assert.Equal(t, uint64(100), c.Units())
	assert.GreaterOrEqual(t, c.Calls(), c.Units())
	assert.False(t, c.Overlapped())
	require.NoError(t, c.Close())
	assert.True(t, c.Closed())
}

func TestCountingAccountsStrippedHeaders(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	var (
		stream  []byte
		payload uint64
	)
	for i := 0; i < 30; i++ {
		p := bytes.Repeat([]byte{byte(i)}, rng.IntN(200))
		stream = decoder.AppendFrame(stream, p)
		payload += uint64(len(p))
	}
	c := decoder.Counting(decoder.LengthPrefixed(1024))
	drive(t, c, split(stream, rng))
	assert.Equal(t, uint64(len(stream)), c.Consumed())
	assert.Equal(t, payload, c.UnitBytes())
}
