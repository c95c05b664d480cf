package discord

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkaryagin/scrim-system/queue"
)

func encodeClip(frames ...[]byte) []byte {
	var buf bytes.Buffer
	for _, f := range frames {
		_ = binary.Write(&buf, binary.LittleEndian, int16(len(f)))
		buf.Write(f)
	}
	return buf.Bytes()
}

func TestClipKey(t *testing.T) {
	assert.Equal(t, "voice/welcome.dca", clipKey(queue.VoiceLineWelcome))
	assert.Equal(t, "voice/match_start.dca", clipKey(queue.VoiceLineMatchStart))
}

func TestStreamDCASendsAllFrames(t *testing.T) {
	clip := encodeClip([]byte{0x01, 0x02}, []byte{0x03}, []byte{0x04, 0x05, 0x06})
	send := make(chan []byte, 8)

	err := streamDCA(context.Background(), bytes.NewReader(clip), send)
	require.NoError(t, err)
	close(send)

	var got [][]byte
	for f := range send {
		got = append(got, f)
	}
	require.Len(t, got, 3)
	assert.Equal(t, []byte{0x01, 0x02}, got[0])
	assert.Equal(t, []byte{0x04, 0x05, 0x06}, got[2])
}

func TestStreamDCARejectsCorruptFrameLength(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, int16(-5))
	send := make(chan []byte, 1)

	err := streamDCA(context.Background(), &buf, send)
	assert.ErrorContains(t, err, "invalid clip frame length")
}

func TestStreamDCATruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, int16(10))
	buf.Write([]byte{0x01, 0x02}) // shorter than declared
	send := make(chan []byte, 1)

	err := streamDCA(context.Background(), &buf, send)
	assert.ErrorContains(t, err, "read clip frame")
}

func TestStreamDCAHonoursContextCancel(t *testing.T) {
	clip := encodeClip([]byte{0x01}, []byte{0x02})
	send := make(chan []byte) // unbuffered, nobody receiving

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := streamDCA(ctx, bytes.NewReader(clip), send)
	assert.ErrorIs(t, err, context.Canceled)
}
