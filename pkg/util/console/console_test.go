package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFiltering(t *testing.T) {
	var errBuf bytes.Buffer
	c := &Console{Level: WarnLevel, Err: &errBuf}

	c.Info("hidden")
	c.Debugf("hidden %d", 1)
	c.Warn("shown")
	c.Errorf("also %s", "shown")

	out := errBuf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "shown")
	require.Contains(t, out, "also shown")
}

func TestMachineModePrefixesEveryLine(t *testing.T) {
	var errBuf bytes.Buffer
	c := &Console{Level: InfoLevel, IsMachine: true, Color: true, Err: &errBuf}

	c.Error("first\nsecond")

	lines := strings.Split(strings.TrimSpace(errBuf.String()), "\n")
	require.Len(t, lines, 2)
	for _, l := range lines {
		require.Contains(t, l, "error ")
		require.NotContains(t, l, "\x1b[")
	}
}

func TestOutputGoesToOut(t *testing.T) {
	var out, errBuf bytes.Buffer
	c := &Console{Level: InfoLevel, Out: &out, Err: &errBuf}

	c.Output("/tmp/model.onnx")

	require.Equal(t, "/tmp/model.onnx\n", out.String())
	require.Empty(t, errBuf.String())
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("WARNING")
	require.NoError(t, err)
	require.Equal(t, WarnLevel, l)

	_, err = ParseLevel("loud")
	require.Error(t, err)
}

func TestWriterLogsLines(t *testing.T) {
	var errBuf bytes.Buffer
	c := &Console{Level: DebugLevel, Err: &errBuf}

	w := c.Writer(DebugLevel)
	_, err := w.Write([]byte("exporting\r\nopset 1"))
	require.NoError(t, err)
	_, err = w.Write([]byte("6\n tail"))
	require.NoError(t, err)
	require.Equal(t, "exporting\nopset 16\n", errBuf.String())

	require.NoError(t, w.Close())
	require.Equal(t, "exporting\nopset 16\n tail\n", errBuf.String())
}
