package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rainbow-dao/drn/types"
)

func Test_formatTimeAttr(t *testing.T) {
	t.Run("empty format string", func(t *testing.T) {
		require.Nil(t, formatTimeAttr(""))
	})

	t.Run("format: none", func(t *testing.T) {
		f := formatTimeAttr("none")
		require.NotNil(t, f)
		now := time.Now()

		a := f(nil, slog.Time(slog.TimeKey, now))
		require.Equal(t, slog.Attr{}, a)

		// when not time key value is preserved
		a = f(nil, slog.Time("foo", now))
		require.True(t, a.Equal(slog.Time("foo", now)))
	})

	t.Run("format: format string", func(t *testing.T) {
		f := formatTimeAttr("15:04:05.0000")
		require.NotNil(t, f)

		// zero time is not changed
		a := f(nil, slog.Time(slog.TimeKey, time.Time{}))
		require.Equal(t, slog.Time(slog.TimeKey, time.Time{}), a)

		now := time.Now()
		a = f(nil, slog.Time(slog.TimeKey, now))
		require.Equal(t, now.Format("15:04:05.0000"), a.Value.String())
	})
}

func Test_composeAttrFmt(t *testing.T) {
	b0 := func(groups []string, a slog.Attr) slog.Attr { return slog.Int64(a.Key, a.Value.Int64()+1) }
	b1 := func(groups []string, a slog.Attr) slog.Attr { return slog.Int64(a.Key, a.Value.Int64()+2) }
	b2 := func(groups []string, a slog.Attr) slog.Attr { return slog.Int64(a.Key, a.Value.Int64()+4) }

	require.Nil(t, composeAttrFmt())
	require.Nil(t, composeAttrFmt(nil, nil))

	f := composeAttrFmt(nil, b1, nil)
	require.NotNil(t, f)
	require.EqualValues(t, 2, f(nil, slog.Int64("test", 0)).Value.Int64())

	f = composeAttrFmt(b0, nil, b1, b2)
	require.EqualValues(t, 7, f(nil, slog.Int64("test", 0)).Value.Int64())
}

func TestNew(t *testing.T) {
	t.Run("invalid level", func(t *testing.T) {
		l, err := New(&LogConfiguration{Level: "foo", Writer: &bytes.Buffer{}})
		require.ErrorContains(t, err, `invalid log level "foo"`)
		require.Nil(t, l)
	})

	t.Run("invalid format", func(t *testing.T) {
		l, err := New(&LogConfiguration{Format: "xml", Writer: &bytes.Buffer{}})
		require.EqualError(t, err, `creating log handler: unknown log format "xml"`)
		require.Nil(t, l)
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l, err := New(&LogConfiguration{Format: FormatJSON, Level: "debug", TimeFormat: "none", Writer: buf})
		require.NoError(t, err)
		addr := types.HexToAddress("0x01")
		l.Debug("relayed", Address(addr), Height(9605), Amount(uint256.NewInt(42)), Error(errors.New("boom")))

		rec := map[string]any{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		require.NotContains(t, rec, slog.TimeKey)
		require.Equal(t, "relayed", rec[slog.MessageKey])
		require.Equal(t, addr.Hex(), rec[AddressKey])
		require.EqualValues(t, 9605, rec[HeightKey])
		require.Equal(t, "42", rec[AmountKey])
		require.Equal(t, "boom", rec[ErrorKey])
	})

	t.Run("level filters", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l, err := New(&LogConfiguration{Level: "WARN", Writer: buf})
		require.NoError(t, err)
		l.Info("not shown")
		require.Zero(t, buf.Len())
		l.Warn("shown")
		require.Contains(t, buf.String(), "shown")
	})

	t.Run("console", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l, err := New(&LogConfiguration{Format: FormatConsole, Writer: buf, NoColor: true})
		require.NoError(t, err)
		l.Info("locked value", Module("locker"))
		require.Contains(t, buf.String(), "INF")
		require.Contains(t, buf.String(), "locked value")
		require.Contains(t, buf.String(), "locker")
		require.NotContains(t, buf.String(), "???")
	})
}
