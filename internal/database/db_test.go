package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func traceWith(l logger.Interface, err error) {
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "INSERT INTO refresh_tokens ...", 0
	}, err)
}

func TestQueryLogger(t *testing.T) {
	var buf bytes.Buffer
	ql := NewQueryLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	t.Run("duplicate key is not an error line", func(t *testing.T) {
		buf.Reset()
		traceWith(ql, gorm.ErrDuplicatedKey)
		traceWith(ql, errors.Join(errors.New("savepoint"), gorm.ErrDuplicatedKey))
		assert.Empty(t, buf.String())
	})

	t.Run("record not found is ignored", func(t *testing.T) {
		buf.Reset()
		traceWith(ql, gorm.ErrRecordNotFound)
		assert.Empty(t, buf.String())
	})

	t.Run("other failures log as json", func(t *testing.T) {
		buf.Reset()
		traceWith(ql, errors.New("connection reset"))
		out := buf.String()
		assert.Contains(t, out, `"level":"ERROR"`)
		assert.Contains(t, out, `"component":"gorm"`)
		assert.Contains(t, out, "connection reset")
	})

	t.Run("log mode keeps the duplicate filter", func(t *testing.T) {
		buf.Reset()
		traceWith(ql.LogMode(logger.Info), gorm.ErrDuplicatedKey)
		assert.NotContains(t, buf.String(), "ERROR")
	})
}
