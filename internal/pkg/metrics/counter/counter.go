package counter

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const itemCopiesKey = "item:counters:copies"

// Counter buffers item copy counts in Redis and periodically folds them
// into items.popularity_score.
type Counter struct {
	rdb *redis.Client
	db  *gorm.DB
}

func New(rdb *redis.Client, db *gorm.DB) *Counter {
	return &Counter{rdb: rdb, db: db}
}

// AddItemCopy increments the pending copy counter for an item in Redis
func (c *Counter) AddItemCopy(ctx context.Context, itemID uint) error {
	field := strconv.FormatUint(uint64(itemID), 10)
	return c.rdb.HIncrBy(ctx, itemCopiesKey, field, 1).Err()
}

// FlushAll flushes pending copy counts to the database
func (c *Counter) FlushAll(ctx context.Context) error {
	return c.flushHashToTable(ctx, itemCopiesKey, "items", "popularity_score")
}

// flushHashToTable drains a Redis hash atomically and applies batched increments to table.
// Uses RENAME to a temporary key for atomic drain without losing in-flight increments.
func (c *Counter) flushHashToTable(ctx context.Context, redisKey, table, column string) error {
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := c.rdb.Rename(ctx, redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if err == redis.Nil || strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer c.rdb.Del(ctx, tmpKey)

	data, err := c.rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}

	sql, ok := buildIncrementSQL(table, column, data)
	if !ok {
		return nil
	}
	return c.db.WithContext(ctx).Exec(sql).Error
}

// buildIncrementSQL composes
// UPDATE <table> SET <column> = <column> + CASE id WHEN <id> THEN <inc> ... ELSE 0 END WHERE id IN (...)
// Ids and increments are parsed integers and are inlined so the statement
// type-checks the same way on postgres and mysql.
func buildIncrementSQL(table, column string, data map[string]string) (string, bool) {
	type pair struct {
		id  uint64
		inc int64
	}
	pairs := make([]pair, 0, len(data))
	for k, v := range data {
		id, perr := strconv.ParseUint(k, 10, 64)
		if perr != nil {
			continue
		}
		inc, ierr := strconv.ParseInt(v, 10, 64)
		if ierr != nil || inc == 0 {
			continue
		}
		pairs = append(pairs, pair{id: id, inc: inc})
	}
	if len(pairs) == 0 {
		return "", false
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].id < pairs[j].id })

	var builder strings.Builder
	builder.WriteString("UPDATE ")
	builder.WriteString(table)
	builder.WriteString(" SET ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + CASE id")
	for _, p := range pairs {
		fmt.Fprintf(&builder, " WHEN %d THEN %d", p.id, p.inc)
	}
	builder.WriteString(" ELSE 0 END WHERE id IN (")
	for i, p := range pairs {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString(strconv.FormatUint(p.id, 10))
	}
	builder.WriteString(")")
	return builder.String(), true
}
