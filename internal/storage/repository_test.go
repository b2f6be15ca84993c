package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"goldboard/internal/retailer"
)

func TestStoreNotConfigured(t *testing.T) {
	var s *Store
	ctx := context.Background()

	if err := s.UpsertSnapshot(ctx, RateSnapshot{Bucket: time.Now()}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("未配置连接池时应返回 ErrNotConfigured, 实际 %v", err)
	}
	if _, _, err := s.LatestSnapshotBefore(ctx, time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("期望 ErrNotConfigured, 实际 %v", err)
	}
	if _, _, err := s.TryAdvisoryLock(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("期望 ErrNotConfigured, 实际 %v", err)
	}
	if err := s.Set(ctx, "shop", retailer.Partial{"shopName": "x"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("期望 ErrNotConfigured, 实际 %v", err)
	}
	s.Close()
}

func TestSchemaCoversTables(t *testing.T) {
	for _, table := range []string{"rate_snapshots", "rate_alerts", "retailer_configs"} {
		if !strings.Contains(schemaSQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("schema 缺少表 %s", table)
		}
	}
}

func TestParseDecimals(t *testing.T) {
	var snap RateSnapshot
	err := parseDecimals(map[string]parseTarget{
		"gold_24k": {"72100.50", &snap.Gold24K},
	})
	if err != nil || snap.Gold24K.String() != "72100.5" {
		t.Fatalf("解析错误: %s %v", snap.Gold24K, err)
	}
	if err := parseDecimals(map[string]parseTarget{"gold_22k": {"abc", &snap.Gold22K}}); err == nil || !strings.Contains(err.Error(), "gold_22k") {
		t.Fatalf("非法数字应报错并包含列名, 实际 %v", err)
	}
}
