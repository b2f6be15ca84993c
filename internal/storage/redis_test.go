package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"goldboard/internal/config"
	"goldboard/internal/retailer"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestRedisStore(t *testing.T) (*RedisConfigStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisConfigStore(client, "goldboard:config:"), mr
}

func TestRedisConfigStoreMergesFields(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "shop"); err != nil || ok {
		t.Fatalf("空存储应返回 ok=false, 实际 ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "shop", retailer.Partial{"shopName": "Lakshmi Jewellers", "gold24kMargin": 250}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	if err := store.Set(ctx, "shop", retailer.Partial{"gold24kMargin": 300, "logoBase64": nil}); err != nil {
		t.Fatalf("二次写入失败: %v", err)
	}

	if got := mr.HGet("goldboard:config:shop", "shopName"); got != `"Lakshmi Jewellers"` {
		t.Fatalf("字段应以 JSON 编码存储, 实际 %q", got)
	}

	doc, ok, err := store.Get(ctx, "shop")
	if err != nil || !ok {
		t.Fatalf("读取失败: ok=%v err=%v", ok, err)
	}
	if doc["shopName"] != "Lakshmi Jewellers" {
		t.Fatalf("合并后应保留 shopName, 实际 %v", doc["shopName"])
	}
	if doc["gold24kMargin"] != float64(300) {
		t.Fatalf("gold24kMargin 应被覆盖为 300, 实际 %v", doc["gold24kMargin"])
	}
	if v, present := doc["logoBase64"]; !present || v != nil {
		t.Fatalf("显式 null 应保留, 实际 %v present=%v", v, present)
	}

	cfg, err := retailer.Resolve(doc)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if cfg.Gold24KMargin != 300 || cfg.ShopName != "Lakshmi Jewellers" {
		t.Fatalf("解析结果错误: %+v", cfg)
	}
}

func TestRedisConfigStoreNestedValue(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	charge := map[string]any{"type": "percentage", "value": 8.5, "title": "Making"}
	if err := store.Set(ctx, "shop", retailer.Partial{"makingCharges22k": charge}); err != nil {
		t.Fatalf("写入失败: %v", err)
	}
	doc, _, err := store.Get(ctx, "shop")
	if err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	cfg, err := retailer.Resolve(doc)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if cfg.MakingCharges22K.Value != 8.5 || cfg.MakingCharges22K.Type != retailer.MakingChargePercentage {
		t.Fatalf("嵌套对象解析错误: %+v", cfg.MakingCharges22K)
	}
}

func TestRedisConfigStoreServiceRoundTrip(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	svc := retailer.NewService(store, "shop", noopLogger())
	if _, err := svc.Update(ctx, retailer.Partial{"silver999Margin": 2.5}); err != nil {
		t.Fatalf("更新失败: %v", err)
	}

	reloaded := retailer.NewService(store, "shop", noopLogger())
	if _, err := reloaded.Load(ctx); err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if got := reloaded.Current().Silver999Margin; got != 2.5 {
		t.Fatalf("重新加载后应为 2.5, 实际 %v", got)
	}
}

func TestRedisConfigStoreNestedPartialUpdate(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	svc := retailer.NewService(store, "shop", noopLogger())
	first := retailer.Partial{"makingCharges24k": map[string]any{"type": "perGram", "value": 10, "title": "Labour"}}
	if _, err := svc.Update(ctx, first); err != nil {
		t.Fatalf("更新失败: %v", err)
	}
	if _, err := svc.Update(ctx, retailer.Partial{"makingCharges24k": map[string]any{"value": 20}}); err != nil {
		t.Fatalf("部分更新失败: %v", err)
	}

	reloaded := retailer.NewService(store, "shop", noopLogger())
	if _, err := reloaded.Load(ctx); err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	want := retailer.MakingCharge{Type: retailer.MakingChargePerGram, Value: 20, Title: "Labour"}
	if got := reloaded.Current().MakingCharges24K; got != want {
		t.Fatalf("嵌套字段的兄弟字段应在存储中保留, 实际 %+v", got)
	}
}

func TestNewRedisClientRequiresAddr(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), config.RedisConfig{}); err == nil {
		t.Fatal("缺少地址时应报错")
	}

	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("连接 miniredis 失败: %v", err)
	}
	_ = client.Close()
}
