package retailer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type failingStore struct {
	getErr error
	setErr error
	sets   []Partial
}

func (f *failingStore) Get(context.Context, string) (Partial, bool, error) {
	return nil, false, f.getErr
}

func (f *failingStore) Set(_ context.Context, _ string, partial Partial) error {
	f.sets = append(f.sets, partial)
	return f.setErr
}

func TestServiceLoadMissingDocumentUsesDefaults(t *testing.T) {
	svc := NewService(NewMemoryStore(), "shop-1", zerolog.Nop())
	cfg, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("Load 不应报错: %v", err)
	}
	if cfg.ShopName != Defaults().ShopName {
		t.Fatalf("应使用默认值: %+v", cfg)
	}
}

func TestServiceUpdatePersistsPartial(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Set(ctx, "shop-1", Partial{"shopName": "Lakshmi Jewellers", "silver999Margin": 1.5}); err != nil {
		t.Fatal(err)
	}

	svc := NewService(store, "shop-1", zerolog.Nop())
	if _, err := svc.Load(ctx); err != nil {
		t.Fatalf("Load 不应报错: %v", err)
	}

	var notified []Config
	svc.Subscribe(func(c Config) { notified = append(notified, c) })

	cfg, err := svc.Update(ctx, Partial{"gold24kMargin": 250})
	if err != nil {
		t.Fatalf("Update 不应报错: %v", err)
	}
	if cfg.Gold24KMargin != 250 || cfg.ShopName != "Lakshmi Jewellers" || cfg.Silver999Margin != 1.5 {
		t.Fatalf("合并结果错误: %+v", cfg)
	}
	if len(notified) != 1 {
		t.Fatalf("应通知一次, 实际 %d", len(notified))
	}

	doc, found, err := store.Get(ctx, "shop-1")
	if err != nil || !found {
		t.Fatalf("存储应存在文档: %v", err)
	}
	if doc["shopName"] != "Lakshmi Jewellers" || doc["gold24kMargin"] != 250.0 {
		t.Fatalf("部分写入应合并而非覆盖: %#v", doc)
	}
}

func TestServiceNestedUpdateKeepsSiblingFields(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, "shop-1", zerolog.Nop())

	if _, err := svc.Update(ctx, Partial{"makingCharges24k": map[string]any{"type": "perGram", "value": 10, "title": "Labour"}}); err != nil {
		t.Fatalf("写入 making charge 失败: %v", err)
	}
	cfg, err := svc.Update(ctx, Partial{"makingCharges24k": map[string]any{"value": 20}})
	if err != nil {
		t.Fatalf("只更新 value 失败: %v", err)
	}
	want := MakingCharge{Type: MakingChargePerGram, Value: 20, Title: "Labour"}
	if cfg.MakingCharges24K != want {
		t.Fatalf("嵌套字段应逐项合并, 实际 %+v", cfg.MakingCharges24K)
	}

	reloaded := NewService(store, "shop-1", zerolog.Nop())
	got, err := reloaded.Load(ctx)
	if err != nil {
		t.Fatalf("重新加载失败: %v", err)
	}
	if got.MakingCharges24K != want {
		t.Fatalf("存储中的嵌套对象丢失了兄弟字段: %+v", got.MakingCharges24K)
	}
}

func TestServiceWritesWholeNestedObject(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{}
	svc := NewService(store, "shop-1", zerolog.Nop())

	if _, err := svc.Update(ctx, Partial{"makingChargesSilver999": map[string]any{"type": "perGram", "value": 2, "title": "Polish"}}); err != nil {
		t.Fatalf("更新失败: %v", err)
	}
	if _, err := svc.Update(ctx, Partial{"makingChargesSilver999": map[string]any{"value": 3}}); err != nil {
		t.Fatalf("更新失败: %v", err)
	}

	last := store.sets[len(store.sets)-1]
	charge, ok := last["makingChargesSilver999"].(map[string]any)
	if !ok {
		t.Fatalf("写入值应为对象: %#v", last)
	}
	if charge["type"] != "perGram" || charge["title"] != "Polish" || charge["value"] != float64(3) {
		t.Fatalf("写入存储的应是合并后的完整对象: %#v", charge)
	}
	if len(last) != 1 {
		t.Fatalf("只应写入被修改的顶层键: %#v", last)
	}
}

func TestServiceRejectsFractionalInteger(t *testing.T) {
	svc := NewService(NewMemoryStore(), "shop-1", zerolog.Nop())
	if _, err := svc.Update(context.Background(), Partial{"priceDecimalPlaces": 1.5}); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("小数形式的整数字段应被拒绝, 实际 %v", err)
	}
	if got := svc.Current().PriceDecimalPlaces; got != Defaults().PriceDecimalPlaces {
		t.Fatalf("被拒绝的更新不应生效, 实际 %d", got)
	}
	cfg, err := svc.Update(context.Background(), Partial{"priceDecimalPlaces": 2.0})
	if err != nil || cfg.PriceDecimalPlaces != 2 {
		t.Fatalf("整数值应被接受: %v %+v", err, cfg.PriceDecimalPlaces)
	}
}

func TestServiceRejectsInvalidUpdate(t *testing.T) {
	svc := NewService(NewMemoryStore(), "shop-1", zerolog.Nop())

	if _, err := svc.Update(context.Background(), Partial{"priceDecimalPlaces": 4}); err == nil {
		t.Fatal("非法小数位应被拒绝")
	}
	if _, err := svc.Update(context.Background(), Partial{"goldMargin": 4}); !errors.Is(err, ErrUnknownField) {
		t.Fatalf("未知字段应被拒绝, 实际 %v", err)
	}
	if svc.Current().PriceDecimalPlaces != Defaults().PriceDecimalPlaces {
		t.Fatal("被拒绝的更新不应生效")
	}
}

func TestServiceResetSection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := NewService(store, "shop-1", zerolog.Nop())

	if _, err := svc.Update(ctx, Partial{
		"shopName":      "Kalyan",
		"logoBase64":    "bG9nbw==",
		"gold24kMargin": 75,
		"primaryColor":  "#000000",
	}); err != nil {
		t.Fatal(err)
	}

	cfg, err := svc.ResetSection(ctx, SectionProfile)
	if err != nil {
		t.Fatalf("ResetSection 不应报错: %v", err)
	}
	if cfg.ShopName != Defaults().ShopName || cfg.LogoBase64 != nil {
		t.Fatalf("profile 应恢复默认: %+v", cfg)
	}
	if cfg.Gold24KMargin != 75 || cfg.PrimaryColor != "#000000" {
		t.Fatalf("其他分区不应受影响: %+v", cfg)
	}

	doc, _, _ := store.Get(ctx, "shop-1")
	if v, ok := doc["logoBase64"]; !ok || v != nil {
		t.Fatalf("存储中的 logoBase64 应被清空: %#v", doc)
	}
	if doc["gold24kMargin"] != 75.0 {
		t.Fatalf("存储中的其他字段应保留: %#v", doc)
	}

	if _, err := svc.ResetSection(ctx, Section("layout")); !errors.Is(err, ErrUnknownSection) {
		t.Fatalf("未知分区应报错, 实际 %v", err)
	}
}

func TestServiceKeepsInMemoryConfigWhenPersistFails(t *testing.T) {
	store := &failingStore{setErr: errors.New("store offline")}
	svc := NewService(store, "shop-1", zerolog.Nop())

	cfg, err := svc.Update(context.Background(), Partial{"gold22kMargin": 40})
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("持久化失败应返回 ErrPersist, 实际 %v", err)
	}
	if cfg.Gold22KMargin != 40 || svc.Current().Gold22KMargin != 40 {
		t.Fatal("内存配置应保持为最新值")
	}
	if len(store.sets) != 1 || len(store.sets[0]) != 1 {
		t.Fatalf("应只写入部分字段: %#v", store.sets)
	}
}

func TestServiceLoadFailureKeepsDefaults(t *testing.T) {
	svc := NewService(&failingStore{getErr: errors.New("timeout")}, "shop-1", zerolog.Nop())
	cfg, err := svc.Load(context.Background())
	if err == nil {
		t.Fatal("读取失败应返回错误")
	}
	if cfg.ShopName != Defaults().ShopName {
		t.Fatal("读取失败时应保留默认值")
	}
}

func TestServiceFreezeAndUnfreeze(t *testing.T) {
	ctx := context.Background()
	svc := NewService(nil, "shop-1", zerolog.Nop())
	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	cfg, err := svc.Freeze(ctx, at)
	if err != nil {
		t.Fatalf("Freeze 不应报错: %v", err)
	}
	if !cfg.RatesFrozen || cfg.FrozenAt == nil || !cfg.FrozenAt.Equal(at) {
		t.Fatalf("冻结状态错误: %+v", cfg)
	}

	cfg, err = svc.Unfreeze(ctx)
	if err != nil {
		t.Fatalf("Unfreeze 不应报错: %v", err)
	}
	if cfg.RatesFrozen || cfg.FrozenAt != nil {
		t.Fatalf("解冻后应清空 frozenAt: %+v", cfg)
	}
}
