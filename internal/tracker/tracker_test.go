package tracker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func price(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func TestTrackerSequence(t *testing.T) {
	clock := NewManualClock()
	tr := New(WithClock(clock))
	defer tr.Dispose()

	events := 0
	for _, v := range []int64{100, 100, 150} {
		if tr.Observe(price(v)) {
			events++
		}
	}
	if events != 1 {
		t.Fatalf("期望 1 次变化, 实际 %d", events)
	}

	info := tr.Current()
	if !info.HasChanged || !info.IsIncrease || info.IsDecrease {
		t.Fatalf("150 之后应为上涨: %+v", info)
	}
	if !info.Change.Equal(price(50)) || !info.PercentageChange.Equal(price(50)) {
		t.Fatalf("变化值错误: %+v", info)
	}

	if tr.Observe(price(150)) {
		t.Fatal("相同价格不应触发变化")
	}
	if clock.Pending() != 1 {
		t.Fatalf("相同价格不应重新调度, pending=%d", clock.Pending())
	}

	clock.Advance(999 * time.Millisecond)
	if !tr.Current().HasChanged {
		t.Fatal("1000ms 前不应复位")
	}
	clock.Advance(time.Millisecond)
	if got := tr.Current(); got.HasChanged || !got.Change.IsZero() || !got.PercentageChange.IsZero() {
		t.Fatalf("1000ms 后应复位: %+v", got)
	}

	if !tr.Observe(price(90)) {
		t.Fatal("90 应触发变化")
	}
	info = tr.Current()
	if !info.IsDecrease || info.IsIncrease || !info.Change.Equal(price(-60)) {
		t.Fatalf("90 之后应为下跌 -60: %+v", info)
	}
	if !info.PercentageChange.Equal(price(-40)) {
		t.Fatalf("百分比应为 -40, 实际 %s", info.PercentageChange)
	}

	clock.Advance(time.Second)
	if tr.Current().HasChanged {
		t.Fatal("第二次变化 1000ms 后应复位")
	}
}

func TestTrackerFirstObservationIsBaseline(t *testing.T) {
	clock := NewManualClock()
	tr := New(WithClock(clock))

	if tr.Observe(price(0)) {
		t.Fatal("零价格不应触发")
	}
	if tr.Observe(price(100)) {
		t.Fatal("首个非零价格只作为基线")
	}
	if clock.Pending() != 0 {
		t.Fatal("基线不应调度计时器")
	}
	if !tr.Observe(price(110)) {
		t.Fatal("基线之后的变化应触发")
	}
	if got := tr.Current().Change; !got.Equal(price(10)) {
		t.Fatalf("变化应相对基线 100 计算, 实际 %s", got)
	}
}

func TestTrackerNewChangeSupersedesPendingReset(t *testing.T) {
	clock := NewManualClock()
	tr := New(WithClock(clock))

	tr.Observe(price(100))
	tr.Observe(price(110))
	clock.Advance(600 * time.Millisecond)
	tr.Observe(price(120))

	if clock.Pending() != 1 {
		t.Fatalf("只应保留一个计时器, 实际 %d", clock.Pending())
	}

	clock.Advance(600 * time.Millisecond)
	if !tr.Current().HasChanged {
		t.Fatal("旧计时器不应清除新的变化")
	}
	if !tr.Current().Change.Equal(price(10)) {
		t.Fatalf("应为最新一次的变化: %s", tr.Current().Change)
	}

	clock.Advance(400 * time.Millisecond)
	if tr.Current().HasChanged {
		t.Fatal("新计时器到期后应复位")
	}
}

func TestTrackerDisposeCancelsTimer(t *testing.T) {
	clock := NewManualClock()
	tr := New(WithClock(clock))

	tr.Observe(price(100))
	tr.Observe(price(105))
	tr.Dispose()

	if clock.Pending() != 0 {
		t.Fatalf("Dispose 后不应有挂起计时器, 实际 %d", clock.Pending())
	}
	if tr.Observe(price(200)) {
		t.Fatal("Dispose 后 Observe 应为空操作")
	}
}

func TestTrackerRealClock(t *testing.T) {
	tr := New(WithHideAfter(20 * time.Millisecond))
	defer tr.Dispose()

	tr.Observe(price(100))
	tr.Observe(price(101))
	if !tr.Current().HasChanged {
		t.Fatal("应标记变化")
	}

	deadline := time.Now().Add(2 * time.Second)
	for tr.Current().HasChanged {
		if time.Now().After(deadline) {
			t.Fatal("真实时钟下应自动复位")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
