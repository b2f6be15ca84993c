package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func sampleNote() Notification {
	return Notification{
		Bucket:        time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
		ShopName:      "Lakshmi Jewellers",
		Purity:        "gold_24k",
		Label:         "24K Gold",
		PreviousPrice: decimal.NewFromInt(72000),
		CurrentPrice:  decimal.NewFromInt(73500),
		ChangePct:     decimal.RequireFromString("2.0833"),
		ThresholdPct:  decimal.NewFromInt(1),
		Direction:     DirectionUp,
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Errorf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	text := received["text"]
	for _, want := range []string{"Lakshmi Jewellers", "24K Gold", "₹72,000", "₹73,500", "2.083%"} {
		if !strings.Contains(text, want) {
			t.Fatalf("消息应包含 %q: %s", want, text)
		}
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNote()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context, Notification) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	m := Multi{NewLogNotifier(testLogger()), failingNotifier{err: boom}}
	if err := m.Notify(context.Background(), sampleNote()); !errors.Is(err, boom) {
		t.Fatalf("应返回子告警器错误, 实际 %v", err)
	}
	if err := (Multi{NewLogNotifier(testLogger())}).Notify(context.Background(), sampleNote()); err != nil {
		t.Fatalf("日志告警不应报错: %v", err)
	}
}

func TestDetectMoves(t *testing.T) {
	prev := map[string]decimal.Decimal{
		"gold_24k":   decimal.NewFromInt(72000),
		"gold_22k":   decimal.NewFromInt(66000),
		"silver_999": decimal.NewFromInt(90),
		"silver_925": decimal.Zero,
	}
	curr := map[string]decimal.Decimal{
		"gold_24k":   decimal.NewFromInt(73500),
		"gold_22k":   decimal.NewFromInt(66100),
		"silver_999": decimal.NewFromInt(88),
		"silver_925": decimal.NewFromInt(83),
	}

	moves := DetectMoves(prev, curr, decimal.NewFromInt(1))
	if len(moves) != 2 {
		t.Fatalf("应检测到 2 个异动, 实际 %+v", moves)
	}
	if moves[0].Purity != "gold_24k" || moves[0].Direction != DirectionUp {
		t.Fatalf("黄金异动错误: %+v", moves[0])
	}
	if moves[1].Purity != "silver_999" || moves[1].Direction != DirectionDown {
		t.Fatalf("白银异动错误: %+v", moves[1])
	}
}

func TestCooldown(t *testing.T) {
	c := NewCooldown(30 * time.Minute)
	now := time.Now()
	move := Move{Purity: "gold_24k", Direction: DirectionUp}

	if !c.Allow(move, now) {
		t.Fatal("首次告警应放行")
	}
	if c.Allow(move, now.Add(10*time.Minute)) {
		t.Fatal("冷却期内应抑制")
	}
	if !c.Allow(Move{Purity: "gold_24k", Direction: DirectionDown}, now.Add(10*time.Minute)) {
		t.Fatal("反方向不受冷却影响")
	}
	if !c.Allow(move, now.Add(31*time.Minute)) {
		t.Fatal("冷却期后应放行")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
