package risk

import (
	"context"
	"testing"
	"time"
)

func TestAggregateLevels(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{0, LevelLow},
		{15, LevelLow},
		{29.9, LevelLow},
		{30, LevelMedium},
		{59, LevelMedium},
		{60, LevelHigh},
		{120, LevelHigh}, // uncapped score still maps to high without intel
	}
	for _, tt := range tests {
		v := Aggregate(Breakdown{"x": tt.score})
		if v.Level != tt.want {
			t.Errorf("score %v: level = %v, want %v", tt.score, v.Level, tt.want)
		}
		if v.Score != tt.score {
			t.Errorf("score %v: got %v", tt.score, v.Score)
		}
	}
}

func TestScoreEqualsBreakdownSum(t *testing.T) {
	b := Breakdown{"a": 20, "b": 0, "c": 15, "d": 40}
	v := Aggregate(b)
	if v.Score != 75 {
		t.Errorf("score = %v, want 75", v.Score)
	}
}

func TestCombineIntelDominance(t *testing.T) {
	tests := []struct {
		name      string
		heuristic float64
		tier      Level
		wantLevel Level
	}{
		{"critical tier overrides low score", 0, LevelCritical, LevelCritical},
		{"high tier overrides low score", 0, LevelHigh, LevelHigh},
		{"combined score reaches critical", 85, LevelLow, LevelCritical},
		{"combined score reaches high", 65, LevelLow, LevelHigh},
		{"medium tier adds points", 0, LevelMedium, LevelMedium},
		{"medium tier plus heuristics escalates", 45, LevelMedium, LevelCritical}, // 45+40=85
		{"clean intel, clean wallet", 10, LevelLow, LevelLow},
	}
	for _, tt := range tests {
		v := &Verdict{Score: tt.heuristic}
		_, level := Combine(v, tt.tier)
		if level != tt.wantLevel {
			t.Errorf("%s: level = %v, want %v", tt.name, level, tt.wantLevel)
		}
	}
}

func TestCombineScoreAddsIntelPoints(t *testing.T) {
	v := &Verdict{Score: 20}
	combined, _ := Combine(v, LevelHigh)
	if combined != 95 {
		t.Errorf("combined = %v, want 95", combined)
	}
}

func TestAssessRecordsAudit(t *testing.T) {
	store := NewMemoryStore()
	engine := NewEngine(nil).WithStore(store)

	in := input(incoming(50000, "0xcleanco", testNow.Add(-30*24*time.Hour)))
	verdict := engine.Assess(context.Background(), "0xSubject", in)
	if verdict.Score != 15 {
		t.Fatalf("score = %v, want 15", verdict.Score)
	}

	// Recording is async; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := store.ListByAddress(context.Background(), "0xsubject", 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) == 1 {
			if got[0].Score != 15 || got[0].Level != LevelLow {
				t.Errorf("recorded assessment = %+v", got[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("assessment was never recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMemoryStoreLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		a := &Assessment{ID: "a", Address: "0xabc", Score: float64(i), Breakdown: Breakdown{}}
		if err := store.Record(ctx, a); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := store.ListByAddress(ctx, "0xABC", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d assessments, want 3", len(got))
	}
	// Most recent first.
	if got[0].Score != 4 {
		t.Errorf("first result score = %v, want 4", got[0].Score)
	}
}

func TestEngineHistory(t *testing.T) {
	bare := NewEngine(nil)
	if bare.HasStore() {
		t.Error("engine without store reports HasStore true")
	}
	got, err := bare.History(context.Background(), "0xabc", 10)
	if err != nil || got != nil {
		t.Errorf("History without store = (%v, %v), want (nil, nil)", got, err)
	}

	store := NewMemoryStore()
	e := NewEngine(nil).WithStore(store)
	if !e.HasStore() {
		t.Error("engine with store reports HasStore false")
	}
	a := &Assessment{ID: "risk_x", Address: "0xabc", Score: 20, Level: LevelLow, Breakdown: Breakdown{}}
	if err := store.Record(context.Background(), a); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err = e.History(context.Background(), "0xABC", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 1 || got[0].ID != "risk_x" {
		t.Errorf("history = %+v, want the recorded assessment", got)
	}
}
