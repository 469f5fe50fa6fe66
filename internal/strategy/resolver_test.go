// path: internal/strategy/resolver_test.go
package strategy

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/xipebhui/autopublish/internal/models"
)

type testLogger struct{}

func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}

type fixedCycles map[uuid.UUID]int

func (f fixedCycles) CountSuccessfulPublishes(ctx context.Context, configID, accountID uuid.UUID) (int, error) {
	return f[accountID], nil
}

var resultJSON = []byte(`{
	"success": true,
	"artifacts": {"video": "out/video.mp4", "thumbnail": "out/thumb.png"},
	"metadata": {"title": "Base Title", "description": "Base description", "tags": ["story"], "episode": 12}
}`)

func members(n int) []models.GroupMember {
	out := make([]models.GroupMember, n)
	for i := range out {
		out[i] = models.GroupMember{ID: uuid.New(), AccountID: uuid.New(), Rank: i}
	}
	return out
}

func payload(t *testing.T, v interface{}) pqtype.NullRawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("payload marshal: %v", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}

func TestResolveWithoutStrategyUsesBaseMetadata(t *testing.T) {
	r := NewResolver(nil, testLogger{})
	ms := members(2)
	task := &models.AutoPublishTask{ID: uuid.New()}

	out, err := r.Resolve(context.Background(), &models.PublishConfig{}, nil, nil, ms, task, resultJSON)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected one bundle per member, got %d", len(out))
	}
	for i, meta := range out {
		if meta.AccountID != ms[i].AccountID {
			t.Errorf("bundle %d bound to wrong account", i)
		}
		if meta.Title != "Base Title" || meta.VideoRef != "out/video.mp4" {
			t.Errorf("bundle %d lost base metadata: %+v", i, meta)
		}
	}
}

func TestResolveRejectsResultWithoutVideo(t *testing.T) {
	r := NewResolver(nil, testLogger{})
	_, err := r.Resolve(context.Background(), &models.PublishConfig{}, nil, nil, members(1),
		&models.AutoPublishTask{ID: uuid.New()}, []byte(`{"success":true}`))
	if err == nil {
		t.Fatal("expected error for result with no video artifact")
	}
}

func TestWeightedResolutionIsDeterministic(t *testing.T) {
	r := NewResolver(nil, testLogger{})
	strat := &models.Strategy{ID: uuid.New(), Type: models.StrategyWeighted, Active: true}
	assignments := []models.StrategyAssignment{
		{VariantName: "a", Weight: 1},
		{VariantName: "b", Weight: 3},
	}
	ms := members(4)
	task := &models.AutoPublishTask{ID: uuid.New()}

	first, err := r.Resolve(context.Background(), &models.PublishConfig{}, strat, assignments, ms, task, resultJSON)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := r.Resolve(context.Background(), &models.PublishConfig{}, strat, assignments, ms, task, resultJSON)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	for i := range first {
		if first[i].VariantName != second[i].VariantName {
			t.Fatalf("same (task, member) resolved differently: %s vs %s",
				first[i].VariantName, second[i].VariantName)
		}
	}
}

func TestABTestForcesControlArm(t *testing.T) {
	r := NewResolver(nil, testLogger{})
	strat := &models.Strategy{ID: uuid.New(), Type: models.StrategyABTest, Active: true}
	// Control carries negligible weight, so sampling alone will rarely pick
	// it; the resolver must still guarantee one control arm.
	assignments := []models.StrategyAssignment{
		{VariantName: "control", Weight: 1, IsControl: true},
		{VariantName: "loud-title", Weight: 1000000},
	}
	ms := members(5)
	task := &models.AutoPublishTask{ID: uuid.New()}

	out, err := r.Resolve(context.Background(), &models.PublishConfig{}, strat, assignments, ms, task, resultJSON)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	controls := 0
	for _, meta := range out {
		if meta.IsControl {
			controls++
		}
	}
	if controls == 0 {
		t.Error("cohort has no control arm")
	}
}

func TestABTestWithoutControlIsRejected(t *testing.T) {
	r := NewResolver(nil, testLogger{})
	strat := &models.Strategy{ID: uuid.New(), Type: models.StrategyABTest, Active: true}
	assignments := []models.StrategyAssignment{{VariantName: "a", Weight: 1}}

	_, err := r.Resolve(context.Background(), &models.PublishConfig{}, strat, assignments, members(2),
		&models.AutoPublishTask{ID: uuid.New()}, resultJSON)
	if err == nil {
		t.Fatal("expected rejection of ab_test without control")
	}
}

func TestRoundRobinAdvancesWithCycle(t *testing.T) {
	ms := members(1)
	cycles := fixedCycles{ms[0].AccountID: 0}
	r := NewResolver(cycles, testLogger{})
	strat := &models.Strategy{ID: uuid.New(), Type: models.StrategyRoundRobin, Active: true}
	assignments := []models.StrategyAssignment{
		{VariantName: "v0"}, {VariantName: "v1"}, {VariantName: "v2"},
	}
	cfg := &models.PublishConfig{ID: uuid.New()}

	for want := 0; want < 4; want++ {
		out, err := r.Resolve(context.Background(), cfg, strat, assignments, ms,
			&models.AutoPublishTask{ID: uuid.New()}, resultJSON)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		wantVariant := assignments[want%3].VariantName
		if out[0].VariantName != wantVariant {
			t.Errorf("cycle %d picked %s, want %s", want, out[0].VariantName, wantVariant)
		}
		cycles[ms[0].AccountID]++
	}
}

func TestVariantOverlayRendersTemplates(t *testing.T) {
	r := NewResolver(nil, testLogger{})
	strat := &models.Strategy{ID: uuid.New(), Type: models.StrategyWeighted, Active: true}
	assignments := []models.StrategyAssignment{{
		VariantName: "episodic",
		Weight:      1,
		Payload: payload(t, map[string]interface{}{
			"title_template":       "EP{{metadata.episode}}: {{metadata.title}}",
			"description_template": "Watch: {{artifacts.video}}",
			"tags":                 []string{"story", "series"},
			"thumbnail_ref":        "alt/thumb.png",
		}),
	}}
	ms := members(1)

	out, err := r.Resolve(context.Background(), &models.PublishConfig{}, strat, assignments, ms,
		&models.AutoPublishTask{ID: uuid.New()}, resultJSON)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	meta := out[0]
	if meta.Title != "EP12: Base Title" {
		t.Errorf("title = %q", meta.Title)
	}
	if meta.Description != "Watch: out/video.mp4" {
		t.Errorf("description = %q", meta.Description)
	}
	if meta.ThumbnailRef != "alt/thumb.png" {
		t.Errorf("thumbnail = %q", meta.ThumbnailRef)
	}
	// tags merge and dedup
	if len(meta.Tags) != 2 || meta.Tags[0] != "story" || meta.Tags[1] != "series" {
		t.Errorf("tags = %v", meta.Tags)
	}
}

func TestRenderTemplateUnknownPathRendersEmpty(t *testing.T) {
	got := RenderTemplate("x{{metadata.missing}}y", resultJSON)
	if got != "xy" {
		t.Errorf("got %q, want xy", got)
	}
}
