package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/steamcompare/internal/model"
)

// --- モック ---

type mockSteamAPI struct {
	resolveFn      func(ctx context.Context, input string) (string, error)
	fetchGamesFn   func(ctx context.Context, steamID string) ([]model.Game, error)
	achievementsFn func(ctx context.Context, steamID string, appIDs []int) (map[int]int, error)

	mu                sync.Mutex
	achievementsCalls []string
}

func (m *mockSteamAPI) ResolveSteamID(ctx context.Context, input string) (string, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, input)
	}
	return input, nil
}

func (m *mockSteamAPI) FetchOwnedGames(ctx context.Context, steamID string) ([]model.Game, error) {
	return m.fetchGamesFn(ctx, steamID)
}

func (m *mockSteamAPI) FetchAchievementCounts(ctx context.Context, steamID string, appIDs []int) (map[int]int, error) {
	m.mu.Lock()
	m.achievementsCalls = append(m.achievementsCalls, steamID)
	m.mu.Unlock()
	if m.achievementsFn != nil {
		return m.achievementsFn(ctx, steamID, appIDs)
	}
	return map[int]int{}, nil
}

type recordingCollector struct {
	mu          sync.Mutex
	comparisons []string
}

func (r *recordingCollector) RecordSteamRequest(string, int, time.Duration) {}

func (r *recordingCollector) RecordSteamTransportError(string, time.Duration) {}

func (r *recordingCollector) RecordAchievementDegraded(int) {}

func (r *recordingCollector) RecordComparison(mode, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comparisons = append(r.comparisons, mode+"/"+outcome)
}

// --- ヘルパー ---

const (
	idA = "76561198000000001"
	idB = "76561198000000002"
)

func newTestService(api SteamAPI) (*Service, *recordingCollector) {
	collector := &recordingCollector{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewService(api, logger, collector), collector
}

func libraries(byID map[string][]model.Game) func(ctx context.Context, steamID string) ([]model.Game, error) {
	return func(ctx context.Context, steamID string) ([]model.Game, error) {
		games, ok := byID[steamID]
		if !ok {
			return nil, fmt.Errorf("unexpected steamID %s", steamID)
		}
		return games, nil
	}
}

func privateProfile(steamID string) error {
	return &model.FetchError{SteamID: steamID, Reason: model.ErrProfilePrivate.Error(), Err: model.ErrProfilePrivate}
}

// --- Library ---

func TestLibrary_SortsByPlaytime(t *testing.T) {
	api := &mockSteamAPI{
		resolveFn: func(ctx context.Context, input string) (string, error) {
			if input != "gaben" {
				t.Errorf("input = %q, want gaben", input)
			}
			return idA, nil
		},
		fetchGamesFn: libraries(map[string][]model.Game{
			idA: {
				{AppID: 1, Name: "Low", PlaytimeMinutes: 5},
				{AppID: 2, Name: "High", PlaytimeMinutes: 500},
				{AppID: 3, Name: "Mid", PlaytimeMinutes: 50},
			},
		}),
	}
	svc, _ := newTestService(api)

	report, err := svc.Library(context.Background(), "gaben")
	if err != nil {
		t.Fatalf("Library がエラーを返した: %v", err)
	}
	if report.SteamID != idA || report.GameCount != 3 {
		t.Errorf("report = %+v, want steamID %s with 3 games", report, idA)
	}
	if report.Games[0].AppID != 2 || report.Games[1].AppID != 3 || report.Games[2].AppID != 1 {
		t.Errorf("order = %+v, want [2 3 1]", report.Games)
	}
	if report.Warning != "" {
		t.Errorf("Warning = %q, want empty", report.Warning)
	}
}

func TestLibrary_EmptyHasWarning(t *testing.T) {
	api := &mockSteamAPI{fetchGamesFn: libraries(map[string][]model.Game{idA: {}})}
	svc, _ := newTestService(api)

	report, err := svc.Library(context.Background(), idA)
	if err != nil {
		t.Fatalf("Library がエラーを返した: %v", err)
	}
	if report.GameCount != 0 || len(report.Games) != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
	if !strings.Contains(report.Warning, "private or have no games") {
		t.Errorf("Warning = %q", report.Warning)
	}
}

func TestLibrary_PropagatesErrors(t *testing.T) {
	resolveErr := &model.ResolutionError{Input: "nobody", Reason: "No match"}
	api := &mockSteamAPI{
		resolveFn: func(ctx context.Context, input string) (string, error) {
			return "", resolveErr
		},
		fetchGamesFn: func(ctx context.Context, steamID string) ([]model.Game, error) {
			t.Error("解決に失敗した場合は取得してはならない")
			return nil, nil
		},
	}
	svc, _ := newTestService(api)

	_, err := svc.Library(context.Background(), "nobody")
	var re *model.ResolutionError
	if !errors.As(err, &re) {
		t.Errorf("err = %v, want *model.ResolutionError", err)
	}

	api = &mockSteamAPI{
		fetchGamesFn: func(ctx context.Context, steamID string) ([]model.Game, error) {
			return nil, privateProfile(steamID)
		},
	}
	svc, _ = newTestService(api)

	_, err = svc.Library(context.Background(), idA)
	if !model.IsProfilePrivate(err) {
		t.Errorf("err = %v, want private profile", err)
	}
}

// --- Compare ---

func TestCompare_PlaytimeMode(t *testing.T) {
	api := &mockSteamAPI{
		fetchGamesFn: libraries(map[string][]model.Game{
			idA: {{AppID: 10, Name: "X", PlaytimeMinutes: 100}},
			idB: {{AppID: 10, Name: "X", PlaytimeMinutes: 50}, {AppID: 20, Name: "Y", PlaytimeMinutes: 10}},
		}),
	}
	svc, collector := newTestService(api)

	report, err := svc.Compare(context.Background(), CompareRequest{InputA: idA, InputB: idB})
	if err != nil {
		t.Fatalf("Compare がエラーを返した: %v", err)
	}

	if report.Mode != model.CompareByPlaytime {
		t.Errorf("Mode = %q, want playtime", report.Mode)
	}
	if report.CountA != 1 || report.CountB != 2 {
		t.Errorf("counts = %d/%d, want 1/2", report.CountA, report.CountB)
	}
	if len(report.Result.Overlap) != 1 || report.Result.Overlap[0].Winner != model.WinnerA {
		t.Errorf("Overlap = %+v, want one game won by A", report.Result.Overlap)
	}
	if len(report.Result.OnlyB) != 1 || report.Result.OnlyB[0].AppID != 20 {
		t.Errorf("OnlyB = %+v", report.Result.OnlyB)
	}
	if report.Summary.WinsA != 1 || report.Summary.OverallWinner != model.WinnerA {
		t.Errorf("Summary = %+v", report.Summary)
	}
	if report.Partial() || report.Warning != "" {
		t.Errorf("report should be complete without warning: %+v", report)
	}
	if len(api.achievementsCalls) != 0 {
		t.Error("プレイ時間モードで実績を取得してはならない")
	}
	if len(collector.comparisons) != 1 || collector.comparisons[0] != "playtime/ok" {
		t.Errorf("comparisons = %v, want [playtime/ok]", collector.comparisons)
	}
}

func TestCompare_BothEmpty(t *testing.T) {
	api := &mockSteamAPI{fetchGamesFn: libraries(map[string][]model.Game{idA: {}, idB: {}})}
	svc, _ := newTestService(api)

	report, err := svc.Compare(context.Background(), CompareRequest{InputA: idA, InputB: idB, Mode: model.CompareByAchievements})
	if err != nil {
		t.Fatalf("Compare がエラーを返した: %v", err)
	}
	if len(report.Result.Overlap)+len(report.Result.OnlyA)+len(report.Result.OnlyB) != 0 {
		t.Errorf("Result = %+v, want empty", report.Result)
	}
	if report.Warning != warningBothEmpty {
		t.Errorf("Warning = %q, want both-empty note", report.Warning)
	}
	if report.Partial() {
		t.Error("空のライブラリはエラーとして扱ってはならない")
	}
	if len(api.achievementsCalls) != 0 {
		t.Error("空のライブラリに対して実績を取得してはならない")
	}
}

func TestCompare_OneSideEmpty(t *testing.T) {
	api := &mockSteamAPI{
		resolveFn: func(ctx context.Context, input string) (string, error) {
			if input == "friend" {
				return idB, nil
			}
			return input, nil
		},
		fetchGamesFn: libraries(map[string][]model.Game{
			idA: {{AppID: 1, Name: "G", PlaytimeMinutes: 3}},
			idB: {},
		}),
	}
	svc, _ := newTestService(api)

	report, err := svc.Compare(context.Background(), CompareRequest{InputA: idA, InputB: "friend", Mode: model.CompareByAchievements})
	if err != nil {
		t.Fatalf("Compare がエラーを返した: %v", err)
	}
	if report.Warning != "User B (friend) has no games. This could mean private profile or no games." {
		t.Errorf("Warning = %q", report.Warning)
	}
	if len(report.Result.OnlyA) != 1 {
		t.Errorf("OnlyA = %+v, want 1 game", report.Result.OnlyA)
	}
	if len(api.achievementsCalls) != 0 {
		t.Error("片側が空の場合は実績を取得してはならない")
	}
}

func TestCompare_PartialFailure(t *testing.T) {
	api := &mockSteamAPI{
		fetchGamesFn: func(ctx context.Context, steamID string) ([]model.Game, error) {
			if steamID == idB {
				return nil, privateProfile(steamID)
			}
			return []model.Game{
				{AppID: 1, Name: "One", PlaytimeMinutes: 90},
				{AppID: 2, Name: "Two", PlaytimeMinutes: 10},
			}, nil
		},
		achievementsFn: func(ctx context.Context, steamID string, appIDs []int) (map[int]int, error) {
			return map[int]int{1: 3, 2: 12}, nil
		},
	}
	svc, collector := newTestService(api)

	report, err := svc.Compare(context.Background(), CompareRequest{InputA: idA, InputB: idB, Mode: model.CompareByAchievements})
	if err != nil {
		t.Fatalf("片側の失敗で比較全体を失敗させてはならない: %v", err)
	}
	if !report.Partial() || len(report.Errors) != 1 {
		t.Fatalf("Errors = %v, want one entry", report.Errors)
	}
	msg := report.Errors[0]
	if !strings.HasPrefix(msg, "User B ("+idB+"): ") || !strings.Contains(msg, privateProfileHint) {
		t.Errorf("Errors[0] = %q", msg)
	}
	if report.CountA != 2 || report.CountB != 0 {
		t.Errorf("counts = %d/%d, want 2/0", report.CountA, report.CountB)
	}
	onlyA := report.Result.OnlyA
	if len(onlyA) != 2 || onlyA[0].AppID != 2 || onlyA[1].AppID != 1 {
		t.Fatalf("OnlyA = %+v, want achievements descending [2 1]", onlyA)
	}
	if onlyA[0].Achievements == nil || *onlyA[0].Achievements != 12 {
		t.Errorf("OnlyA[0].Achievements = %v, want 12", onlyA[0].Achievements)
	}
	if report.Warning != "" {
		t.Errorf("失敗した側を空のライブラリとして警告してはならない: %q", report.Warning)
	}
	if len(api.achievementsCalls) != 1 || api.achievementsCalls[0] != idA {
		t.Errorf("achievementsCalls = %v, want only the surviving side %s", api.achievementsCalls, idA)
	}
	if collector.comparisons[0] != "achievements/partial" {
		t.Errorf("comparisons = %v", collector.comparisons)
	}
}

func TestCompare_PartialResolutionFailureHasNoPrivateHint(t *testing.T) {
	api := &mockSteamAPI{
		resolveFn: func(ctx context.Context, input string) (string, error) {
			if input == "ghost" {
				return "", &model.ResolutionError{Input: input, Reason: "No match"}
			}
			return input, nil
		},
		fetchGamesFn: libraries(map[string][]model.Game{idB: {{AppID: 1, Name: "G"}}}),
	}
	svc, _ := newTestService(api)

	report, err := svc.Compare(context.Background(), CompareRequest{InputA: "ghost", InputB: idB})
	if err != nil {
		t.Fatalf("Compare がエラーを返した: %v", err)
	}
	if len(report.Errors) != 1 || report.Errors[0] != "User A (ghost): No match." {
		t.Errorf("Errors = %v", report.Errors)
	}
	if report.SteamIDA != "" || report.SteamIDB != idB {
		t.Errorf("steam ids = %q/%q", report.SteamIDA, report.SteamIDB)
	}
	if len(report.Result.OnlyB) != 1 {
		t.Errorf("OnlyB = %+v", report.Result.OnlyB)
	}
}

func TestCompare_BothFail(t *testing.T) {
	api := &mockSteamAPI{
		fetchGamesFn: func(ctx context.Context, steamID string) ([]model.Game, error) {
			return nil, privateProfile(steamID)
		},
	}
	svc, collector := newTestService(api)

	report, err := svc.Compare(context.Background(), CompareRequest{InputA: idA, InputB: idB})
	if report != nil {
		t.Errorf("report = %+v, want nil", report)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeBothProfilesFailed {
		t.Fatalf("err = %v, want BOTH_PROFILES_FAILED", err)
	}
	if !strings.Contains(apiErr.Message, "User A ("+idA+")") || !strings.Contains(apiErr.Message, "User B ("+idB+")") {
		t.Errorf("Message = %q, want both accounts named", apiErr.Message)
	}
	if collector.comparisons[0] != "playtime/failed" {
		t.Errorf("comparisons = %v", collector.comparisons)
	}
}

func TestCompare_OneSideFailureDoesNotCancelOther(t *testing.T) {
	api := &mockSteamAPI{
		fetchGamesFn: func(ctx context.Context, steamID string) ([]model.Game, error) {
			if steamID == idA {
				return nil, &model.FetchError{SteamID: steamID, StatusCode: 500, Reason: "Steam API error: 500 - boom"}
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", model.ErrCancelled, ctx.Err())
			case <-time.After(20 * time.Millisecond):
				return []model.Game{{AppID: 1, Name: "G"}}, nil
			}
		},
	}
	svc, _ := newTestService(api)

	report, err := svc.Compare(context.Background(), CompareRequest{InputA: idA, InputB: idB})
	if err != nil {
		t.Fatalf("Compare がエラーを返した: %v", err)
	}
	if report.CountB != 1 {
		t.Errorf("CountB = %d, want 1", report.CountB)
	}
}

func TestCompare_AchievementsMode(t *testing.T) {
	api := &mockSteamAPI{
		fetchGamesFn: libraries(map[string][]model.Game{
			idA: {{AppID: 1, Name: "Shared", PlaytimeMinutes: 999}, {AppID: 2, Name: "A only", PlaytimeMinutes: 1}},
			idB: {{AppID: 1, Name: "Shared", PlaytimeMinutes: 1}},
		}),
		achievementsFn: func(ctx context.Context, steamID string, appIDs []int) (map[int]int, error) {
			if steamID == idA {
				// appid 2 は欠落させて0扱いを確認する
				return map[int]int{1: 3}, nil
			}
			return map[int]int{1: 8}, nil
		},
	}
	svc, _ := newTestService(api)

	report, err := svc.Compare(context.Background(), CompareRequest{InputA: idA, InputB: idB, Mode: model.CompareByAchievements})
	if err != nil {
		t.Fatalf("Compare がエラーを返した: %v", err)
	}
	if len(api.achievementsCalls) != 2 {
		t.Errorf("achievement calls = %v, want both sides", api.achievementsCalls)
	}
	overlap := report.Result.Overlap
	if len(overlap) != 1 || overlap[0].AchievementsA != 3 || overlap[0].AchievementsB != 8 || overlap[0].Winner != model.WinnerB {
		t.Errorf("Overlap = %+v, want B winning 3 vs 8", overlap)
	}
	onlyA := report.Result.OnlyA
	if len(onlyA) != 1 || onlyA[0].Achievements == nil || *onlyA[0].Achievements != 0 {
		t.Errorf("OnlyA = %+v, want achievement count 0", onlyA)
	}
	if report.Summary.TotalAchievementsA != 3 || report.Summary.TotalAchievementsB != 8 {
		t.Errorf("Summary = %+v", report.Summary)
	}
}

func TestCompare_CancelledDuringFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	api := &mockSteamAPI{
		fetchGamesFn: func(ctx context.Context, steamID string) ([]model.Game, error) {
			cancel()
			return nil, fmt.Errorf("%w: %w", model.ErrCancelled, context.Canceled)
		},
	}
	svc, collector := newTestService(api)

	_, err := svc.Compare(ctx, CompareRequest{InputA: idA, InputB: idB})
	if !errors.Is(err, model.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		t.Error("キャンセルを上流の失敗として扱ってはならない")
	}
	if collector.comparisons[0] != "playtime/cancelled" {
		t.Errorf("comparisons = %v", collector.comparisons)
	}
}

func TestCompare_CancelledDuringEnrichment(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &mockSteamAPI{
		fetchGamesFn: libraries(map[string][]model.Game{
			idA: {{AppID: 1, Name: "G"}},
			idB: {{AppID: 1, Name: "G"}},
		}),
		achievementsFn: func(ctx context.Context, steamID string, appIDs []int) (map[int]int, error) {
			cancel()
			return map[int]int{1: 1}, nil
		},
	}
	svc, _ := newTestService(api)

	report, err := svc.Compare(ctx, CompareRequest{InputA: idA, InputB: idB, Mode: model.CompareByAchievements})
	if !errors.Is(err, model.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if report != nil {
		t.Errorf("キャンセル後に結果を返してはならない: %+v", report)
	}
}

func TestCompare_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := &mockSteamAPI{
		fetchGamesFn: libraries(map[string][]model.Game{idA: {}, idB: {}}),
	}
	svc, _ := newTestService(api)

	if _, err := svc.Compare(ctx, CompareRequest{InputA: idA, InputB: idB}); !errors.Is(err, model.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
}

func TestEnrichTargets(t *testing.T) {
	games := []model.Game{{AppID: 1}}
	fail := errors.New("failed")

	tests := []struct {
		name string
		a, b side
		want []string
	}{
		{"両側にゲームあり", side{label: "A", games: games}, side{label: "B", games: games}, []string{"A", "B"}},
		{"片側が空", side{label: "A", games: games}, side{label: "B"}, nil},
		{"Bが失敗", side{label: "A", games: games}, side{label: "B", err: fail}, []string{"A"}},
		{"Aが失敗", side{label: "A", err: fail}, side{label: "B", games: games}, []string{"B"}},
		{"失敗と空", side{label: "A", err: fail}, side{label: "B"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := tt.a, tt.b
			var got []string
			for _, sd := range enrichTargets(&a, &b) {
				got = append(got, sd.label)
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("enrichTargets = %v, want %v", got, tt.want)
			}
		})
	}
}
