// Package library は識別子の解決・所有ゲーム取得・実績付与・比較を組み合わせた
// ライブラリ閲覧と比較のユースケースを提供する。
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/steamcompare/internal/compare"
	"github.com/hitoshi/steamcompare/internal/metrics"
	"github.com/hitoshi/steamcompare/internal/model"
)

// SteamAPI はSteam Web APIへのアクセスを抽象化するインターフェース。
// steam.Clientが実装する。
type SteamAPI interface {
	ResolveSteamID(ctx context.Context, input string) (string, error)
	FetchOwnedGames(ctx context.Context, steamID string) ([]model.Game, error)
	FetchAchievementCounts(ctx context.Context, steamID string, appIDs []int) (map[int]int, error)
}

// 比較結果のメトリクスに記録する結果区分
const (
	outcomeOK        = "ok"
	outcomePartial   = "partial"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

const (
	warningLibraryEmpty = "No games found. This profile may be private or have no games. Please ensure game details are set to public in Steam settings."
	warningBothEmpty    = "Both profiles have no games. This could mean private profiles or no games. Please ensure game details are set to public in Steam settings."
	privateProfileHint  = "Please ask them to make their game details public."
)

// CompareRequest は比較リクエストの入力。
type CompareRequest struct {
	InputA string
	InputB string
	Mode   model.CompareMode
}

// CompareReport は比較の結果。片側のみ失敗した場合も生成される。
type CompareReport struct {
	Mode     model.CompareMode
	SteamIDA string // 解決に失敗した場合は空
	SteamIDB string
	CountA   int
	CountB   int
	Result   model.ComparisonResult
	Summary  model.Summary
	// Warning は空のライブラリに対する情報メッセージ。エラーではない。
	Warning string
	// Errors は取得に失敗した側ごとの説明。両側成功時は空。
	Errors []string
}

// Partial は片側の取得に失敗した部分的な結果かどうかを返す。
func (r *CompareReport) Partial() bool {
	return len(r.Errors) > 0
}

// LibraryReport は1アカウント分のライブラリ閲覧結果。
type LibraryReport struct {
	SteamID   string
	GameCount int
	Games     []model.Game // プレイ時間の降順
	Warning   string
}

// Service はライブラリ閲覧と比較のサービス層。
type Service struct {
	steam   SteamAPI
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(steam SteamAPI, logger *slog.Logger, collector metrics.MetricsCollector) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		steam:   steam,
		logger:  logger,
		metrics: collector,
	}
}

// Library は1アカウントの所有ゲームをプレイ時間の降順で返す。
// 解決・取得のエラー（*model.ResolutionError, *model.FetchError, model.ErrCancelled）はそのまま返す。
func (s *Service) Library(ctx context.Context, input string) (*LibraryReport, error) {
	steamID, err := s.steam.ResolveSteamID(ctx, input)
	if err != nil {
		return nil, err
	}

	games, err := s.steam.FetchOwnedGames(ctx, steamID)
	if err != nil {
		return nil, err
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCancelled, ctx.Err())
	}

	report := &LibraryReport{
		SteamID:   steamID,
		GameCount: len(games),
		Games:     compare.SortGames(games, model.CompareByPlaytime),
	}
	if len(games) == 0 {
		report.Warning = warningLibraryEmpty
	}

	s.logger.Info("ライブラリを取得しました",
		slog.String("steam_id", steamID),
		slog.Int("game_count", report.GameCount),
	)

	return report, nil
}

// side は比較の片側の取得状態。各goroutineは自分のsideにのみ書き込む。
type side struct {
	label   string
	input   string
	steamID string
	games   []model.Game
	err     error
}

// failureMessage はユーザーに表示する失敗理由を返す。
func (sd *side) failureMessage() string {
	msg := fmt.Sprintf("User %s (%s): %s.", sd.label, sd.input, sd.err.Error())
	if model.IsProfilePrivate(sd.err) {
		msg += " " + privateProfileHint
	}
	return msg
}

// Compare は2アカウントのライブラリを比較する。
//
// 両アカウントの解決と取得は並行に行い、片側の失敗はもう片側を中断しない。
// 両側とも失敗した場合は*model.APIError（BOTH_PROFILES_FAILED）を返す。
// 片側のみ失敗した場合は成功した側のゲームを含む部分的な結果とErrorsを返す。
// 実績モードでは両側にゲームがある場合に両側の実績数を並行に取得する。
// 片側のみ失敗した場合は成功した側にゲームがあればその側の実績数を取得する。
// 呼び出し元のキャンセル時はmodel.ErrCancelledを返す。
func (s *Service) Compare(ctx context.Context, req CompareRequest) (*CompareReport, error) {
	start := time.Now()
	mode := req.Mode
	if mode == "" {
		mode = model.CompareByPlaytime
	}

	a := &side{label: "A", input: req.InputA}
	b := &side{label: "B", input: req.InputB}

	if err := s.loadSides(ctx, a, b); err != nil {
		s.metrics.RecordComparison(string(mode), outcomeCancelled)
		return nil, err
	}

	if a.err != nil && b.err != nil {
		s.logger.Warn("両アカウントの取得に失敗しました",
			slog.String("input_a", a.input),
			slog.String("error_a", a.err.Error()),
			slog.String("input_b", b.input),
			slog.String("error_b", b.err.Error()),
		)
		s.metrics.RecordComparison(string(mode), outcomeFailed)
		return nil, model.NewBothProfilesFailedError(a.failureMessage(), b.failureMessage())
	}

	report := &CompareReport{
		Mode:     mode,
		SteamIDA: a.steamID,
		SteamIDB: b.steamID,
		CountA:   len(a.games),
		CountB:   len(b.games),
	}

	for _, sd := range []*side{a, b} {
		if sd.err != nil {
			s.logger.Warn("片側のアカウントの取得に失敗したため部分的な結果を返します",
				slog.String("side", sd.label),
				slog.String("input", sd.input),
				slog.String("error", sd.err.Error()),
			)
			report.Errors = append(report.Errors, sd.failureMessage())
		}
	}

	report.Warning = emptyWarning(a, b)

	if mode == model.CompareByAchievements {
		if targets := enrichTargets(a, b); len(targets) > 0 {
			if err := s.enrich(ctx, targets...); err != nil {
				s.metrics.RecordComparison(string(mode), outcomeCancelled)
				return nil, err
			}
		}
	}

	// 結果を確定する前にキャンセルを確認する
	if ctx.Err() != nil {
		s.metrics.RecordComparison(string(mode), outcomeCancelled)
		return nil, fmt.Errorf("%w: %w", model.ErrCancelled, ctx.Err())
	}

	report.Result = compare.Compare(a.games, b.games, mode)
	report.Summary = compare.Summarize(report.Result, mode)

	outcome := outcomeOK
	if report.Partial() {
		outcome = outcomePartial
	}
	s.metrics.RecordComparison(string(mode), outcome)

	s.logger.Info("ライブラリの比較が完了しました",
		slog.String("compare_by", string(mode)),
		slog.Int("count_a", report.CountA),
		slog.Int("count_b", report.CountB),
		slog.Int("overlap", len(report.Result.Overlap)),
		slog.String("outcome", outcome),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return report, nil
}

// loadSides は両側の解決と取得を並行に行う。
// 各側の失敗はsideに記録し、返すエラーはキャンセルのみ。
func (s *Service) loadSides(ctx context.Context, sides ...*side) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sd := range sides {
		sd := sd
		g.Go(func() error {
			steamID, err := s.steam.ResolveSteamID(gctx, sd.input)
			if err == nil {
				sd.steamID = steamID
				sd.games, err = s.steam.FetchOwnedGames(gctx, steamID)
			}
			if err != nil {
				if errors.Is(err, model.ErrCancelled) {
					return err
				}
				sd.games = nil
				sd.err = err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", model.ErrCancelled, ctx.Err())
	}
	return nil
}

// enrich は両側の実績数を並行に取得し、ゲームに付与する。
// 取得結果に含まれないappIDは0として扱う。
func (s *Service) enrich(ctx context.Context, sides ...*side) error {
	counts := make([]map[int]int, len(sides))

	g, gctx := errgroup.WithContext(ctx)
	for i, sd := range sides {
		i, sd := i, sd
		g.Go(func() error {
			appIDs := make([]int, len(sd.games))
			for j, game := range sd.games {
				appIDs[j] = game.AppID
			}
			m, err := s.steam.FetchAchievementCounts(gctx, sd.steamID, appIDs)
			if err != nil {
				return err
			}
			counts[i] = m
			return nil
		})
	}

	// FetchAchievementCountsが返すエラーはキャンセルのみ
	if err := g.Wait(); err != nil {
		return err
	}

	// 付与する前にキャンセルを確認する
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", model.ErrCancelled, ctx.Err())
	}

	for i, sd := range sides {
		enriched := make([]model.Game, len(sd.games))
		for j, game := range sd.games {
			enriched[j] = game.WithAchievements(counts[i][game.AppID])
		}
		sd.games = enriched
	}
	return nil
}

// enrichTargets は実績数を取得する側を返す。
// 両側成功時はどちらかが空なら取得しない。片側失敗時は成功した側が空でなければ取得する。
func enrichTargets(a, b *side) []*side {
	switch {
	case a.err == nil && b.err == nil:
		if len(a.games) > 0 && len(b.games) > 0 {
			return []*side{a, b}
		}
	case a.err == nil && len(a.games) > 0:
		return []*side{a}
	case b.err == nil && len(b.games) > 0:
		return []*side{b}
	}
	return nil
}

// emptyWarning は空のライブラリに対する情報メッセージを返す。
// 取得に失敗した側はErrorsで報告するため対象外。
func emptyWarning(a, b *side) string {
	emptyA := a.err == nil && len(a.games) == 0
	emptyB := b.err == nil && len(b.games) == 0

	switch {
	case emptyA && emptyB:
		return warningBothEmpty
	case emptyA:
		return fmt.Sprintf("User A (%s) has no games. This could mean private profile or no games.", a.input)
	case emptyB:
		return fmt.Sprintf("User B (%s) has no games. This could mean private profile or no games.", b.input)
	default:
		return ""
	}
}
