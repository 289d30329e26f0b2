// Package compare は2つのゲームライブラリの比較処理を提供する。
// ネットワークや共有状態を持たない純粋な関数のみで構成する。
package compare

import (
	"sort"

	"github.com/hitoshi/steamcompare/internal/model"
)

// Compare は2つのライブラリを比較し、共通ゲームと片方のみのゲームに分類する。
//
// 共通ゲームの勝者はmodeで選んだ指標の大小で決める（等しい場合は引き分け）。
// overlapは両者の指標の合計の降順、onlyA/onlyBはそれぞれの指標の降順に並べる。
// 同値の要素は入力順を保つ。
// 入力スライスは変更せず、結果は入力と領域を共有しない。
func Compare(a, b []model.Game, mode model.CompareMode) model.ComparisonResult {
	gamesA := dedupe(a)
	gamesB := dedupe(b)

	byIDA := indexByAppID(gamesA)
	byIDB := indexByAppID(gamesB)

	result := model.ComparisonResult{
		Overlap: make([]model.ComparedGame, 0),
		OnlyA:   make([]model.Game, 0),
		OnlyB:   make([]model.Game, 0),
	}

	for _, ga := range gamesA {
		gb, ok := byIDB[ga.AppID]
		if !ok {
			result.OnlyA = append(result.OnlyA, copyGame(ga))
			continue
		}
		cg := model.ComparedGame{
			AppID:         ga.AppID,
			Name:          ga.Name,
			PlaytimeA:     ga.PlaytimeMinutes,
			PlaytimeB:     gb.PlaytimeMinutes,
			AchievementsA: ga.AchievementCount(),
			AchievementsB: gb.AchievementCount(),
		}
		cg.Winner = decideWinner(cg.Metrics(mode))
		result.Overlap = append(result.Overlap, cg)
	}

	for _, gb := range gamesB {
		if _, ok := byIDA[gb.AppID]; !ok {
			result.OnlyB = append(result.OnlyB, copyGame(gb))
		}
	}

	sort.SliceStable(result.Overlap, func(i, j int) bool {
		ai, bi := result.Overlap[i].Metrics(mode)
		aj, bj := result.Overlap[j].Metrics(mode)
		return ai+bi > aj+bj
	})
	sortByMetric(result.OnlyA, mode)
	sortByMetric(result.OnlyB, mode)

	return result
}

// SortGames はmodeの指標の降順に並べたコピーを返す。入力は変更しない。
func SortGames(games []model.Game, mode model.CompareMode) []model.Game {
	sorted := make([]model.Game, 0, len(games))
	for _, g := range games {
		sorted = append(sorted, copyGame(g))
	}
	sortByMetric(sorted, mode)
	return sorted
}

// Summarize は共通ゲームの勝敗と合計値を集計する。
// 総合勝者は勝利数の多い側。勝利数が同じ場合は引き分け。
func Summarize(result model.ComparisonResult, mode model.CompareMode) model.Summary {
	var s model.Summary
	for _, cg := range result.Overlap {
		switch decideWinner(cg.Metrics(mode)) {
		case model.WinnerA:
			s.WinsA++
		case model.WinnerB:
			s.WinsB++
		default:
			s.Ties++
		}
		s.TotalPlaytimeA += cg.PlaytimeA
		s.TotalPlaytimeB += cg.PlaytimeB
		s.TotalAchievementsA += cg.AchievementsA
		s.TotalAchievementsB += cg.AchievementsB
	}
	s.OverallWinner = decideWinner(s.WinsA, s.WinsB)
	return s
}

func decideWinner(a, b int) model.Winner {
	switch {
	case a > b:
		return model.WinnerA
	case b > a:
		return model.WinnerB
	default:
		return model.WinnerTie
	}
}

func sortByMetric(games []model.Game, mode model.CompareMode) {
	sort.SliceStable(games, func(i, j int) bool {
		return games[i].Metric(mode) > games[j].Metric(mode)
	})
}

// dedupe は同じAppIDの重複を後勝ちで1件にまとめる。位置は最初の出現位置を保つ。
func dedupe(games []model.Game) []model.Game {
	out := make([]model.Game, 0, len(games))
	pos := make(map[int]int, len(games))
	for _, g := range games {
		if i, ok := pos[g.AppID]; ok {
			out[i] = g
			continue
		}
		pos[g.AppID] = len(out)
		out = append(out, g)
	}
	return out
}

func indexByAppID(games []model.Game) map[int]model.Game {
	m := make(map[int]model.Game, len(games))
	for _, g := range games {
		m[g.AppID] = g
	}
	return m
}

// copyGame は実績数のポインタも含めて複製する。
func copyGame(g model.Game) model.Game {
	if g.Achievements != nil {
		return g.WithAchievements(*g.Achievements)
	}
	return g
}
