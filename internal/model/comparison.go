package model

import "strings"

// CompareMode は勝敗判定と並び順に使う指標を表す。
type CompareMode string

const (
	// CompareByPlaytime は累計プレイ時間で比較する。
	CompareByPlaytime CompareMode = "playtime"
	// CompareByAchievements は解除済み実績数で比較する。
	CompareByAchievements CompareMode = "achievements"
)

// ParseCompareMode はクエリ文字列から比較モードを解析する。
// 空文字はプレイ時間モードとして扱う。"usage" はプレイ時間の別名。
func ParseCompareMode(s string) (CompareMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "playtime", "usage":
		return CompareByPlaytime, nil
	case "achievements":
		return CompareByAchievements, nil
	default:
		return "", NewInvalidCompareModeError(s)
	}
}

// Winner は共通ゲームごとの勝者を表す。
type Winner string

const (
	WinnerA   Winner = "A"
	WinnerB   Winner = "B"
	WinnerTie Winner = "tie"
)

// ComparedGame は両アカウントが所有するゲーム1件の比較結果。
// Comparatorのみが生成し、生成後は変更しない。
type ComparedGame struct {
	AppID         int    `json:"appid"`
	Name          string `json:"name"`
	PlaytimeA     int    `json:"playtime_a"`
	PlaytimeB     int    `json:"playtime_b"`
	AchievementsA int    `json:"achievements_a"`
	AchievementsB int    `json:"achievements_b"`
	Winner        Winner `json:"winner"`
}

// Metrics はモードに応じたA側・B側の比較値を返す。
func (c ComparedGame) Metrics(mode CompareMode) (int, int) {
	if mode == CompareByAchievements {
		return c.AchievementsA, c.AchievementsB
	}
	return c.PlaytimeA, c.PlaytimeB
}

// ComparisonResult は2つのライブラリの比較結果。
// リクエストごとに新規生成し、キャッシュしない。
type ComparisonResult struct {
	Overlap []ComparedGame `json:"overlap"`
	OnlyA   []Game         `json:"only_a"`
	OnlyB   []Game         `json:"only_b"`
}

// Summary は共通ゲームの勝敗集計。
type Summary struct {
	WinsA              int    `json:"wins_a"`
	WinsB              int    `json:"wins_b"`
	Ties               int    `json:"ties"`
	TotalPlaytimeA     int    `json:"total_playtime_a"`
	TotalPlaytimeB     int    `json:"total_playtime_b"`
	TotalAchievementsA int    `json:"total_achievements_a"`
	TotalAchievementsB int    `json:"total_achievements_b"`
	OverallWinner      Winner `json:"overall_winner"`
}
