// Package model はドメインモデルを定義する。
package model

import "fmt"

// Game はSteamアカウントが所有するゲーム1件を表す。
// AppIDが同一性を決める。1アカウントのコレクション内でAppIDは一意。
type Game struct {
	AppID           int    `json:"appid"`
	Name            string `json:"name"`
	PlaytimeMinutes int    `json:"playtime_forever"`
	// Achievements は解除済み実績数。未取得の場合はnil。
	Achievements *int `json:"achievement_count,omitempty"`
}

// AchievementCount は解除済み実績数を返す。未取得の場合は0を返す。
func (g Game) AchievementCount() int {
	if g.Achievements == nil {
		return 0
	}
	return *g.Achievements
}

// WithAchievements は実績数を設定したGameのコピーを返す。
func (g Game) WithAchievements(count int) Game {
	c := count
	g.Achievements = &c
	return g
}

// Metric はモードに応じた比較値を返す。
func (g Game) Metric(mode CompareMode) int {
	if mode == CompareByAchievements {
		return g.AchievementCount()
	}
	return g.PlaytimeMinutes
}

// PlaceholderName はゲーム名が欠落している場合の表示名を返す。
func PlaceholderName(appID int) string {
	return fmt.Sprintf("App %d", appID)
}
