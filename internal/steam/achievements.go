package steam

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/steamcompare/internal/model"
)

// playerAchievementsResponse はGetPlayerAchievementsのレスポンス。
type playerAchievementsResponse struct {
	PlayerStats *struct {
		GameName     string `json:"gameName"`
		Achievements []struct {
			APIName  string `json:"apiname"`
			Achieved int    `json:"achieved"`
		} `json:"achievements"`
	} `json:"playerstats"`
}

// FetchAchievementCounts は指定ゲーム群の解除済み実績数を取得する。
//
// appIDsは重複を除いたうえでAchievementBatchSize件ずつのバッチに分割する。
// バッチ内の呼び出しは並行に発行し、バッチ同士は順番に実行してバッチ間でAchievementBatchPauseだけ待機する。
// 1件の取得失敗（非2xx・トランスポートエラー・タイムアウト）はそのゲームを0件として扱い、他のゲームには影響しない。
// 返すマップは要求した全appIDを含む（失敗したものは0）。
//
// エラーを返すのは呼び出し元のキャンセル時（model.ErrCancelled）のみ。
// キャンセルを検知した時点で新しいバッチを開始せず、取得途中のバッチ結果も反映しない。
func (c *Client) FetchAchievementCounts(ctx context.Context, steamID string, appIDs []int) (map[int]int, error) {
	ids := uniqueAppIDs(appIDs)
	counts := make(map[int]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}

	start := time.Now()
	batchSize := c.config.AchievementBatchSize
	batches := 0

	for i := 0; i < len(ids); i += batchSize {
		if ctx.Err() != nil {
			return nil, cancelledError(ctx)
		}

		// バッチ間インターバル（初回は待たない）
		if i > 0 {
			if err := c.pause(ctx, c.config.AchievementBatchPause); err != nil {
				return nil, cancelledError(ctx)
			}
		}

		end := i + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[i:end]

		results := c.fetchAchievementBatch(ctx, steamID, batch)
		batches++

		// 取得結果を反映する前にキャンセルを確認する
		if ctx.Err() != nil {
			return nil, cancelledError(ctx)
		}
		for j, appID := range batch {
			counts[appID] = results[j]
		}
	}

	c.logger.Info("実績数の取得が完了しました",
		slog.String("steam_id", steamID),
		slog.Int("game_count", len(ids)),
		slog.Int("batch_count", batches),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return counts, nil
}

// fetchAchievementBatch はバッチ内の全ゲームの実績数を並行に取得する。
// 各goroutineは自分の添字にのみ書き込むため、結果スライスにロックは不要。
func (c *Client) fetchAchievementBatch(ctx context.Context, steamID string, batch []int) []int {
	results := make([]int, len(batch))
	var wg sync.WaitGroup

	for i, appID := range batch {
		wg.Add(1)
		go func(i, appID int) {
			defer wg.Done()

			count, err := c.fetchAchievementCount(ctx, steamID, appID)
			if err != nil {
				if !errors.Is(err, model.ErrCancelled) {
					c.logger.Warn("実績数の取得に失敗したため0件として扱います",
						slog.String("steam_id", steamID),
						slog.Int("appid", appID),
						slog.String("error", err.Error()),
					)
					c.metrics.RecordAchievementDegraded(appID)
				}
				return
			}
			results[i] = count
		}(i, appID)
	}

	wg.Wait()
	return results
}

// fetchAchievementCount は1ゲーム分の実績一覧を取得し、解除済みの件数を返す。
func (c *Client) fetchAchievementCount(ctx context.Context, steamID string, appID int) (int, error) {
	params := url.Values{}
	params.Set("steamid", steamID)
	params.Set("appid", strconv.Itoa(appID))
	params.Set("l", c.config.Language)

	var data playerAchievementsResponse
	if err := c.getJSON(ctx, endpointPlayerAchievements, playerAchievementsPath, params, &data); err != nil {
		return 0, err
	}

	if data.PlayerStats == nil {
		return 0, nil
	}

	unlocked := 0
	for _, a := range data.PlayerStats.Achievements {
		if a.Achieved == 1 {
			unlocked++
		}
	}
	return unlocked, nil
}

// uniqueAppIDs は出現順を保ったまま重複を除いたappIDを返す。
func uniqueAppIDs(appIDs []int) []int {
	seen := make(map[int]bool, len(appIDs))
	ids := make([]int, 0, len(appIDs))
	for _, id := range appIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
