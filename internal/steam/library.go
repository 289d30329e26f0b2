package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hitoshi/steamcompare/internal/model"
)

// ownedGamesResponse はGetOwnedGamesのレスポンス。
// responseエンベロープの有無が非公開プロフィールの判定に使われるためポインタで受ける。
type ownedGamesResponse struct {
	Response *struct {
		GameCount int               `json:"game_count"`
		Games     []json.RawMessage `json:"games"`
	} `json:"response"`
}

// ownedGame はgames配列の1要素。欠落を判定するため全フィールドをポインタで受ける。
type ownedGame struct {
	AppID           *int    `json:"appid"`
	Name            *string `json:"name"`
	PlaytimeForever *int    `json:"playtime_forever"`
}

// FetchOwnedGames は指定SteamID64の所有ゲーム一覧を取得する。
// 1回の呼び出しで全件を返す（ページネーションなし）。
//
// レスポンスにresponseエンベロープが無い場合は非公開プロフィールとして*model.FetchErrorを返す。
// エンベロープがあり空の一覧の場合はエラーではなく空のスライスを返す。
// appidが数値でない要素はログに記録して読み飛ばす。同じappidが重複した場合は後勝ち。
func (c *Client) FetchOwnedGames(ctx context.Context, steamID string) ([]model.Game, error) {
	if !IsSteamID64(steamID) {
		return nil, &model.FetchError{
			SteamID: steamID,
			Reason:  fmt.Sprintf("invalid SteamID64: %q", steamID),
		}
	}

	params := url.Values{}
	params.Set("steamid", steamID)
	params.Set("include_appinfo", "1")
	params.Set("format", "json")

	var data ownedGamesResponse
	if err := c.getJSON(ctx, endpointOwnedGames, ownedGamesPath, params, &data); err != nil {
		if errors.Is(err, model.ErrCancelled) {
			return nil, err
		}
		fetchErr := &model.FetchError{SteamID: steamID, Reason: err.Error(), Err: err}
		var se *statusError
		if errors.As(err, &se) {
			fetchErr.StatusCode = se.StatusCode
			fetchErr.Reason = fmt.Sprintf("Steam API error: %d - %s", se.StatusCode, se.Body)
		}
		return nil, fetchErr
	}

	if data.Response == nil {
		c.logger.Warn("所有ゲーム一覧のレスポンスにエンベロープがありません",
			slog.String("steam_id", steamID),
		)
		return nil, &model.FetchError{
			SteamID: steamID,
			Reason:  model.ErrProfilePrivate.Error(),
			Err:     model.ErrProfilePrivate,
		}
	}

	if data.Response.GameCount == 0 && len(data.Response.Games) == 0 {
		c.logger.Info("所有ゲームが0件です（非公開またはゲーム未所有）",
			slog.String("steam_id", steamID),
		)
		return []model.Game{}, nil
	}

	games := make([]model.Game, 0, len(data.Response.Games))
	index := make(map[int]int, len(data.Response.Games))
	skipped := 0

	for i, raw := range data.Response.Games {
		var g ownedGame
		if err := json.Unmarshal(raw, &g); err != nil || g.AppID == nil {
			skipped++
			c.logger.Warn("不正なゲーム要素を読み飛ばします",
				slog.String("steam_id", steamID),
				slog.Int("position", i),
			)
			continue
		}

		game := model.Game{
			AppID: *g.AppID,
			Name:  model.PlaceholderName(*g.AppID),
		}
		if g.Name != nil && *g.Name != "" {
			game.Name = *g.Name
		}
		if g.PlaytimeForever != nil && *g.PlaytimeForever > 0 {
			game.PlaytimeMinutes = *g.PlaytimeForever
		}

		if pos, ok := index[game.AppID]; ok {
			games[pos] = game
			continue
		}
		index[game.AppID] = len(games)
		games = append(games, game)
	}

	c.logger.Info("所有ゲーム一覧を取得しました",
		slog.String("steam_id", steamID),
		slog.Int("game_count", len(games)),
		slog.Int("skipped", skipped),
	)

	return games, nil
}
