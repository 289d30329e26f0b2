package steam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/hitoshi/steamcompare/internal/model"
)

var (
	steamID64Pattern   = regexp.MustCompile(`^\d{17}$`)
	profilesURLPattern = regexp.MustCompile(`(?i)steamcommunity\.com/profiles/(\d{17})`)
	vanityURLPattern   = regexp.MustCompile(`(?i)steamcommunity\.com/id/([^/?#]+)`)
)

// defaultResolutionFailure は上流が理由を返さなかった場合の解決失敗メッセージ。
const defaultResolutionFailure = "Could not resolve vanity URL to SteamID64"

// IdentifierKind は入力文字列から抽出した識別子の種類。
type IdentifierKind int

const (
	// KindSteamID は17桁のSteamID64。
	KindSteamID IdentifierKind = iota
	// KindVanity はvanity名（カスタムURL名）。
	KindVanity
)

// Identifier は入力文字列から抽出した識別子候補。
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// IsSteamID64 は文字列が正規形（ASCII数字17桁）のSteamID64かどうかを返す。
func IsSteamID64(s string) bool {
	return steamID64Pattern.MatchString(s)
}

// ParseIdentifier は自由形式の入力から識別子候補を抽出する。
// 判定順: 17桁の数字 → /profiles/<17桁> を含むURL → /id/<名前> を含むURL → 入力全体をvanity名とみなす。
// ネットワーク呼び出しは行わない。
func ParseIdentifier(input string) Identifier {
	trimmed := strings.TrimSpace(input)

	if IsSteamID64(trimmed) {
		return Identifier{Kind: KindSteamID, Value: trimmed}
	}

	if m := profilesURLPattern.FindStringSubmatch(trimmed); m != nil {
		return Identifier{Kind: KindSteamID, Value: m[1]}
	}

	if m := vanityURLPattern.FindStringSubmatch(trimmed); m != nil {
		name, err := url.PathUnescape(m[1])
		if err != nil {
			name = m[1]
		}
		return Identifier{Kind: KindVanity, Value: name}
	}

	return Identifier{Kind: KindVanity, Value: trimmed}
}

// resolveVanityResponse はResolveVanityURLのレスポンス。
type resolveVanityResponse struct {
	Response *struct {
		Success int    `json:"success"`
		SteamID string `json:"steamid"`
		Message string `json:"message"`
	} `json:"response"`
}

// ResolveSteamID は自由形式の入力を正規形のSteamID64に解決する。
// 入力がSteamID64または/profiles/形式のURLの場合はネットワーク呼び出しを行わない。
// それ以外はvanity名としてResolveVanityURLを1回だけ呼び出す（リトライしない）。
// 失敗時は*model.ResolutionErrorを、キャンセル時はmodel.ErrCancelledを返す。
func (c *Client) ResolveSteamID(ctx context.Context, input string) (string, error) {
	ident := ParseIdentifier(input)
	if ident.Value == "" {
		return "", &model.ResolutionError{
			Input:  input,
			Reason: "Steam identifier is empty",
			Err:    model.ErrEmptyInput,
		}
	}

	if ident.Kind == KindSteamID {
		c.logger.Debug("入力はSteamID64のため解決を省略します",
			slog.String("steam_id", ident.Value),
		)
		return ident.Value, nil
	}

	// 同じvanity名の同時解決は1回の呼び出しにまとめる
	v, err, shared := c.resolveGroup.Do("vanity:"+ident.Value, func() (any, error) {
		return c.resolveVanity(ctx, input, ident.Value)
	})
	if err != nil {
		// 共有した呼び出しが他のリクエストのキャンセルで終了した場合は自分のコンテキストで呼び直す
		if shared && errors.Is(err, model.ErrCancelled) && ctx.Err() == nil {
			return c.resolveVanity(ctx, input, ident.Value)
		}
		return "", err
	}
	return v.(string), nil
}

// resolveVanity はResolveVanityURLを呼び出してvanity名をSteamID64に変換する。
func (c *Client) resolveVanity(ctx context.Context, input, vanity string) (string, error) {
	params := url.Values{}
	params.Set("vanityurl", vanity)

	var data resolveVanityResponse
	if err := c.getJSON(ctx, endpointResolveVanity, resolveVanityPath, params, &data); err != nil {
		if errors.Is(err, model.ErrCancelled) {
			return "", err
		}
		return "", &model.ResolutionError{Input: input, Reason: err.Error(), Err: err}
	}

	if data.Response == nil || data.Response.Success != 1 || data.Response.SteamID == "" {
		reason := defaultResolutionFailure
		success := 0
		if data.Response != nil {
			success = data.Response.Success
			if data.Response.Message != "" {
				reason = data.Response.Message
			}
		}
		c.logger.Info("vanity名の解決に失敗しました",
			slog.String("vanity", vanity),
			slog.Int("success", success),
			slog.String("reason", reason),
		)
		return "", &model.ResolutionError{Input: input, Reason: reason}
	}

	steamID := data.Response.SteamID
	if !IsSteamID64(steamID) {
		return "", &model.ResolutionError{
			Input:  input,
			Reason: fmt.Sprintf("Steam returned a malformed SteamID64: %q", steamID),
		}
	}

	c.logger.Debug("vanity名を解決しました",
		slog.String("vanity", vanity),
		slog.String("steam_id", steamID),
	)
	return steamID, nil
}
