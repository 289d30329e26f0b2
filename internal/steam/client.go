// Package steam はSteam Web API連携機能を提供する。
// 識別子の解決、所有ゲーム一覧の取得、実績数のバッチ取得を含む。
package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/steamcompare/internal/metrics"
	"github.com/hitoshi/steamcompare/internal/model"
)

const (
	// DefaultBaseURL はSteam Web APIのベースURL。
	DefaultBaseURL = "https://api.steampowered.com"

	resolveVanityPath      = "/ISteamUser/ResolveVanityURL/v0001/"
	ownedGamesPath         = "/IPlayerService/GetOwnedGames/v0001/"
	playerAchievementsPath = "/ISteamUserStats/GetPlayerAchievements/v0001/"

	endpointResolveVanity      = "ResolveVanityURL"
	endpointOwnedGames         = "GetOwnedGames"
	endpointPlayerAchievements = "GetPlayerAchievements"

	// maxErrorBodySize はエラーメッセージに含めるレスポンスボディの上限バイト数。
	maxErrorBodySize = 2048
)

// ClientConfig はSteamクライアントの設定パラメータ。
type ClientConfig struct {
	// BaseURL はAPIのベースURL（デフォルト: https://api.steampowered.com）。
	BaseURL string
	// RequestTimeout は1回のAPI呼び出しのタイムアウト（デフォルト: 15秒）。
	RequestTimeout time.Duration
	// AchievementBatchSize は実績取得で同時に発行する呼び出し数（デフォルト: 10）。
	AchievementBatchSize int
	// AchievementBatchPause はバッチ間の待機時間（デフォルト: 100ミリ秒）。
	AchievementBatchPause time.Duration
	// Language は実績取得時の言語パラメータ（デフォルト: english）。
	Language string
}

// DefaultClientConfig はデフォルトのクライアント設定を返す。
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:               DefaultBaseURL,
		RequestTimeout:        15 * time.Second,
		AchievementBatchSize:  10,
		AchievementBatchPause: 100 * time.Millisecond,
		Language:              "english",
	}
}

// withDefaults は未設定の項目をデフォルト値で補完した設定を返す。
func (cfg ClientConfig) withDefaults() ClientConfig {
	def := DefaultClientConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.AchievementBatchSize <= 0 {
		cfg.AchievementBatchSize = def.AchievementBatchSize
	}
	if cfg.AchievementBatchPause < 0 {
		cfg.AchievementBatchPause = def.AchievementBatchPause
	}
	if cfg.Language == "" {
		cfg.Language = def.Language
	}
	return cfg
}

// Client はSteam Web APIのクライアント。
// 1つのAPIキーを全呼び出しで共有する。並行利用に対して安全。
type Client struct {
	httpClient *http.Client
	apiKey     string
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	config     ClientConfig

	resolveGroup singleflight.Group

	// pause はバッチ間の待機を行う。テスト用に差し替え可能。
	pause func(ctx context.Context, d time.Duration) error
}

// NewClient はClientの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewClient(
	httpClient *http.Client,
	apiKey string,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	config ClientConfig,
) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		logger:     logger,
		metrics:    collector,
		config:     config.withDefaults(),
		pause:      sleepContext,
	}
}

// statusError は上流が成功以外のHTTPステータスを返したことを表す。
type statusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("Steam %s error: %d - %s", e.Endpoint, e.StatusCode, e.Body)
}

// transportError は上流への接続に失敗したことを表す。
// メッセージ中のAPIキーは伏せ字にする。呼び出し単位のタイムアウトはErrで判別できる。
type transportError struct {
	Endpoint string
	key      string
	Err      error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("Steam %s request failed: %s", e.Endpoint, redactKey(e.Err.Error(), e.key))
}

func (e *transportError) Unwrap() error {
	return e.Err
}

// cancelledError は呼び出し元コンテキストの終了をmodel.ErrCancelledでラップする。
func cancelledError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", model.ErrCancelled, ctx.Err())
}

// getJSON はAPIキー付きのGETリクエストを送信し、レスポンスJSONをoutにデコードする。
// 呼び出しごとにRequestTimeoutのタイムアウトを設定する。
// 呼び出し元のコンテキストが終了していた場合はmodel.ErrCancelledを返す。
func (c *Client) getJSON(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	reqURL, err := url.Parse(c.config.BaseURL + path)
	if err != nil {
		return fmt.Errorf("failed to parse %s endpoint URL: %w", endpoint, err)
	}

	q := reqURL.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("key", c.apiKey)
	reqURL.RawQuery = q.Encode()

	callCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", "steamcompare/1.0")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordSteamTransportError(endpoint, time.Since(start))
		if ctx.Err() != nil {
			return cancelledError(ctx)
		}
		// APIキーを含むURLはログに出さない
		c.logger.Warn("Steam APIの呼び出しに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("path", path),
			slog.String("error", redactKey(err.Error(), c.apiKey)),
		)
		return &transportError{Endpoint: endpoint, key: c.apiKey, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RecordSteamRequest(endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		c.logger.Warn("Steam APIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return &statusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return cancelledError(ctx)
		}
		c.logger.Warn("Steam APIのレスポンスのパースに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	return nil
}

// redactKey はエラーメッセージ中のAPIキーを伏せ字にする。
func redactKey(s, key string) string {
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, key, "***")
}

// sleepContext はdだけ待機する。待機中にコンテキストが終了した場合はそのエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
