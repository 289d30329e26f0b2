package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/steamcompare/internal/format"
	"github.com/hitoshi/steamcompare/internal/library"
	"github.com/hitoshi/steamcompare/internal/model"
)

// CompareServiceInterface はライブラリ比較・閲覧サービスのインターフェース。
// library.Serviceが実装する。
type CompareServiceInterface interface {
	Compare(ctx context.Context, req library.CompareRequest) (*library.CompareReport, error)
	Library(ctx context.Context, input string) (*library.LibraryReport, error)
}

// CompareHandler は比較APIのHTTPハンドラー。
type CompareHandler struct {
	service CompareServiceInterface
	logger  *slog.Logger
}

// NewCompareHandler はCompareHandlerの新しいインスタンスを生成する。
func NewCompareHandler(service CompareServiceInterface, logger *slog.Logger) *CompareHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CompareHandler{service: service, logger: logger}
}

// gameResponse はゲーム1件のレスポンス。
type gameResponse struct {
	AppID            int    `json:"appid"`
	Name             string `json:"name"`
	PlaytimeForever  int    `json:"playtime_forever"`
	PlaytimeLabel    string `json:"playtime_label"`
	AchievementCount *int   `json:"achievement_count,omitempty"`
}

// comparedGameResponse は共通ゲーム1件のレスポンス。
type comparedGameResponse struct {
	model.ComparedGame
	PlaytimeLabelA string `json:"playtime_a_label"`
	PlaytimeLabelB string `json:"playtime_b_label"`
}

// compareResponse は比較APIのレスポンス。
type compareResponse struct {
	SteamIDA  string                 `json:"steam_id_a,omitempty"`
	SteamIDB  string                 `json:"steam_id_b,omitempty"`
	ACount    int                    `json:"a_count"`
	BCount    int                    `json:"b_count"`
	CompareBy model.CompareMode      `json:"compare_by"`
	Overlap   []comparedGameResponse `json:"overlap"`
	OnlyA     []gameResponse         `json:"only_a"`
	OnlyB     []gameResponse         `json:"only_b"`
	Summary   model.Summary          `json:"summary"`
	Warning   string                 `json:"warning,omitempty"`
	Errors    []string               `json:"errors,omitempty"`
}

// Compare はGET /api/compare のハンドラー。
// クエリパラメータ a, b に識別子を、compareBy に比較モードを受け取る。
func (h *CompareHandler) Compare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	inputA := strings.TrimSpace(q.Get("a"))
	inputB := strings.TrimSpace(q.Get("b"))
	if inputA == "" || inputB == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewMissingParameterError("Both Steam IDs or usernames are required"))
		return
	}

	mode, err := model.ParseCompareMode(q.Get("compareBy"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	report, err := h.service.Compare(r.Context(), library.CompareRequest{
		InputA: inputA,
		InputB: inputB,
		Mode:   mode,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toCompareResponse(report))
}

// Library はGET /api/library のハンドラー。
func (h *CompareHandler) Library(w http.ResponseWriter, r *http.Request) {
	input := strings.TrimSpace(r.URL.Query().Get("steamid"))
	if input == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewMissingParameterError("Steam ID or username is required"))
		return
	}

	report, err := h.service.Library(r.Context(), input)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toLibraryResponse(report))
}

// libraryResponse はライブラリ閲覧APIのレスポンス。
type libraryResponse struct {
	SteamID   string         `json:"steam_id"`
	GameCount int            `json:"game_count"`
	Games     []gameResponse `json:"games"`
	Warning   string         `json:"warning,omitempty"`
}

func toLibraryResponse(report *library.LibraryReport) libraryResponse {
	return libraryResponse{
		SteamID:   report.SteamID,
		GameCount: report.GameCount,
		Games:     toGameResponses(report.Games),
		Warning:   report.Warning,
	}
}

func toCompareResponse(report *library.CompareReport) compareResponse {
	overlap := make([]comparedGameResponse, len(report.Result.Overlap))
	for i, g := range report.Result.Overlap {
		overlap[i] = comparedGameResponse{
			ComparedGame:   g,
			PlaytimeLabelA: format.Playtime(g.PlaytimeA),
			PlaytimeLabelB: format.Playtime(g.PlaytimeB),
		}
	}

	return compareResponse{
		SteamIDA:  report.SteamIDA,
		SteamIDB:  report.SteamIDB,
		ACount:    report.CountA,
		BCount:    report.CountB,
		CompareBy: report.Mode,
		Overlap:   overlap,
		OnlyA:     toGameResponses(report.Result.OnlyA),
		OnlyB:     toGameResponses(report.Result.OnlyB),
		Summary:   report.Summary,
		Warning:   report.Warning,
		Errors:    report.Errors,
	}
}

// toGameResponses は常に非nilのスライスを返す。
func toGameResponses(games []model.Game) []gameResponse {
	out := make([]gameResponse, len(games))
	for i, g := range games {
		out[i] = gameResponse{
			AppID:            g.AppID,
			Name:             g.Name,
			PlaytimeForever:  g.PlaytimeMinutes,
			PlaytimeLabel:    format.Playtime(g.PlaytimeMinutes),
			AchievementCount: g.Achievements,
		}
	}
	return out
}
