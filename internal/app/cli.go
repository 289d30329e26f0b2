package app

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/hitoshi/steamcompare/internal/format"
	"github.com/hitoshi/steamcompare/internal/library"
	"github.com/hitoshi/steamcompare/internal/model"
)

// reportService はCLIサブコマンドが利用するサービスのインターフェース。
// library.Serviceが実装する。
type reportService interface {
	Compare(ctx context.Context, req library.CompareRequest) (*library.CompareReport, error)
	Library(ctx context.Context, input string) (*library.LibraryReport, error)
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// renderTable はヘッダーと行から罫線付きの表を描画する。
// 行の列数がヘッダーより少ない場合は空文字で埋める。
func renderTable(title string, headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if title != "" {
		tw.SetTitle(title)
	}

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render() + "\n"
}

// metricLabel はモードに応じて比較値を表示用の文字列にする。
func metricLabel(mode model.CompareMode, value int) string {
	if mode == model.CompareByAchievements {
		return strconv.Itoa(value)
	}
	return format.Playtime(value)
}

// runLibrary は1アカウントのライブラリをプレイ時間の降順で出力する。
func runLibrary(ctx context.Context, svc reportService, out io.Writer, input string) error {
	report, err := svc.Library(ctx, input)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Steam ID: %s\nGames: %d\n", report.SteamID, report.GameCount)
	if report.Warning != "" {
		fmt.Fprintf(out, "Warning: %s\n", report.Warning)
	}

	rows := make([][]string, 0, len(report.Games))
	for _, g := range report.Games {
		rows = append(rows, []string{strconv.Itoa(g.AppID), g.Name, format.Playtime(g.PlaytimeMinutes)})
	}
	fmt.Fprint(out, renderTable("", []string{"App ID", "Name", "Playtime"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignRight}))
	return nil
}

// runCompare は2アカウントの比較結果を共通ゲーム・片側のみのゲームの表として出力する。
func runCompare(ctx context.Context, svc reportService, out io.Writer, args compareArgs) error {
	report, err := svc.Compare(ctx, library.CompareRequest{
		InputA: args.inputA,
		InputB: args.inputB,
		Mode:   args.mode,
	})
	if err != nil {
		return err
	}

	mode := report.Mode
	fmt.Fprintf(out, "Compare by: %s\nA: %s (%d games)\nB: %s (%d games)\n",
		mode, args.inputA, report.CountA, args.inputB, report.CountB)
	for _, msg := range report.Errors {
		fmt.Fprintf(out, "Error: %s\n", msg)
	}
	if report.Warning != "" {
		fmt.Fprintf(out, "Warning: %s\n", report.Warning)
	}

	overlapRows := make([][]string, 0, len(report.Result.Overlap))
	for _, g := range report.Result.Overlap {
		a, b := g.Metrics(mode)
		overlapRows = append(overlapRows, []string{
			g.Name, metricLabel(mode, a), metricLabel(mode, b), string(g.Winner),
		})
	}
	fmt.Fprint(out, renderTable(
		fmt.Sprintf("Games in common (%d)", len(report.Result.Overlap)),
		[]string{"Name", "A", "B", "Winner"},
		overlapRows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
	))

	for _, only := range []struct {
		title string
		games []model.Game
	}{
		{"Only A", report.Result.OnlyA},
		{"Only B", report.Result.OnlyB},
	} {
		rows := make([][]string, 0, len(only.games))
		for _, g := range only.games {
			rows = append(rows, []string{g.Name, metricLabel(mode, g.Metric(mode))})
		}
		fmt.Fprint(out, renderTable(
			fmt.Sprintf("%s (%d)", only.title, len(only.games)),
			[]string{"Name", string(mode)},
			rows,
			[]columnAlignment{alignLeft, alignRight},
		))
	}

	s := report.Summary
	fmt.Fprintf(out, "Wins: A %d / B %d / tie %d (overall: %s)\n", s.WinsA, s.WinsB, s.Ties, s.OverallWinner)
	return nil
}
