package app

import (
	"fmt"

	"github.com/hitoshi/steamcompare/internal/model"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandLibrary は1アカウントのライブラリを表形式で出力することを示す。
	CommandLibrary Command = "library"
	// CommandCompare は2アカウントの比較結果を表形式で出力することを示す。
	CommandCompare Command = "compare"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "healthcheck":
		return CommandHealthcheck
	case "library":
		return CommandLibrary
	case "compare":
		return CommandCompare
	default:
		return CommandServe
	}
}

// compareArgs は compare サブコマンドの引数。
type compareArgs struct {
	inputA string
	inputB string
	mode   model.CompareMode
}

// parseLibraryArgs は library <input> の引数を解析する。argsはサブコマンド名を含む。
func parseLibraryArgs(args []string) (string, error) {
	if len(args) != 2 || args[1] == "" {
		return "", fmt.Errorf("usage: steamcompare library <steamid|vanity|profile-url>")
	}
	return args[1], nil
}

// parseCompareArgs は compare <a> <b> [playtime|achievements] の引数を解析する。
func parseCompareArgs(args []string) (compareArgs, error) {
	if len(args) < 3 || len(args) > 4 || args[1] == "" || args[2] == "" {
		return compareArgs{}, fmt.Errorf("usage: steamcompare compare <a> <b> [playtime|achievements]")
	}

	var rawMode string
	if len(args) == 4 {
		rawMode = args[3]
	}
	mode, err := model.ParseCompareMode(rawMode)
	if err != nil {
		return compareArgs{}, err
	}

	return compareArgs{inputA: args[1], inputB: args[2], mode: mode}, nil
}
