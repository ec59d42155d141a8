package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの削除ワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandSeed はADMIN_EMAIL/ADMIN_PASSWORDから管理者アカウントを登録することを示す。
	CommandSeed Command = "seed"
	// CommandDeactivate は指定メールアドレスのアカウントを無効化することを示す。
	CommandDeactivate Command = "deactivate"
	// CommandActivate は指定メールアドレスのアカウントを有効化することを示す。
	CommandActivate Command = "activate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandServe, CommandWorker, CommandMigrate, CommandSeed,
		CommandDeactivate, CommandActivate, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}

// commandArg はサブコマンドに続く最初の引数を返す。ない場合は空文字列。
func commandArg(args []string) string {
	if len(args) < 2 {
		return ""
	}
	return args[1]
}
