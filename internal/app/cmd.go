package app

// Command はevoteの起動モードを表す。
type Command string

const (
	// CommandServe は投票APIサーバーとして起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの削除ワーカーとして起動する。
	// 複数のAPIサーバーが共有するPostgreSQLセッションストアを対象とする。
	CommandWorker Command = "worker"
	// CommandMigrate はsessionsとuploaded_assetsのマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はSERVER_PORTで待ち受けるAPIサーバーの /health を確認する。
	// distrolessイメージにはcurlがないため、DockerのHEALTHCHECKから呼び出す。
	CommandHealthcheck Command = "healthcheck"
)

// Description はログやヘルプに表示する起動モードの説明を返す。
func (c Command) Description() string {
	switch c {
	case CommandWorker:
		return "expired session cleanup worker"
	case CommandMigrate:
		return "session store schema migration"
	case CommandHealthcheck:
		return "probe /health of the local API server"
	default:
		return "voting API server"
	}
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandWorker, CommandMigrate, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}
