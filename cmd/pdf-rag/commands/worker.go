package commands

import (
	"context"

	"github.com/urfave/cli/v3"
)

// WorkerStartAction は取り込みワーカーを起動するコマンドのアクション
// キューからジョブを取り出し、シグナルを受けるまで処理し続ける
func WorkerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	appCtx.Logger().Info("ingest worker started",
		"concurrency", appCtx.Config.Ingest.WorkerConcurrency,
	)

	appCtx.Container.Orchestrator.Run(ctx)

	appCtx.Logger().Info("ingest worker stopped")
	return nil
}
