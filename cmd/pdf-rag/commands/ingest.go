package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
)

// IngestFileAction はローカルのPDFを直接エンキューするコマンドのアクション
// HTTPサーバを経由せずに取り込みを試すための開発用コマンド
func IngestFileAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	path := cmd.String("file")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	job, err := appCtx.Container.UploadService.Accept(ctx, filepath.Base(path), f)
	if err != nil {
		return fmt.Errorf("failed to enqueue file: %w", err)
	}

	fmt.Printf("enqueued job %s for %s\n", job.ID, job.Filename)
	fmt.Println("run `pdf-rag worker start` to process queued jobs")
	return nil
}
